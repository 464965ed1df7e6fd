package foreignchain

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
)

// RPCProvider implements BlockchainProvider against a full node's JSON-RPC
// interface (bitcoind-compatible). UTXOsForAddress and HasHistory rely on
// the node's wallet already tracking the address being queried (via
// importaddress or a descriptor wallet rescan), since plain JSON-RPC has
// no address index of its own.
type RPCProvider struct {
	client *rpcclient.Client
	params *chaincfg.Params
}

// RPCConfig is the subset of rpcclient.ConnConfig a caller needs to supply.
type RPCConfig struct {
	Host       string
	User       string
	Pass       string
	DisableTLS bool
	Params     *chaincfg.Params
}

// NewRPCProvider dials cfg.Host and returns an RPCProvider. It runs in
// HTTP POST mode rather than rpcclient's websocket notification mode:
// this module only ever polls, it never subscribes.
func NewRPCProvider(cfg RPCConfig) (*RPCProvider, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "dialing RPC node", err)
	}
	return &RPCProvider{client: client, params: cfg.Params}, nil
}

var _ BlockchainProvider = (*RPCProvider)(nil)

// Shutdown releases the underlying RPC connection.
func (p *RPCProvider) Shutdown() { p.client.Shutdown() }

func (p *RPCProvider) decodeAddress(address string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, p.params)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "decoding address", err)
	}
	return addr, nil
}

func (p *RPCProvider) HasHistory(ctx context.Context, address string) (bool, error) {
	addr, err := p.decodeAddress(address)
	if err != nil {
		return false, err
	}
	amount, err := p.client.GetReceivedByAddressMinConf(addr, 0)
	if err != nil {
		return false, aterrors.Wrap(aterrors.KindForeignBlockchainError, "checking address history", err)
	}
	return amount != 0, nil
}

func (p *RPCProvider) UTXOsForAddress(ctx context.Context, address string) ([]UTXO, error) {
	addr, err := p.decodeAddress(address)
	if err != nil {
		return nil, err
	}
	unspent, err := p.client.ListUnspentMinMaxAddresses(0, 9_999_999, []btcutil.Address{addr})
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "listing unspent outputs", err)
	}

	var tipHeight int64
	if len(unspent) > 0 {
		tipHeight, err = p.client.GetBlockCount()
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching block count", err)
		}
	}

	out := make([]UTXO, 0, len(unspent))
	for _, u := range unspent {
		hash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "parsing UTXO txid", err)
		}
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "parsing UTXO amount", err)
		}
		script, err := hex.DecodeString(u.ScriptPubKey)
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "decoding UTXO scriptPubKey", err)
		}

		var height uint32
		if u.Confirmations > 0 {
			height = uint32(tipHeight - u.Confirmations + 1)
		}

		var txHash [32]byte
		copy(txHash[:], hash[:])
		out = append(out, UTXO{
			TxHash:       txHash,
			Index:        u.Vout,
			Value:        int64(amount),
			Height:       height,
			ScriptPubKey: script,
		})
	}
	return out, nil
}

func (p *RPCProvider) FetchTransaction(ctx context.Context, hash [32]byte) ([]byte, error) {
	h, err := chainhash.NewHash(hash[:])
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindInvalidInput, "decoding transaction hash", err)
	}
	tx, err := p.client.GetRawTransaction(h)
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching raw transaction", err)
	}
	var buf bytes.Buffer
	if err := tx.MsgTx().Serialize(&buf); err != nil {
		return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "serializing fetched transaction", err)
	}
	return buf.Bytes(), nil
}

func (p *RPCProvider) LatestHeaders(ctx context.Context, n int) ([][HeaderSize]byte, error) {
	tipHeight, err := p.client.GetBlockCount()
	if err != nil {
		return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching block count", err)
	}

	out := make([][HeaderSize]byte, 0, n)
	for i := 0; i < n && tipHeight-int64(i) >= 0; i++ {
		hash, err := p.client.GetBlockHash(tipHeight - int64(i))
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching block hash", err)
		}
		header, err := p.client.GetBlockHeader(hash)
		if err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "fetching block header", err)
		}
		var buf bytes.Buffer
		if err := header.Serialize(&buf); err != nil {
			return nil, aterrors.Wrap(aterrors.KindForeignBlockchainError, "serializing block header", err)
		}
		var raw [HeaderSize]byte
		copy(raw[:], buf.Bytes())
		out = append(out, raw)
	}
	return out, nil
}

func (p *RPCProvider) BroadcastTransaction(ctx context.Context, raw []byte) ([32]byte, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return [32]byte{}, aterrors.Wrap(aterrors.KindInvalidInput, "decoding transaction for broadcast", err)
	}
	hash, err := p.client.SendRawTransaction(&tx, false)
	if err != nil {
		return [32]byte{}, aterrors.Wrap(aterrors.KindForeignBlockchainError, "broadcasting transaction", err)
	}
	var out [32]byte
	copy(out[:], hash[:])
	return out, nil
}

func (p *RPCProvider) DefaultFeePerByte(ctx context.Context) (int64, error) {
	const targetBlocks int64 = 6
	result, err := p.client.EstimateSmartFee(targetBlocks, nil)
	if err != nil {
		return 0, aterrors.Wrap(aterrors.KindForeignBlockchainError, "estimating fee", err)
	}
	if result.FeeRate == nil {
		return 0, aterrors.New(aterrors.KindForeignBlockchainError, "node returned no fee estimate")
	}
	satPerKvB, err := btcutil.NewAmount(*result.FeeRate)
	if err != nil {
		return 0, aterrors.Wrap(aterrors.KindForeignBlockchainError, "parsing fee estimate", err)
	}
	return int64(satPerKvB) / 1000, nil
}
