package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"qortal.dev/node/aterrors"
	"qortal.dev/node/foreignchain"
	"qortal.dev/node/htlcscript"
	"qortal.dev/node/swap"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: swap-cli <refund|redeem> [flags]")
		return 1
	}

	switch args[0] {
	case "refund":
		return runRefund(args[1:], stdout, stderr)
	case "redeem":
		return runRedeem(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown subcommand %q; expected refund or redeem\n", args[0])
		return 1
	}
}

func netParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown foreign network %q", name)
	}
}

func newOrchestrator(rpcHost, rpcUser, rpcPass, network string, rpcTLS bool) (*swap.Orchestrator, *foreignchain.RPCProvider, error) {
	params, err := netParams(network)
	if err != nil {
		return nil, nil, aterrors.Wrap(aterrors.KindInvalidInput, "resolving foreign network", err)
	}
	provider, err := foreignchain.NewRPCProvider(foreignchain.RPCConfig{
		Host:       rpcHost,
		User:       rpcUser,
		Pass:       rpcPass,
		DisableTLS: !rpcTLS,
		Params:     params,
	})
	if err != nil {
		return nil, nil, err
	}
	return swap.New(provider, params), provider, nil
}

func commonRPCFlags(fs *flag.FlagSet) (host, user, pass, network *string, tls *bool) {
	host = fs.String("rpc-host", "127.0.0.1:8332", "foreign chain RPC host:port")
	user = fs.String("rpc-user", "", "foreign chain RPC username")
	pass = fs.String("rpc-pass", "", "foreign chain RPC password")
	network = fs.String("network", "mainnet", "foreign network: mainnet, testnet3, or regtest")
	tls = fs.Bool("rpc-tls", false, "use TLS for the RPC connection")
	return
}

func decodeHexFixed(s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return aterrors.Wrap(aterrors.KindInvalidInput, "decoding hex argument", err)
	}
	if len(b) != len(out) {
		return aterrors.New(aterrors.KindInvalidInput, fmt.Sprintf("expected %d bytes, got %d", len(out), len(b)))
	}
	copy(out, b)
	return nil
}

func runRefund(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("swap-cli refund", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host, user, pass, network, tls := commonRPCFlags(fs)
	p2sh := fs.String("p2sh-address", "", "the HTLC's P2SH address")
	privKeyHex := fs.String("private-key", "", "refunder's private key, hex-encoded (32, 37, or 38 bytes)")
	redeemerAddr := fs.String("redeemer-address", "", "redeemer's P2PKH address")
	secretHashHex := fs.String("secret-hash", "", "HASH160(secret), hex-encoded, 20 bytes")
	lockTime := fs.Uint64("locktime", 0, "contract lockTime, Unix seconds")
	feeSatoshis := fs.Int64("fee-satoshis", 0, "flat fee in satoshis (0 selects the network default)")
	broadcast := fs.Bool("broadcast", false, "broadcast the built transaction instead of only printing it")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	privKey, err := hex.DecodeString(*privKeyHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid private key hex: %v\n", err)
		return 1
	}
	var secretHash [20]byte
	if err := decodeHexFixed(*secretHashHex, secretHash[:]); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return aterrors.ExitCode(err)
	}

	orch, provider, err := newOrchestrator(*host, *user, *pass, *network, *tls)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return aterrors.ExitCode(err)
	}
	defer provider.Shutdown()

	tx, err := orch.Refund(context.Background(), time.Now().Unix(), swap.RefundArgs{
		P2SHAddress:          *p2sh,
		RefundPrivateKey:     privKey,
		RedeemerP2PKHAddress: *redeemerAddr,
		SecretHash:           secretHash,
		LockTime:             uint32(*lockTime),
		FeeSatoshis:          *feeSatoshis,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "refund failed: %v\n", err)
		return aterrors.ExitCode(err)
	}

	return emitTransaction(context.Background(), stdout, stderr, provider, tx, *broadcast)
}

func runRedeem(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("swap-cli redeem", flag.ContinueOnError)
	fs.SetOutput(stderr)
	host, user, pass, network, tls := commonRPCFlags(fs)
	p2sh := fs.String("p2sh-address", "", "the HTLC's P2SH address")
	privKeyHex := fs.String("private-key", "", "redeemer's private key, hex-encoded (32, 37, or 38 bytes)")
	refunderAddr := fs.String("refunder-address", "", "refunder's P2PKH address")
	secretHex := fs.String("secret", "", "the HTLC preimage secret, hex-encoded, 32 bytes")
	lockTime := fs.Uint64("locktime", 0, "contract lockTime, Unix seconds")
	feeSatoshis := fs.Int64("fee-satoshis", 0, "flat fee in satoshis (0 selects the network default)")
	broadcast := fs.Bool("broadcast", false, "broadcast the built transaction instead of only printing it")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	privKey, err := hex.DecodeString(*privKeyHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid private key hex: %v\n", err)
		return 1
	}
	var secret [htlcscript.SecretLen]byte
	if err := decodeHexFixed(*secretHex, secret[:]); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return aterrors.ExitCode(err)
	}

	orch, provider, err := newOrchestrator(*host, *user, *pass, *network, *tls)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return aterrors.ExitCode(err)
	}
	defer provider.Shutdown()

	tx, err := orch.Redeem(context.Background(), swap.RedeemArgs{
		P2SHAddress:          *p2sh,
		RedeemPrivateKey:     privKey,
		RefunderP2PKHAddress: *refunderAddr,
		Secret:               secret,
		LockTime:             uint32(*lockTime),
		FeeSatoshis:          *feeSatoshis,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "redeem failed: %v\n", err)
		return aterrors.ExitCode(err)
	}

	return emitTransaction(context.Background(), stdout, stderr, provider, tx, *broadcast)
}

// emitTransaction prints tx's hex encoding and txid, and broadcasts it via
// provider when requested.
func emitTransaction(ctx context.Context, stdout, stderr io.Writer, provider *foreignchain.RPCProvider, tx *wire.MsgTx, broadcast bool) int {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		_, _ = fmt.Fprintf(stderr, "serializing transaction failed: %v\n", err)
		return 2
	}
	raw := buf.Bytes()
	_, _ = fmt.Fprintf(stdout, "txid: %s\n", tx.TxHash())
	_, _ = fmt.Fprintf(stdout, "raw:  %s\n", hex.EncodeToString(raw))

	if !broadcast {
		return 0
	}
	txid, err := provider.BroadcastTransaction(ctx, raw)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "broadcast failed: %v\n", err)
		return aterrors.ExitCode(err)
	}
	_, _ = fmt.Fprintf(stdout, "broadcast txid: %s\n", hex.EncodeToString(txid[:]))
	return 0
}
