package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"qortal.dev/node/repository"
)

var (
	bucketBlocks      = []byte("blocks_by_height")
	bucketTxByTS       = []byte("txs_by_timestamp")
	bucketTxBySig     = []byte("txs_by_signature")
	bucketTxByRecip   = []byte("txs_by_recipient")
	bucketAccounts    = []byte("accounts_by_address")
	bucketATBlobs     = []byte("at_blobs_by_address")
	bucketATMeta      = []byte("at_meta_by_address")
	bucketATInfo      = []byte("at_info_by_address")
)

// DB is the bbolt-backed repository.Repository implementation: one bucket
// per index this package's callers need, keyed so that range scans (the
// recipient-timestamp scan putTransactionAfterTimestampIntoA relies on)
// fall out of bbolt's native key ordering rather than needing a secondary
// sort step.
type DB struct {
	chainDir string
	db       *bolt.DB
	manifest *Manifest
}

func Open(datadir string, chainIDHex string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if chainIDHex == "" {
		return nil, fmt.Errorf("chain_id_hex required")
	}

	chainDir := ChainDir(datadir, chainIDHex)
	if err := ensureDir(chainDir); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Join(chainDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(chainDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{chainDir: chainDir, db: bdb}

	buckets := [][]byte{bucketBlocks, bucketTxByTS, bucketTxBySig, bucketTxByRecip, bucketAccounts, bucketATBlobs, bucketATMeta, bucketATInfo}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(chainDir)
	if err != nil {
		m = &Manifest{SchemaVersion: SchemaVersionV1, ChainIDHex: chainIDHex}
		if werr := writeManifestAtomic(chainDir, m); werr != nil {
			_ = bdb.Close()
			return nil, fmt.Errorf("write initial manifest: %w", werr)
		}
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) ChainDir() string { return d.chainDir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

var _ repository.Repository = (*DB)(nil)

func heightKey(height uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, height)
	return k
}

func tsKey(ts repository.Timestamp) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(ts))
	return k
}

// AppendBlock records the summary of the next block and advances the tip
// in the manifest. Called by whatever feeds blocks into the chain; not
// part of repository.Repository since nothing AT-side ever appends a
// block itself.
func (d *DB) AppendBlock(summary repository.BlockSummary) error {
	val := encodeBlockSummary(summary)
	if err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Put(heightKey(summary.Height), val)
	}); err != nil {
		return err
	}
	m := *d.manifest
	m.TipHeight = uint64(summary.Height)
	m.TipSignatureHex = hexEncode(summary.Signature[:])
	return d.SetManifest(&m)
}

func (d *DB) SetManifest(m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	if err := writeManifestAtomic(d.chainDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

func (d *DB) BlockByHeight(height uint32) (repository.BlockSummary, error) {
	var out repository.BlockSummary
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(heightKey(height))
		if v == nil {
			return nil
		}
		var derr error
		out, derr = decodeBlockSummary(v)
		found = derr == nil
		return derr
	})
	if err != nil {
		return repository.BlockSummary{}, err
	}
	if !found {
		return repository.BlockSummary{}, fmt.Errorf("block at height %d not found", height)
	}
	return out, nil
}

func (d *DB) LastBlock() (repository.BlockSummary, error) {
	return d.BlockByHeight(uint32(d.manifest.TipHeight))
}

func (d *DB) BlockchainHeight() (uint32, error) {
	return uint32(d.manifest.TipHeight), nil
}

// PutTransaction records tx under its own timestamp, indexes it by
// signature for TransactionBySignature lookups, and indexes it once per
// recipient so FirstTransactionAfter can scan a single address's activity
// without touching unrelated accounts.
func (d *DB) PutTransaction(tx repository.TransactionData) error {
	val := encodeTransactionData(tx)
	return d.db.Update(func(btx *bolt.Tx) error {
		key := tsKey(tx.Timestamp)
		if err := btx.Bucket(bucketTxByTS).Put(key, val); err != nil {
			return err
		}
		if err := btx.Bucket(bucketTxBySig).Put(tx.Signature[:], key); err != nil {
			return err
		}
		for _, addr := range tx.Recipients {
			if err := btx.Bucket(bucketTxByRecip).Put(recipientKey(addr, tx.Timestamp), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) TransactionAt(ts repository.Timestamp) (repository.TransactionData, error) {
	var out repository.TransactionData
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxByTS).Get(tsKey(ts))
		if v == nil {
			return nil
		}
		var derr error
		out, derr = decodeTransactionData(v)
		found = derr == nil
		return derr
	})
	if err != nil {
		return repository.TransactionData{}, err
	}
	if !found {
		return repository.TransactionData{}, fmt.Errorf("transaction at %d not found", ts)
	}
	return out, nil
}

func (d *DB) TransactionBySignature(sig [64]byte) (repository.TransactionData, error) {
	var key []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTxBySig).Get(sig[:])
		if v != nil {
			key = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return repository.TransactionData{}, err
	}
	if key == nil {
		return repository.TransactionData{}, fmt.Errorf("transaction with given signature not found")
	}
	return d.TransactionAt(repository.Timestamp(binary.BigEndian.Uint64(key)))
}

func recipientKey(address string, ts repository.Timestamp) []byte {
	k := make([]byte, 0, len(address)+1+8)
	k = append(k, []byte(address)...)
	k = append(k, 0)
	k = append(k, tsKey(ts)...)
	return k
}

func (d *DB) FirstTransactionAfter(after repository.Timestamp, address string) (repository.Timestamp, error) {
	prefix := append([]byte(address), 0)
	seek := recipientKey(address, after+1)
	var found repository.Timestamp
	err := d.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTxByRecip).Cursor()
		k, _ := c.Seek(seek)
		if k == nil || !hasPrefix(k, prefix) {
			return nil
		}
		found = repository.Timestamp(binary.BigEndian.Uint64(k[len(prefix):]))
		return nil
	})
	return found, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (d *DB) AccountByAddress(address string) (repository.AccountRef, error) {
	var out repository.AccountRef
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get([]byte(address))
		out = decodeAccountRef(address, v)
		return nil
	})
	return out, err
}

func (d *DB) AccountByPublicKey(pubKey [32]byte) (repository.AccountRef, error) {
	return d.AccountByAddress(addressFromPublicKeyHex(pubKey))
}

func (d *DB) PutAccount(ref repository.AccountRef) error {
	val := make([]byte, 72)
	copy(val[:64], ref.LastReference[:])
	binary.LittleEndian.PutUint64(val[64:], ref.ConfirmedBalance)
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put([]byte(ref.Address), val)
	})
}

func (d *DB) ATBlob(address string) ([]byte, error) {
	var out []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketATBlobs).Get([]byte(address))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("AT blob for %s not found", address)
	}
	return out, nil
}

func (d *DB) PutATBlob(address string, blob []byte) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketATBlobs).Put([]byte(address), blob)
	})
}

func (d *DB) ATCreationHeight(address string) (uint32, error) {
	meta, err := d.atMeta(address)
	if err != nil {
		return 0, err
	}
	return meta.creationHeight, nil
}

func (d *DB) ATCreatorPublicKey(address string) ([32]byte, error) {
	meta, err := d.atMeta(address)
	if err != nil {
		return [32]byte{}, err
	}
	return meta.creatorPubKey, nil
}

func (d *DB) ATAddresses() ([]string, error) {
	var out []string
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketATMeta).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// DeployAT registers a new AT at address: its creation height, creator
// public key, initial machine state blob, and informational metadata
// (name/description/type/tags, none of it consensus-critical).
func (d *DB) DeployAT(address string, creatorPubKey [32]byte, creationHeight uint32, blob []byte, info repository.ATMetadata) error {
	meta := make([]byte, 36)
	binary.BigEndian.PutUint32(meta[:4], creationHeight)
	copy(meta[4:], creatorPubKey[:])
	infoVal, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode AT metadata: %w", err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketATMeta).Put([]byte(address), meta); err != nil {
			return err
		}
		if err := tx.Bucket(bucketATInfo).Put([]byte(address), infoVal); err != nil {
			return err
		}
		return tx.Bucket(bucketATBlobs).Put([]byte(address), blob)
	})
}

// ATMetadata returns the informational metadata recorded for address at
// deployment, or the zero value if none was recorded.
func (d *DB) ATMetadata(address string) (repository.ATMetadata, error) {
	var out repository.ATMetadata
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketATInfo).Get([]byte(address))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &out)
	})
	return out, err
}

type atMeta struct {
	creationHeight uint32
	creatorPubKey  [32]byte
}

func (d *DB) atMeta(address string) (atMeta, error) {
	var out atMeta
	var found bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketATMeta).Get([]byte(address))
		if v == nil || len(v) != 36 {
			return nil
		}
		out.creationHeight = binary.BigEndian.Uint32(v[:4])
		copy(out.creatorPubKey[:], v[4:])
		found = true
		return nil
	})
	if err != nil {
		return atMeta{}, err
	}
	if !found {
		return atMeta{}, fmt.Errorf("AT metadata for %s not found", address)
	}
	return out, nil
}
