// Package boltvault is a devtools-only persistence layer that stores sealed
// vault blobs in go.etcd.io/bbolt under the spec §6 shard-file names
// ("shard_<u8>.bin"). It is not connected to vault.Store, and the blobs it
// holds are opaque to it: a blob sealed by a simenclave backend can only be
// unsealed by that same backend instance, so it cannot be unsealed after a
// restart.
package boltvault

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/vault/shardfile"
)

var bucketName = []byte("sealed_records")

// DB persists sealed vault blobs keyed by vault id.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "boltvault.Open", fmt.Sprintf("opening %s", path))
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "boltvault.Open", "creating bucket")
	}
	return &DB{bolt: db}, nil
}

func (d *DB) Close() error { return d.bolt.Close() }

// Put persists a sealed blob for vaultID.
func (d *DB) Put(vaultID string, sealed []byte) error {
	err := d.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(vaultID), sealed)
	})
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "boltvault.Put", "writing sealed blob")
	}
	return nil
}

// Get retrieves the sealed blob for vaultID.
func (d *DB) Get(vaultID string) ([]byte, error) {
	var out []byte
	err := d.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(vaultID))
		if v == nil {
			return custodyerr.Newf(custodyerr.NotFound, "boltvault.Get", "no sealed blob for vault id %q", vaultID)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExportShard validates filename against the shard_<u8>.bin convention and
// persists sealed as that key's blob, keyed by the participant id encoded
// in the filename.
func (d *DB) ExportShard(filename string, sealed []byte) error {
	meta, err := shardfile.Validate(filename)
	if err != nil {
		return err
	}
	return d.Put(fmt.Sprintf("shard_%d", meta.ParticipantID), sealed)
}

// ImportShard validates filename and loads the corresponding sealed blob.
func (d *DB) ImportShard(filename string) ([]byte, error) {
	meta, err := shardfile.Validate(filename)
	if err != nil {
		return nil, err
	}
	return d.Get(fmt.Sprintf("shard_%d", meta.ParticipantID))
}
