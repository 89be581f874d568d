// Package boltstore persists registry.Entry metadata (everything except
// secrets, which never leave the vault) across restarts, mirroring the
// teacher's own bbolt-backed chain/boltdb store. GroupDescriptor's kyber
// points are marshaled with github.com/nikkolasg/hexjson, the same
// hex-JSON convention the teacher uses for its group files.
package boltstore

import (
	json "github.com/nikkolasg/hexjson"
	bolt "go.etcd.io/bbolt"

	"github.com/vault-custody/custody-engine/custodyerr"
	"github.com/vault-custody/custody-engine/registry"
)

var bucketName = []byte("registry_entries")

// record is the on-disk projection of a registry.Entry: no secrets, since
// mpc_shard and bbs_private_key never leave the vault.
type record struct {
	OperationalDID  string                    `json:"operational_did"`
	RootDIDHash     string                    `json:"root_did_hash"`
	VaultID         string                    `json:"vault_id"`
	GroupDescriptor *registry.GroupDescriptor `json:"group_descriptor,omitempty"`
	DIDDocument     []byte                    `json:"did_document,omitempty"`
}

// Store persists registry metadata to a bbolt database.
type Store struct {
	bolt *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "boltstore.Open", "opening database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, custodyerr.Wrap(err, custodyerr.Internal, "boltstore.Open", "creating bucket")
	}
	return &Store{bolt: db}, nil
}

func (s *Store) Close() error { return s.bolt.Close() }

// Save persists a snapshot of entry, keyed by its operational DID.
func (s *Store) Save(entry *registry.Entry) error {
	rec := record{
		OperationalDID:  entry.OperationalDID,
		RootDIDHash:     entry.RootDIDHash,
		VaultID:         entry.VaultID,
		GroupDescriptor: entry.GroupDescriptor,
		DIDDocument:     entry.DIDDocument,
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "boltstore.Save", "marshaling entry")
	}
	err = s.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(entry.OperationalDID), blob)
	})
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "boltstore.Save", "writing entry")
	}
	return nil
}

// Load retrieves the persisted entry for opDID.
func (s *Store) Load(opDID string) (*registry.Entry, error) {
	var rec record
	err := s.bolt.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(opDID))
		if v == nil {
			return custodyerr.Newf(custodyerr.NotFound, "boltstore.Load", "no entry for %q", opDID)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &registry.Entry{
		OperationalDID:  rec.OperationalDID,
		RootDIDHash:     rec.RootDIDHash,
		VaultID:         rec.VaultID,
		GroupDescriptor: rec.GroupDescriptor,
		DIDDocument:     rec.DIDDocument,
	}, nil
}

// Delete removes a persisted entry.
func (s *Store) Delete(opDID string) error {
	err := s.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(opDID))
	})
	if err != nil {
		return custodyerr.Wrap(err, custodyerr.Internal, "boltstore.Delete", "deleting entry")
	}
	return nil
}
