package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// mapping: (chainID || provider || start sequence number) -> StoredCommitment
	commitmentBucketName = []byte("commitments")
)

type CommitmentStore struct {
	db kvdb.Backend
}

// NewCommitmentStore returns a new store backed by db
func NewCommitmentStore(db kvdb.Backend) (*CommitmentStore, error) {
	store := &CommitmentStore{db}
	if err := store.initBuckets(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *CommitmentStore) initBuckets() error {
	if err := kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(commitmentBucketName)
		if err != nil {
			return fmt.Errorf("failed to create commitment bucket: %w", err)
		}

		return nil
	}); err != nil {
		return fmt.Errorf("failed to initialize commitment buckets: %w", err)
	}

	return nil
}

// AddCommitment stores a new commitment. A commitment starting at an already
// used sequence number is rejected.
func (s *CommitmentStore) AddCommitment(chainID string, provider common.Address, c *StoredCommitment) error {
	if c.CreatedAt == 0 {
		c.CreatedAt = uint64(time.Now().Unix())
	}

	cBytes, err := rlp.EncodeToBytes(c)
	if err != nil {
		return fmt.Errorf("failed to encode commitment: %w", err)
	}

	key := getKey(chainID, provider, c.StartSequenceNumber)

	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(commitmentBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		if bucket.Get(key) != nil {
			return fmt.Errorf("%w: start sequence number %d", ErrDuplicateCommitment, c.StartSequenceNumber)
		}

		return bucket.Put(key, cBytes)
	})
}

// GetCommitments returns the commitments of the provider ordered by start
// sequence number
func (s *CommitmentStore) GetCommitments(chainID string, provider common.Address) ([]*StoredCommitment, error) {
	prefix := getPrefixKey(chainID, provider)
	var commitments []*StoredCommitment

	err := s.db.View(func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(commitmentBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		cursor := bucket.ReadCursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var c StoredCommitment
			if err := rlp.DecodeBytes(v, &c); err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
			}
			commitments = append(commitments, &c)
		}

		return nil
	}, func() {
		commitments = nil
	})

	if err != nil {
		return nil, err
	}

	return commitments, nil
}
