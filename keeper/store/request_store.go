package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/fortuna-labs/keeper/commitment"
	"github.com/fortuna-labs/keeper/types"
)

var (
	// mapping: (chainID || provider || seq) -> StoredRequest
	requestBucketName = []byte("requests")
	// mapping: (chainID || provider) -> last scanned block
	progressBucketName = []byte("progress")
	// mapping: (chainID || provider || chain offset) -> storedHead
	trackerBucketName = []byte("tracker_heads")
)

// RequestStore keeps the delivery state of every request seen by the keeper
// together with the scanning progress and the commitment tracker heads.
type RequestStore struct {
	db kvdb.Backend
}

// NewRequestStore returns a new store backed by db
func NewRequestStore(db kvdb.Backend) (*RequestStore, error) {
	store := &RequestStore{db}
	if err := store.initBuckets(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *RequestStore) initBuckets() error {
	if err := kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		for _, name := range [][]byte{requestBucketName, progressBucketName, trackerBucketName} {
			if _, err := tx.CreateTopLevelBucket(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		return nil
	}); err != nil {
		return fmt.Errorf("failed to initialize request buckets: %w", err)
	}

	return nil
}

// SaveRequest records a newly observed request as pending. It returns false
// without touching the record if the request is already known.
func (s *RequestStore) SaveRequest(chainID string, req *types.RandomnessRequest) (bool, error) {
	rBytes, err := rlp.EncodeToBytes(newStoredRequest(req))
	if err != nil {
		return false, fmt.Errorf("failed to encode request: %w", err)
	}

	key := getKey(chainID, req.Provider, req.SequenceNumber)
	created := false

	err = kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		created = false
		bucket := tx.ReadWriteBucket(requestBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		if bucket.Get(key) != nil {
			return nil
		}
		created = true

		return bucket.Put(key, rBytes)
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

func (s *RequestStore) GetDeliveryRecord(chainID string, provider common.Address, seq uint64) (*StoredRequest, error) {
	key := getKey(chainID, provider, seq)
	var r *StoredRequest

	err := s.db.View(func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(requestBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		v := bucket.Get(key)
		if v == nil {
			return ErrRequestNotFound
		}

		var decoded StoredRequest
		if err := rlp.DecodeBytes(v, &decoded); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
		}
		r = &decoded

		return nil
	}, func() {})

	if err != nil {
		return nil, err
	}

	return r, nil
}

// SetDeliveryOutcome writes the result of a delivery into an existing record
func (s *RequestStore) SetDeliveryOutcome(chainID string, provider common.Address, seq uint64, outcome *DeliveryOutcome) error {
	key := getKey(chainID, provider, seq)

	return s.db.Update(func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(requestBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		v := bucket.Get(key)
		if v == nil {
			return ErrRequestNotFound
		}

		var r StoredRequest
		if err := rlp.DecodeBytes(v, &r); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
		}

		r.Status = outcome.Status
		r.DeliveryTxHash = outcome.TxHash
		r.NumRetries = outcome.NumRetries
		r.FeeMultiplierPct = outcome.FeeMultiplierPct
		r.LastError = ""
		if outcome.Err != nil {
			r.LastError = outcome.Err.Error()
		}
		r.UpdatedAt = uint64(time.Now().Unix())

		rBytes, err := rlp.EncodeToBytes(&r)
		if err != nil {
			return err
		}

		return bucket.Put(key, rBytes)
	}, func() {})
}

// GetUnfinishedRequests returns the requests of the provider which are
// neither completed nor skipped, ordered by sequence number
func (s *RequestStore) GetUnfinishedRequests(chainID string, provider common.Address) ([]*StoredRequest, error) {
	prefix := getPrefixKey(chainID, provider)
	var requests []*StoredRequest

	err := s.db.View(func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(requestBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		cursor := bucket.ReadCursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var r StoredRequest
			if err := rlp.DecodeBytes(v, &r); err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
			}
			if r.Status.Final() {
				continue
			}
			requests = append(requests, &r)
		}

		return nil
	}, func() {
		requests = nil
	})

	if err != nil {
		return nil, err
	}

	return requests, nil
}

func (s *RequestStore) SetLastScannedBlock(chainID string, provider common.Address, block uint64) error {
	key := getPrefixKey(chainID, provider)

	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(progressBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		return bucket.Put(key, uint64ToBytes(block))
	})
}

// GetLastScannedBlock returns ErrProgressNotFound if nothing was scanned yet
func (s *RequestStore) GetLastScannedBlock(chainID string, provider common.Address) (uint64, error) {
	key := getPrefixKey(chainID, provider)
	var block uint64

	err := s.db.View(func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(progressBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		v := bucket.Get(key)
		if v == nil {
			return ErrProgressNotFound
		}
		if len(v) != 8 {
			return ErrCorruptedKeeperDB
		}
		block = uint64FromBytes(v)

		return nil
	}, func() {})

	if err != nil {
		return 0, err
	}

	return block, nil
}

// SetTrackerHead persists a tracker head. Heads older than the stored one
// are ignored.
func (s *RequestStore) SetTrackerHead(chainID string, provider common.Address, head commitment.Head) error {
	key := getKey(chainID, provider, head.ChainOffset)
	hBytes, err := rlp.EncodeToBytes(&storedHead{
		ChainOffset:    head.ChainOffset,
		SequenceNumber: head.SequenceNumber,
		Value:          head.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to encode tracker head: %w", err)
	}

	return kvdb.Batch(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(trackerBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		if v := bucket.Get(key); v != nil {
			var existing storedHead
			if err := rlp.DecodeBytes(v, &existing); err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
			}
			if existing.SequenceNumber >= head.SequenceNumber {
				return nil
			}
		}

		return bucket.Put(key, hBytes)
	})
}

func (s *RequestStore) GetTrackerHeads(chainID string, provider common.Address) ([]commitment.Head, error) {
	prefix := getPrefixKey(chainID, provider)
	var heads []commitment.Head

	err := s.db.View(func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(trackerBucketName)
		if bucket == nil {
			return ErrCorruptedKeeperDB
		}

		cursor := bucket.ReadCursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var h storedHead
			if err := rlp.DecodeBytes(v, &h); err != nil {
				return fmt.Errorf("%w: %w", ErrCorruptedKeeperDB, err)
			}
			heads = append(heads, commitment.Head{
				ChainOffset:    h.ChainOffset,
				SequenceNumber: h.SequenceNumber,
				Value:          h.Value,
			})
		}

		return nil
	}, func() {
		heads = nil
	})

	if err != nil {
		return nil, err
	}

	return heads, nil
}
