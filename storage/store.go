package storage

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"dropshop/native/catalog"
	"dropshop/state"
)

var (
	bucketLedger = []byte("ledger")
	bucketShops  = []byte("shops")
	bucketParams = []byte("params")

	keySnapshot = []byte("snapshot")
	keyCurrent  = []byte("current")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store persists the marketplace ledger, the shop directory, and platform
// parameters in a BoltDB file. The ledger is written as one snapshot blob;
// operations are low-frequency settlement calls, not a hot path.
type Store struct {
	db *bolt.DB
}

// shopRecord mirrors the shop directory bucket payload.
type shopRecord struct {
	Owner       string `json:"owner"`
	Manager     string `json:"manager"`
	Name        string `json:"name"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

// paramsRecord mirrors the params bucket payload.
type paramsRecord struct {
	FeeBps    uint32 `json:"feeBps"`
	FeeWallet string `json:"feeWallet"`
}

// NewStore initialises (and migrates) the BoltDB-backed store.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLedger, bucketShops, bucketParams} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot overwrites the persisted ledger snapshot.
func (s *Store) SaveSnapshot(snap *state.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("storage: nil snapshot")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLedger).Put(keySnapshot, payload)
	})
}

// LoadSnapshot returns the persisted ledger snapshot, or ErrNotFound when the
// store has never been written.
func (s *Store) LoadSnapshot() (*state.Snapshot, error) {
	var snap *state.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketLedger).Get(keySnapshot)
		if raw == nil {
			return ErrNotFound
		}
		snap = &state.Snapshot{}
		return json.Unmarshal(raw, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// PutShop upserts a shop directory entry keyed by its shop address.
func (s *Store) PutShop(info catalog.ShopInfo) error {
	record := shopRecord{
		Owner:       hex.EncodeToString(info.Owner[:]),
		Manager:     hex.EncodeToString(info.Manager[:]),
		Name:        info.Name,
		LogoURL:     info.LogoURL,
		Description: info.Description,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShops).Put(info.Address[:], payload)
	})
}

// GetShop fetches a shop directory entry.
func (s *Store) GetShop(addr [20]byte) (catalog.ShopInfo, error) {
	var info catalog.ShopInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketShops).Get(addr[:])
		if raw == nil {
			return ErrNotFound
		}
		var record shopRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		decoded, err := decodeShop(addr, record)
		if err != nil {
			return err
		}
		info = decoded
		return nil
	})
	return info, err
}

// ListShops returns every shop directory entry in key order.
func (s *Store) ListShops() ([]catalog.ShopInfo, error) {
	var out []catalog.ShopInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShops).ForEach(func(k, v []byte) error {
			if len(k) != 20 {
				return fmt.Errorf("storage: malformed shop key %x", k)
			}
			var addr [20]byte
			copy(addr[:], k)
			var record shopRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			decoded, err := decodeShop(addr, record)
			if err != nil {
				return err
			}
			out = append(out, decoded)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveParams overwrites the persisted platform parameters.
func (s *Store) SaveParams(params catalog.Params) error {
	payload, err := json.Marshal(paramsRecord{
		FeeBps:    params.FeeBps,
		FeeWallet: hex.EncodeToString(params.FeeWallet[:]),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParams).Put(keyCurrent, payload)
	})
}

// LoadParams returns the persisted platform parameters.
func (s *Store) LoadParams() (catalog.Params, error) {
	var params catalog.Params
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketParams).Get(keyCurrent)
		if raw == nil {
			return ErrNotFound
		}
		var record paramsRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		wallet, err := parseAddr(record.FeeWallet)
		if err != nil {
			return err
		}
		params = catalog.Params{FeeBps: record.FeeBps, FeeWallet: wallet}
		return nil
	})
	return params, err
}

func decodeShop(addr [20]byte, record shopRecord) (catalog.ShopInfo, error) {
	owner, err := parseAddr(record.Owner)
	if err != nil {
		return catalog.ShopInfo{}, err
	}
	manager, err := parseAddr(record.Manager)
	if err != nil {
		return catalog.ShopInfo{}, err
	}
	return catalog.ShopInfo{
		Address:     addr,
		Owner:       owner,
		Manager:     manager,
		Name:        record.Name,
		LogoURL:     record.LogoURL,
		Description: record.Description,
	}, nil
}

func parseAddr(v string) ([20]byte, error) {
	var out [20]byte
	decoded, err := hex.DecodeString(v)
	if err != nil || len(decoded) != 20 {
		return out, fmt.Errorf("storage: invalid address %q", v)
	}
	copy(out[:], decoded)
	return out, nil
}
