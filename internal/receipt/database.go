package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	usersBucketName  = "users"
	globalBucketName = "receipts"
)

// ErrNotFound is returned when a receipt does not exist for the user
var ErrNotFound = errors.New("receipt not found")

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt assigns the receipt a document ID unique within the user's
	// collection and stores it alongside a global copy
	SaveReceipt(userID string, receipt *Receipt) error

	// GetReceipt retrieves one of the user's receipts by document ID
	GetReceipt(userID, id string) (*Receipt, error)

	// ListReceipts returns the user's receipts, newest first
	ListReceipts(userID string) ([]*Receipt, error)

	// DeleteReceipt removes a receipt and its global copy
	DeleteReceipt(userID, id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
// Each user has a nested bucket under "users"; "receipts" holds the global copies.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(usersBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(globalBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func userBucket(tx *bbolt.Tx, userID string) *bbolt.Bucket {
	return tx.Bucket([]byte(usersBucketName)).Bucket([]byte(userID))
}

// SaveReceipt saves a receipt under a collision-free document ID.
// The ID is chosen inside the write transaction so concurrent saves never share one.
func (b *BoltDB) SaveReceipt(userID string, receipt *Receipt) error {
	if userID == "" {
		return errors.New("user id required")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(usersBucketName)).CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return fmt.Errorf("creating user bucket: %w", err)
		}

		base := baseDocumentID(receipt)
		id := base
		for suffix := 2; bucket.Get([]byte(id)) != nil; suffix++ {
			id = fmt.Sprintf("%s-%d", base, suffix)
		}
		receipt.ID = id
		receipt.Metadata.UserID = userID

		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		if err := bucket.Put([]byte(id), data); err != nil {
			return err
		}

		global, err := json.Marshal(globalReceipt{Receipt: receipt, UserID: userID, DocumentID: id})
		if err != nil {
			return fmt.Errorf("marshaling global receipt: %w", err)
		}
		return tx.Bucket([]byte(globalBucketName)).Put([]byte(globalDocumentID(id, userID)), global)
	})
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(userID, id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all of a user's receipts
func (b *BoltDB) ListReceipts(userID string) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].Metadata.CreatedAt.After(receipts[j].Metadata.CreatedAt)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(userID, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := userBucket(tx, userID)
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket([]byte(globalBucketName)).Delete([]byte(globalDocumentID(id, userID)))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
