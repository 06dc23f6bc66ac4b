package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"askdocs/internal/domain"
)

var bucketDocs = []byte("documents")

// BoltStore keeps documents as JSON values in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the bbolt file at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocs)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).Put([]byte(doc.ID), data)
	})
}

func (s *BoltStore) Get(ctx context.Context, id string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

func (s *BoltStore) List(ctx context.Context) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(_, v []byte) error {
			var doc domain.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return err
			}
			out = append(out, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortDocuments(out)
	return out, nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
