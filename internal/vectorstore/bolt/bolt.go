package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"askdocs/internal/domain"
	"askdocs/internal/vectorstore"
)

var (
	bucketInfo     = []byte("snapshot")
	bucketVectors  = []byte("vectors")
	bucketMetadata = []byte("metadata")

	keyDim   = []byte("dim")
	keyCount = []byte("count")
)

// Store keeps the snapshot in a single bbolt file. Write recreates all
// buckets inside one transaction, so a failed write leaves the previous
// snapshot untouched.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Name returns the identifier of this store implementation.
func (s *Store) Name() string { return "bolt" }

// Close releases the underlying file.
func (s *Store) Close() error { return s.db.Close() }

// Write replaces the stored snapshot.
func (s *Store) Write(ctx context.Context, snap *vectorstore.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketInfo, bucketVectors, bucketMetadata} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		vb, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		mb, err := tx.CreateBucket(bucketMetadata)
		if err != nil {
			return err
		}
		for i, v := range snap.Vectors {
			if err := vb.Put(itob(uint64(i)), vectorstore.EncodeVector(v)); err != nil {
				return err
			}
			data, err := json.Marshal(snap.Metadata[i])
			if err != nil {
				return err
			}
			if err := mb.Put(itob(uint64(i)), data); err != nil {
				return err
			}
		}
		// The info bucket marks a complete snapshot.
		ib, err := tx.CreateBucket(bucketInfo)
		if err != nil {
			return err
		}
		if err := ib.Put(keyDim, itob(uint64(snap.Dim))); err != nil {
			return err
		}
		return ib.Put(keyCount, itob(uint64(len(snap.Vectors))))
	})
}

// Read returns the stored snapshot or domain.ErrNotFound.
func (s *Store) Read(ctx context.Context) (*vectorstore.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &vectorstore.Snapshot{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		ib := tx.Bucket(bucketInfo)
		if ib == nil {
			return fmt.Errorf("%w: no snapshot in bolt store", domain.ErrNotFound)
		}
		dimRaw, countRaw := ib.Get(keyDim), ib.Get(keyCount)
		if len(dimRaw) != 8 || len(countRaw) != 8 {
			return fmt.Errorf("%w: bad snapshot header", domain.ErrCorruptSnapshot)
		}
		snap.Dim = int(binary.BigEndian.Uint64(dimRaw))
		count := int(binary.BigEndian.Uint64(countRaw))

		vb, mb := tx.Bucket(bucketVectors), tx.Bucket(bucketMetadata)
		if vb == nil || mb == nil {
			return fmt.Errorf("%w: missing buckets", domain.ErrCorruptSnapshot)
		}
		snap.Vectors = make([][]float32, 0, count)
		if err := vb.ForEach(func(_, v []byte) error {
			vec, err := vectorstore.DecodeVector(v)
			if err != nil {
				return err
			}
			snap.Vectors = append(snap.Vectors, vec)
			return nil
		}); err != nil {
			return err
		}
		snap.Metadata = make([]domain.Metadata, 0, count)
		if err := mb.ForEach(func(_, v []byte) error {
			var m domain.Metadata
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("%w: decode metadata: %v", domain.ErrCorruptSnapshot, err)
			}
			snap.Metadata = append(snap.Metadata, m)
			return nil
		}); err != nil {
			return err
		}
		if len(snap.Vectors) != count || len(snap.Metadata) != count {
			return fmt.Errorf("%w: header count %d, %d vectors, %d metadata entries",
				domain.ErrCorruptSnapshot, count, len(snap.Vectors), len(snap.Metadata))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Keys are big-endian so that cursor order equals insertion order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ vectorstore.SnapshotStore = (*Store)(nil)
