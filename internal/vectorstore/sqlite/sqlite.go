package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"askdocs/internal/domain"
	"askdocs/internal/vectorstore"
)

const busyTimeoutMillis = 5000

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_info (
    id    INTEGER PRIMARY KEY CHECK (id = 1),
    dim   INTEGER NOT NULL,
    count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_vectors (
    pos       INTEGER PRIMARY KEY,
    embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_metadata (
    pos            INTEGER PRIMARY KEY,
    document_id    TEXT NOT NULL,
    chunk_id       INTEGER NOT NULL,
    start_char_pos INTEGER NOT NULL,
    end_char_pos   INTEGER NOT NULL
);
`

// Store keeps the snapshot in a SQLite database. Write replaces all rows
// inside one transaction.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for a throwaway store. Several handles may share one file;
// lock contention waits up to busyTimeoutMillis.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, busyTimeoutMillis))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Name returns the identifier of this store implementation.
func (s *Store) Name() string { return "sqlite" }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Write replaces the stored snapshot.
func (s *Store) Write(ctx context.Context, snap *vectorstore.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM snapshot_info`,
		`DELETE FROM snapshot_vectors`,
		`DELETE FROM snapshot_metadata`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	vecStmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_vectors(pos, embedding) VALUES(?, ?)`)
	if err != nil {
		return err
	}
	defer vecStmt.Close()
	metaStmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_metadata(pos, document_id, chunk_id, start_char_pos, end_char_pos) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer metaStmt.Close()

	for i, v := range snap.Vectors {
		if _, err := vecStmt.ExecContext(ctx, i, vectorstore.EncodeVector(v)); err != nil {
			return err
		}
		m := snap.Metadata[i]
		if _, err := metaStmt.ExecContext(ctx, i, m.DocumentID, m.ChunkID, m.Start, m.End); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshot_info(id, dim, count) VALUES(1, ?, ?)`, snap.Dim, len(snap.Vectors)); err != nil {
		return err
	}
	return tx.Commit()
}

// Read returns the stored snapshot or domain.ErrNotFound. All queries run in
// one read transaction so a concurrent Write from another handle is seen
// entirely or not at all.
func (s *Store) Read(ctx context.Context) (*vectorstore.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := &vectorstore.Snapshot{}
	var count int
	err = tx.QueryRowContext(ctx, `SELECT dim, count FROM snapshot_info WHERE id = 1`).Scan(&snap.Dim, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no snapshot in sqlite store", domain.ErrNotFound)
		}
		return nil, err
	}
	if snap.Vectors, err = readVectors(ctx, tx, count); err != nil {
		return nil, err
	}
	if snap.Metadata, err = readMetadata(ctx, tx, count); err != nil {
		return nil, err
	}
	if len(snap.Vectors) != count || len(snap.Metadata) != count {
		return nil, fmt.Errorf("%w: header count %d, %d vectors, %d metadata entries",
			domain.ErrCorruptSnapshot, count, len(snap.Vectors), len(snap.Metadata))
	}
	return snap, nil
}

func readVectors(ctx context.Context, tx *sql.Tx, count int) ([][]float32, error) {
	rows, err := tx.QueryContext(ctx, `SELECT embedding FROM snapshot_vectors ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([][]float32, 0, count)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		vec, err := vectorstore.DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, rows.Err()
}

func readMetadata(ctx context.Context, tx *sql.Tx, count int) ([]domain.Metadata, error) {
	rows, err := tx.QueryContext(ctx, `SELECT document_id, chunk_id, start_char_pos, end_char_pos FROM snapshot_metadata ORDER BY pos`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Metadata, 0, count)
	for rows.Next() {
		var m domain.Metadata
		if err := rows.Scan(&m.DocumentID, &m.ChunkID, &m.Start, &m.End); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ vectorstore.SnapshotStore = (*Store)(nil)
