// Package store persists enrolled faces in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dudu/edgeid/internal/gallery"
)

// ErrNotFound is returned when the requested face does not exist.
var ErrNotFound = errors.New("store: face not found")

// Store manages the SQLite database holding enrolled faces.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema
// is initialized.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS faces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			embedding BLOB NOT NULL,
			thumbnail BLOB,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Close terminates the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts an enrolled face.
func (s *Store) Save(ctx context.Context, face gallery.KnownFace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faces (id, name, embedding, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, face.ID.String(), face.Name, embeddingToBytes(face.Embedding), face.Thumbnail,
		face.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes the face with the given id, returning ErrNotFound
// when it does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM faces WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadAll returns every enrolled face in enrollment order.
func (s *Store) LoadAll(ctx context.Context) ([]gallery.KnownFace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, embedding, thumbnail, created_at FROM faces ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faces []gallery.KnownFace
	for rows.Next() {
		var (
			idStr, name, createdAt string
			embedding, thumbnail   []byte
		)
		if err := rows.Scan(&idStr, &name, &embedding, &thumbnail, &createdAt); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("bad face id %q: %w", idStr, err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("bad created_at for face %s: %w", idStr, err)
		}
		faces = append(faces, gallery.KnownFace{
			ID:        id,
			Name:      name,
			Embedding: bytesToEmbedding(embedding),
			Thumbnail: thumbnail,
			CreatedAt: created,
		})
	}
	return faces, rows.Err()
}

// embeddingToBytes packs the vector as little-endian float32s.
func embeddingToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToEmbedding(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
