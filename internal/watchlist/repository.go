// Package watchlist tracks persons of interest: enrolled reference
// embeddings, periodic matching against the identity index, and alert
// dedup against the last sighting already reported.
package watchlist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/argus-vision/argus/internal/identity"
)

var ErrNotFound = errors.New("watchlist: entry not found")

// Entry is one person of interest. LastAlertedSeq is the sighting
// sequence last reported for this entry; zero means never alerted.
type Entry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ProfilePhoto   string    `json:"profile_photo,omitempty"`
	LastAlertedSeq int64     `json:"last_alerted_seq"`
	CreatedAt      time.Time `json:"created_at"`
	EmbeddingCount int       `json:"embedding_count"`
}

// Repository is the watchlist store.
type Repository interface {
	CreateEntry(ctx context.Context, entry *Entry, vectors [][]float32) error
	GetEntry(ctx context.Context, id string) (*Entry, error)
	ListEntries(ctx context.Context) ([]*Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	EntryVectors(ctx context.Context, entryID string) ([][]float32, error)
	SetLastAlerted(ctx context.Context, entryID string, seq int64) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateEntry(ctx context.Context, entry *Entry, vectors [][]float32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO watchlist_entries (id, name, profile_photo, last_alerted_seq, created_at) VALUES (?, ?, ?, NULL, ?)",
		entry.ID, entry.Name, nullString(entry.ProfilePhoto), entry.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	for _, vec := range vectors {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO watchlist_embeddings (entry_id, vector) VALUES (?, ?)",
			entry.ID, identity.EncodeVector(vec)); err != nil {
			return err
		}
	}
	entry.EmbeddingCount = len(vectors)

	return tx.Commit()
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.profile_photo, e.last_alerted_seq, e.created_at,
		       (SELECT COUNT(*) FROM watchlist_embeddings WHERE entry_id = e.id)
		FROM watchlist_entries e WHERE e.id = ?
	`, id)

	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return entry, err
}

func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.profile_photo, e.last_alerted_seq, e.created_at,
		       (SELECT COUNT(*) FROM watchlist_embeddings WHERE entry_id = e.id)
		FROM watchlist_entries e ORDER BY e.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM watchlist_entries WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) EntryVectors(ctx context.Context, entryID string) ([][]float32, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT vector FROM watchlist_embeddings WHERE entry_id = ? ORDER BY id", entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vectors [][]float32
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		vectors = append(vectors, identity.DecodeVector(blob))
	}
	return vectors, rows.Err()
}

func (r *SQLiteRepository) SetLastAlerted(ctx context.Context, entryID string, seq int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE watchlist_entries SET last_alerted_seq = ? WHERE id = ?", seq, entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(scan func(dest ...any) error) (*Entry, error) {
	var entry Entry
	var photo sql.NullString
	var lastSeq sql.NullInt64
	var createdAt string

	if err := scan(&entry.ID, &entry.Name, &photo, &lastSeq, &createdAt, &entry.EmbeddingCount); err != nil {
		return nil, err
	}
	entry.ProfilePhoto = photo.String
	entry.LastAlertedSeq = lastSeq.Int64
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &entry, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
