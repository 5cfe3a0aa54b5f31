package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/argus-vision/argus/internal/wire"
)

// Repository is the person/sighting document store. Per-record updates
// are atomic (each method runs in its own transaction) but there is no
// transaction spanning an index search plus a store write; the
// Resolver serializes that sequence itself.
type Repository interface {
	CreatePerson(ctx context.Context, embeddingID int64, vector []float32, loc wire.Location, seenAt time.Time) (*Person, error)
	AppendSighting(ctx context.Context, embeddingID, newEmbeddingID int64, vector []float32, loc wire.Location, seenAt time.Time) error
	FindPersonByEmbeddingID(ctx context.Context, embeddingID int64) (*Person, error)
	GetPerson(ctx context.Context, id string) (*Person, error)
	ListPersons(ctx context.Context) ([]*Person, error)
	CountPersons(ctx context.Context) (int, error)
	SetPersonName(ctx context.Context, id, name string) error
	LatestSighting(ctx context.Context, personID string) (*Sighting, error)
	AllEmbeddings(ctx context.Context) ([]StoredEmbedding, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreatePerson(ctx context.Context, embeddingID int64, vector []float32, loc wire.Location, seenAt time.Time) (*Person, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p := &Person{
		ID:           NewID(),
		EmbeddingIDs: []int64{embeddingID},
		CreatedAt:    time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO persons (id, name, created_at) VALUES (?, NULL, ?)",
		p.ID, p.CreatedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO person_embeddings (embedding_id, person_id, vector) VALUES (?, ?, ?)",
		embeddingID, p.ID, EncodeVector(vector)); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO sightings (person_id, lat, lng, seen_at) VALUES (?, ?, ?, ?)",
		p.ID, loc.Lat, loc.Lng, seenAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.Sightings = []Sighting{{Seq: seq, Location: loc, SeenAt: seenAt.UTC()}}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) AppendSighting(ctx context.Context, embeddingID, newEmbeddingID int64, vector []float32, loc wire.Location, seenAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var personID string
	err = tx.QueryRowContext(ctx,
		"SELECT person_id FROM person_embeddings WHERE embedding_id = ?", embeddingID).Scan(&personID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO person_embeddings (embedding_id, person_id, vector) VALUES (?, ?, ?)",
		newEmbeddingID, personID, EncodeVector(vector)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO sightings (person_id, lat, lng, seen_at) VALUES (?, ?, ?, ?)",
		personID, loc.Lat, loc.Lng, seenAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) FindPersonByEmbeddingID(ctx context.Context, embeddingID int64) (*Person, error) {
	var personID string
	err := r.db.QueryRowContext(ctx,
		"SELECT person_id FROM person_embeddings WHERE embedding_id = ?", embeddingID).Scan(&personID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetPerson(ctx, personID)
}

func (r *SQLiteRepository) GetPerson(ctx context.Context, id string) (*Person, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM persons WHERE id = ?", id)

	p, err := scanPerson(row)
	if err != nil || p == nil {
		return p, err
	}
	if err := r.loadPersonDetails(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SQLiteRepository) ListPersons(ctx context.Context) ([]*Person, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM persons ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*Person
	for rows.Next() {
		var p Person
		var name sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &name, &createdAt); err != nil {
			return nil, err
		}
		p.Name = name.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		persons = append(persons, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range persons {
		if err := r.loadPersonDetails(ctx, p); err != nil {
			return nil, err
		}
	}
	return persons, nil
}

func (r *SQLiteRepository) CountPersons(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) SetPersonName(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE persons SET name = ? WHERE id = ?", name, id)
	return err
}

func (r *SQLiteRepository) LatestSighting(ctx context.Context, personID string) (*Sighting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT seq, lat, lng, seen_at FROM sightings
		WHERE person_id = ? ORDER BY seq DESC LIMIT 1
	`, personID)

	var s Sighting
	var seenAt string
	err := row.Scan(&s.Seq, &s.Location.Lat, &s.Location.Lng, &seenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.SeenAt, _ = time.Parse(time.RFC3339, seenAt)
	return &s, nil
}

func (r *SQLiteRepository) AllEmbeddings(ctx context.Context) ([]StoredEmbedding, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT embedding_id, vector FROM person_embeddings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeddings []StoredEmbedding
	for rows.Next() {
		var e StoredEmbedding
		var blob []byte
		if err := rows.Scan(&e.ID, &blob); err != nil {
			return nil, err
		}
		e.Vector = DecodeVector(blob)
		embeddings = append(embeddings, e)
	}
	return embeddings, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) loadPersonDetails(ctx context.Context, p *Person) error {
	embRows, err := r.db.QueryContext(ctx,
		"SELECT embedding_id FROM person_embeddings WHERE person_id = ? ORDER BY embedding_id", p.ID)
	if err != nil {
		return err
	}
	defer embRows.Close()

	p.EmbeddingIDs = nil
	for embRows.Next() {
		var eid int64
		if err := embRows.Scan(&eid); err != nil {
			return err
		}
		p.EmbeddingIDs = append(p.EmbeddingIDs, eid)
	}
	if err := embRows.Err(); err != nil {
		return err
	}

	sightRows, err := r.db.QueryContext(ctx,
		"SELECT seq, lat, lng, seen_at FROM sightings WHERE person_id = ? ORDER BY seq", p.ID)
	if err != nil {
		return err
	}
	defer sightRows.Close()

	p.Sightings = nil
	for sightRows.Next() {
		var s Sighting
		var seenAt string
		if err := sightRows.Scan(&s.Seq, &s.Location.Lat, &s.Location.Lng, &seenAt); err != nil {
			return err
		}
		s.SeenAt, _ = time.Parse(time.RFC3339, seenAt)
		p.Sightings = append(p.Sightings, s)
	}
	return sightRows.Err()
}

func scanPerson(row *sql.Row) (*Person, error) {
	var p Person
	var name sql.NullString
	var createdAt string

	err := row.Scan(&p.ID, &name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Name = name.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}
