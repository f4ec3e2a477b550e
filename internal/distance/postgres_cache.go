package distance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresCache is a SQL-backed travel cache keyed by (origin, destination).
type PostgresCache struct {
	DB *sql.DB
}

func NewPostgresCache(dsn string) (*PostgresCache, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresCache{DB: db}, nil
}

func (s *PostgresCache) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS travel_cache (
		origin      TEXT NOT NULL,
		destination TEXT NOT NULL,
		minutes     DOUBLE PRECISION NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (origin, destination)
	);`)
	if err != nil {
		return fmt.Errorf("travel cache: ensure schema: %w", err)
	}
	return nil
}

// GetMany groups the pairs by origin and issues one query per origin.
func (s *PostgresCache) GetMany(ctx context.Context, pairs []Pair) (map[Pair]float64, error) {
	if s.DB == nil {
		return nil, errors.New("travel cache: db is nil")
	}
	byOrigin := map[string][]string{}
	var origins []string
	for _, p := range pairs {
		if _, ok := byOrigin[p.From]; !ok {
			origins = append(origins, p.From)
		}
		byOrigin[p.From] = append(byOrigin[p.From], p.To)
	}

	out := make(map[Pair]float64, len(pairs))
	q := `
	SELECT destination, minutes
	FROM travel_cache
	WHERE origin = $1
		AND destination = ANY($2::text[]);
	`
	for _, origin := range origins {
		rows, err := s.DB.QueryContext(ctx, q, origin, byOrigin[origin])
		if err != nil {
			return nil, fmt.Errorf("travel cache: query: %w", err)
		}
		for rows.Next() {
			var dest string
			var minutes float64
			if err := rows.Scan(&dest, &minutes); err != nil {
				rows.Close()
				return nil, fmt.Errorf("travel cache: scan: %w", err)
			}
			out[Pair{origin, dest}] = minutes
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("travel cache: row iteration: %w", err)
		}
	}
	return out, nil
}

// PutMany upserts every pair in one statement.
func (s *PostgresCache) PutMany(ctx context.Context, minutes map[Pair]float64) error {
	if s.DB == nil {
		return errors.New("travel cache: db is nil")
	}
	if len(minutes) == 0 {
		return nil
	}
	origins := make([]string, 0, len(minutes))
	dests := make([]string, 0, len(minutes))
	values := make([]float64, 0, len(minutes))
	for p, x := range minutes {
		origins = append(origins, p.From)
		dests = append(dests, p.To)
		values = append(values, x)
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO travel_cache (origin, destination, minutes)
	SELECT * FROM unnest($1::text[], $2::text[], $3::float8[])
	ON CONFLICT (origin, destination) DO UPDATE
	SET minutes = EXCLUDED.minutes,
		updated_at = now();
	`, origins, dests, values)
	if err != nil {
		return fmt.Errorf("travel cache: upsert %d pairs: %w", len(minutes), err)
	}
	return nil
}

func (s *PostgresCache) Close() error { return s.DB.Close() }
