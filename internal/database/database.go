// internal/database/database.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/joachimageron/WhoIsIt-sub003/internal/models"
)

// Pool is the shared connection pool. Nil when the process runs without
// persistence; all helpers treat that as a soft failure.
var Pool *pgxpool.Pool

// ErrNoDatabase is returned when a query is attempted without a pool.
var ErrNoDatabase = errors.New("database: no connection pool")

// Connect initializes the shared pool and verifies connectivity.
func Connect(ctx context.Context, url string) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("database: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("database: ping: %w", err)
	}
	Pool = pool
	logrus.Info("database: connected")
	return nil
}

// Close releases the shared pool.
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}

// GetUserByID fetches an account record. The core only reads it for
// display names and ownership checks.
func GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	var u models.User
	err := Pool.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("database: user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("database: get user: %w", err)
	}
	return &u, nil
}

// GetCharacter fetches one character from the content catalog.
func GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	var c models.Character
	err := Pool.QueryRow(ctx,
		`SELECT id, name, COALESCE(image_url, '') FROM characters WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("database: character %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("database: get character: %w", err)
	}
	return &c, nil
}

// CharacterExists reports whether a character id is part of the catalog.
// A missing row is a definitive false, not an error.
func CharacterExists(ctx context.Context, id string) (bool, error) {
	if Pool == nil {
		return false, ErrNoDatabase
	}
	var one int
	err := Pool.QueryRow(ctx, `SELECT 1 FROM characters WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("database: character exists: %w", err)
	}
	return true, nil
}

// ListCharacterIDs returns the ids of the active character set, used to
// deal secret characters at game start.
func ListCharacterIDs(ctx context.Context) ([]string, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	rows, err := Pool.Query(ctx, `SELECT id FROM characters ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("database: list characters: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database: scan character id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveRoomSnapshot upserts the latest room state as JSON. Best-effort: the
// in-memory room stays authoritative during an active session, this is
// recovery material only.
func SaveRoomSnapshot(ctx context.Context, code string, state interface{}) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("database: marshal room snapshot: %w", err)
	}
	_, err = Pool.Exec(ctx,
		`INSERT INTO room_snapshots (code, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (code) DO UPDATE SET state = $2, updated_at = now()`,
		code, payload,
	)
	if err != nil {
		return fmt.Errorf("database: save room snapshot: %w", err)
	}
	return nil
}

// LoadRoomSnapshot fetches the last persisted state for a room code.
func LoadRoomSnapshot(ctx context.Context, code string) ([]byte, error) {
	if Pool == nil {
		return nil, ErrNoDatabase
	}
	var payload []byte
	err := Pool.QueryRow(ctx,
		`SELECT state FROM room_snapshots WHERE code = $1`, code,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("database: no snapshot for room %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("database: load room snapshot: %w", err)
	}
	return payload, nil
}

// Store adapts the package-level helpers to the narrow collaborator
// interfaces consumed by the game core.
type Store struct{}

// SaveRoomSnapshot implements the game snapshot store.
func (Store) SaveRoomSnapshot(ctx context.Context, code string, state interface{}) error {
	return SaveRoomSnapshot(ctx, code, state)
}

// CharacterExists implements the game character catalog.
func (Store) CharacterExists(ctx context.Context, id string) (bool, error) {
	return CharacterExists(ctx, id)
}
