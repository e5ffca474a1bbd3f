package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cjeanneret/DualCap/internal/model"
)

// ErrNotLoggedIn is returned when no profile is stored.
var ErrNotLoggedIn = errors.New("store: no profile stored")

// Profile keys, kept as in the key/value layout of the mobile app.
const (
	keyPhoneNumber = "phoneNumber"
	keyBirthdate   = "birthdate"
	keyNickname    = "nickname"
	keyUserID      = "userId"
	keyToken       = "token"
)

// Profile is the locally persisted login.
type Profile struct {
	User  model.User
	Token string
}

// ArchivedMoment is a submitted pair kept on the device.
type ArchivedMoment struct {
	SessionID string
	RemoteID  string
	Location  string
	FrontURI  string
	BackURI   string
	TakenAt   time.Time
	CreatedAt time.Time
}

// DB wraps the sqlite database.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profile (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS moments (
		session_id TEXT PRIMARY KEY,
		remote_id TEXT NOT NULL,
		location TEXT,
		front_uri TEXT NOT NULL,
		back_uri TEXT NOT NULL,
		taken_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_moments_created ON moments(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// SaveProfile stores the login, replacing any previous one.
func (db *DB) SaveProfile(ctx context.Context, p Profile) error {
	values := map[string]string{
		keyPhoneNumber: p.User.PhoneNumber,
		keyBirthdate:   p.User.Birthdate,
		keyNickname:    p.User.Nickname,
		keyUserID:      strconv.Itoa(p.User.ID),
		keyToken:       p.Token,
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profile (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadProfile returns the stored login or ErrNotLoggedIn.
func (db *DB) LoadProfile(ctx context.Context) (Profile, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM profile`)
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Profile{}, fmt.Errorf("scan profile: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return Profile{}, err
	}

	if _, ok := values[keyPhoneNumber]; !ok {
		return Profile{}, ErrNotLoggedIn
	}
	id, err := strconv.Atoi(values[keyUserID])
	if err != nil {
		return Profile{}, fmt.Errorf("stored userId: %w", err)
	}
	return Profile{
		User: model.User{
			ID:          id,
			Nickname:    values[keyNickname],
			PhoneNumber: values[keyPhoneNumber],
			Birthdate:   values[keyBirthdate],
		},
		Token: values[keyToken],
	}, nil
}

// ClearProfile removes the stored login (logout).
func (db *DB) ClearProfile(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `DELETE FROM profile`)
	return err
}

// Archive records a submitted pair.
func (db *DB) Archive(ctx context.Context, m ArchivedMoment) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO moments (session_id, remote_id, location, front_uri, back_uri, taken_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.RemoteID, m.Location, m.FrontURI, m.BackURI, m.TakenAt.UTC(), m.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("archive moment: %w", err)
	}
	return nil
}

// ListArchive returns archived pairs, newest first. limit <= 0 returns all.
func (db *DB) ListArchive(ctx context.Context, limit int) ([]ArchivedMoment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT session_id, remote_id, location, front_uri, back_uri, taken_at, created_at
		 FROM moments ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer rows.Close()

	var out []ArchivedMoment
	for rows.Next() {
		var m ArchivedMoment
		var location sql.NullString
		if err := rows.Scan(&m.SessionID, &m.RemoteID, &location, &m.FrontURI, &m.BackURI, &m.TakenAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan moment: %w", err)
		}
		m.Location = location.String
		out = append(out, m)
	}
	return out, rows.Err()
}
