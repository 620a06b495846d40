package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is one stored login.
type Credential struct {
	BaseURL   string
	Token     string
	TokenType string
	Email     string
	UpdatedAt time.Time
}

// SQLiteTokenStore keeps one token per API base URL in the credentials table,
// so switching between backends does not lose either login.
type SQLiteTokenStore struct {
	db      *DB
	baseURL string
}

// NewSQLiteTokenStore returns a token store scoped to baseURL.
func NewSQLiteTokenStore(db *DB, baseURL string) *SQLiteTokenStore {
	return &SQLiteTokenStore{db: db, baseURL: baseURL}
}

// Load returns the stored token, or "" if there is none.
func (s *SQLiteTokenStore) Load() (string, error) {
	c, err := s.Credential()
	if err != nil || c == nil {
		return "", err
	}
	return c.Token, nil
}

// Credential returns the full stored row, or nil if there is none.
func (s *SQLiteTokenStore) Credential() (*Credential, error) {
	var c Credential
	var updatedAt string
	err := s.db.sql.QueryRow(
		`SELECT base_url, token, token_type, email, updated_at FROM credentials WHERE base_url = ?`,
		s.baseURL,
	).Scan(&c.BaseURL, &c.Token, &c.TokenType, &c.Email, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	c.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return &c, nil
}

// Save stores token for the base URL, replacing any previous one.
func (s *SQLiteTokenStore) Save(token string) error {
	return s.SaveCredential(Credential{Token: token, TokenType: "bearer"})
}

// SaveCredential stores c under the store's base URL.
func (s *SQLiteTokenStore) SaveCredential(c Credential) error {
	if c.Token == "" {
		return errors.New("refusing to store empty token")
	}
	if c.TokenType == "" {
		c.TokenType = "bearer"
	}
	_, err := s.db.sql.Exec(
		`INSERT INTO credentials (base_url, token, token_type, email, updated_at)
		 VALUES (?, ?, ?, ?, datetime('now'))
		 ON CONFLICT(base_url) DO UPDATE SET
		   token = excluded.token,
		   token_type = excluded.token_type,
		   email = excluded.email,
		   updated_at = excluded.updated_at`,
		s.baseURL, c.Token, c.TokenType, c.Email,
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// Clear removes the token for the base URL. Clearing an empty store is not an error.
func (s *SQLiteTokenStore) Clear() error {
	if _, err := s.db.sql.Exec(`DELETE FROM credentials WHERE base_url = ?`, s.baseURL); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}

// BaseURLs lists every backend with a stored login, most recent first.
func (db *DB) BaseURLs() ([]string, error) {
	rows, err := db.sql.Query(`SELECT base_url FROM credentials ORDER BY updated_at DESC, base_url`)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
