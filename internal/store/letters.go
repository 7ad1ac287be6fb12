package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"letters/api/internal/recommendation"
)

// LetterRefPrefix marks letters kept in the database rather than object storage.
const LetterRefPrefix = "db:"

// PutLetter stores letter content in the letters table. It serves
// deployments without object storage.
func (s *Store) PutLetter(ctx context.Context, requestID, key, content string) (string, error) {
	_, err := s.exec(ctx, `
		INSERT INTO letters (object_key, request_id, content, created_at) VALUES (?, ?, ?, ?)
	`, key, requestID, content, toMillis(s.now()))
	if err != nil {
		return "", fmt.Errorf("put letter: %w", err)
	}
	return LetterRefPrefix + key, nil
}

func (s *Store) GetLetter(ctx context.Context, ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, LetterRefPrefix)
	if !ok {
		return "", fmt.Errorf("get letter: unsupported ref %q", ref)
	}
	var content string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT content FROM letters WHERE object_key = ?`), key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", recommendation.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get letter: %w", err)
	}
	return content, nil
}

func (s *Store) DeleteLetter(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, LetterRefPrefix)
	if !ok {
		return fmt.Errorf("delete letter: unsupported ref %q", ref)
	}
	if _, err := s.exec(ctx, `DELETE FROM letters WHERE object_key = ?`, key); err != nil {
		return fmt.Errorf("delete letter: %w", err)
	}
	return nil
}
