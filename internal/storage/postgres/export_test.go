//go:build integration_test

package postgres

import "context"

// Truncate empties every table so each test starts from a clean database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `TRUNCATE scores, questions, quizzes RESTART IDENTITY;`)
	return err
}
