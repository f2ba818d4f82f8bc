package postgres

import (
	"context"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/domain/study"
)

// Store bundles the session and ledger repositories over one pool.
type Store struct {
	*StudyRepository
	*LedgerRepository

	conn *Connection
}

var (
	_ study.Repository       = (*Store)(nil)
	_ study.UnitOfWork       = (*Store)(nil)
	_ progression.Repository = (*Store)(nil)
)

// NewStore creates a Store on an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		StudyRepository:  NewStudyRepository(conn),
		LedgerRepository: NewLedgerRepository(conn),
		conn:             conn,
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
