package persistence

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/infrastructure/db"
	"github.com/zinrai/fabric-portal/internal/metrics"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ domain.UnitOfWork = (*Session)(nil)

// Session is the unit of work for one inbound operation. It owns at most one
// open transaction; repositories obtained from it run their queries inside
// that transaction when one is open. A Session is not safe for concurrent use
// and must not be used after Close.
type Session struct {
	db      *db.DB
	tx      *sql.Tx
	logger  *logrus.Entry
	metrics *metrics.Registry
	closed  bool

	users   *UserRepository
	sshKeys *SSHKeyRepository
	vlanIDs *VlanRepository
}

// NewSession opens a unit of work on database. m may be nil.
func NewSession(database *db.DB, logger *logrus.Entry, m *metrics.Registry) *Session {
	return &Session{
		db:      database,
		logger:  logger,
		metrics: m,
	}
}

func (s *Session) BeginTransaction(ctx context.Context) error {
	if s.closed {
		return errors.Wrap(domain.ErrInvalidState, "cannot begin transaction, the unit of work is closed")
	}
	if s.tx != nil {
		return errors.Wrap(domain.ErrInvalidState, "cannot begin transaction, a transaction already exists for this unit of work")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	s.tx = tx
	s.logger.Debug("transaction started")
	return nil
}

func (s *Session) CommitTransaction() error {
	if s.tx == nil {
		return errors.Wrap(domain.ErrInvalidState, "cannot commit transaction, a transaction does not exist for this unit of work")
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		s.countTransaction("commit_failed")
		return errors.Wrap(err, "failed to commit transaction")
	}
	s.countTransaction("commit")
	s.logger.Debug("transaction committed")
	return nil
}

func (s *Session) RollbackTransaction() error {
	if s.tx == nil {
		return errors.Wrap(domain.ErrInvalidState, "cannot rollback transaction, a transaction does not exist for this unit of work")
	}
	tx := s.tx
	s.tx = nil
	s.countTransaction("rollback")
	if err := tx.Rollback(); err != nil {
		return errors.Wrap(err, "failed to rollback transaction")
	}
	s.logger.Debug("transaction rolled back")
	return nil
}

func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Close rolls back any open transaction. The session rejects every later call.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.RollbackTransaction()
	}
	s.closed = true
	return err
}

func (s *Session) Users() domain.UserRepository {
	if s.users == nil {
		s.users = &UserRepository{s: s}
	}
	return s.users
}

func (s *Session) SSHKeys() domain.SSHKeyRepository {
	if s.sshKeys == nil {
		s.sshKeys = &SSHKeyRepository{s: s}
	}
	return s.sshKeys
}

func (s *Session) VlanIDs() domain.VlanRepository {
	if s.vlanIDs == nil {
		s.vlanIDs = &VlanRepository{s: s}
	}
	return s.vlanIDs
}

func (s *Session) conn() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Session) prepare(query string) (string, error) {
	if s.closed {
		return "", errors.Wrap(domain.ErrInvalidState, "unit of work used after close")
	}
	query = s.db.Rebind(query)
	s.logger.WithField("query", query).Debug("executing query")
	return query, nil
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query, err := s.prepare(query)
	if err != nil {
		return nil, err
	}
	res, err := s.conn().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(err)
	}
	return res, nil
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query, err := s.prepare(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(err)
	}
	return rows, nil
}

// scanRow runs a single-row query. sql.ErrNoRows is returned as is and does
// not count as a failure.
func (s *Session) scanRow(ctx context.Context, dest []any, query string, args ...any) error {
	query, err := s.prepare(query)
	if err != nil {
		return err
	}
	err = s.conn().QueryRowContext(ctx, query, args...).Scan(dest...)
	if err == sql.ErrNoRows {
		return err
	}
	if err != nil {
		return s.fail(err)
	}
	return nil
}

// fail rolls back the open transaction, if any, and returns err translated
// into the domain taxonomy.
func (s *Session) fail(err error) error {
	if s.tx != nil {
		tx := s.tx
		s.tx = nil
		s.countTransaction("rollback")
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Warn("rollback after query failure failed")
		} else {
			s.logger.WithError(err).Debug("transaction rolled back after query failure")
		}
	}
	if db.IsUniqueViolation(err) || db.IsForeignKeyViolation(err) {
		return errors.Wrap(domain.ErrConflict, err.Error())
	}
	return err
}

func (s *Session) countTransaction(outcome string) {
	if s.metrics != nil {
		s.metrics.TransactionsTotal.WithLabelValues(outcome).Inc()
	}
}
