package durable

import (
	"context"

	"voicedesk_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call journals in the call_journal table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a journal store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, callID uuid.UUID, entry Entry) error {
	query := `
		INSERT INTO call_journal (call_id, seq, kind, channel, payload, error, error_kind, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		callID, entry.Seq, string(entry.Kind), entry.Channel,
		entry.Payload, entry.Error, entry.ErrorKind, entry.RecordedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to append journal entry", err).WithOp("durable.Append")
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, callID uuid.UUID) ([]Entry, error) {
	query := `
		SELECT seq, kind, channel, payload, error, error_kind, recorded_at
		FROM call_journal
		WHERE call_id = $1
		ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, callID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load journal", err).WithOp("durable.Load")
	}
	defer rows.Close()

	var journal []Entry
	for rows.Next() {
		var entry Entry
		var kind string
		if err := rows.Scan(&entry.Seq, &kind, &entry.Channel, &entry.Payload, &entry.Error, &entry.ErrorKind, &entry.RecordedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan journal entry", err).WithOp("durable.Load")
		}
		entry.Kind = EntryKind(kind)
		journal = append(journal, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read journal rows", err).WithOp("durable.Load")
	}
	return journal, nil
}

func (s *PostgresStore) ListOpen(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT call_id FROM call_journal
		WHERE call_id NOT IN (
			SELECT call_id FROM call_journal WHERE kind = 'closed'
		)`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list open journals", err).WithOp("durable.ListOpen")
	}
	defer rows.Close()

	var open []uuid.UUID
	for rows.Next() {
		var callID uuid.UUID
		if err := rows.Scan(&callID); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan call id", err).WithOp("durable.ListOpen")
		}
		open = append(open, callID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to read open journal rows", err).WithOp("durable.ListOpen")
	}
	return open, nil
}

var _ Store = (*PostgresStore)(nil)
