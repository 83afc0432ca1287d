package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs. Accepting the
// interface lets tests substitute a mock pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists attempts in the auth_attempts table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps a pgx pool (or compatible querier).
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one attempt. A missing ID is filled with a random UUID and a
// zero OccurredAt with the current time.
func (s *PostgresStore) Insert(ctx context.Context, attempt Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.OccurredAt.IsZero() {
		attempt.OccurredAt = time.Now().UTC()
	}

	var contextBlob []byte
	if len(attempt.Context) > 0 {
		blob, err := json.Marshal(attempt.Context)
		if err != nil {
			return fmt.Errorf("encode attempt context: %w", err)
		}
		contextBlob = blob
	}

	query := `
		INSERT INTO auth_attempts
			(id, email, account_id, source_addr, client_sig, kind, outcome, context, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.db.Exec(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.AccountID,
		attempt.SourceAddr,
		attempt.ClientSig,
		string(attempt.Kind),
		string(attempt.Outcome),
		contextBlob,
		attempt.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

// Query returns matching attempts, newest first.
func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Attempt, error) {
	var (
		conditions []string
		args       []any
	)

	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, clause+"$"+strconv.Itoa(len(args)))
	}

	if filter.Email != "" {
		addCondition("email = ", filter.Email)
	}
	if filter.Kind != "" {
		addCondition("kind = ", string(filter.Kind))
	}
	if filter.Outcome != "" {
		addCondition("outcome = ", string(filter.Outcome))
	}
	if !filter.Since.IsZero() {
		addCondition("occurred_at >= ", filter.Since)
	}
	if !filter.Until.IsZero() {
		addCondition("occurred_at <= ", filter.Until)
	}

	query := `
		SELECT id, email, account_id, source_addr, client_sig, kind, outcome, context, occurred_at
		FROM auth_attempts
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			attempt     Attempt
			kind        string
			outcome     string
			contextBlob []byte
		)
		err := rows.Scan(
			&attempt.ID,
			&attempt.Email,
			&attempt.AccountID,
			&attempt.SourceAddr,
			&attempt.ClientSig,
			&kind,
			&outcome,
			&contextBlob,
			&attempt.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.Kind = Kind(kind)
		attempt.Outcome = Outcome(outcome)
		if len(contextBlob) > 0 {
			if err := json.Unmarshal(contextBlob, &attempt.Context); err != nil {
				return nil, fmt.Errorf("decode attempt context: %w", err)
			}
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attempts: %w", err)
	}

	return attempts, nil
}

// Prune deletes attempts older than the cutoff.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM auth_attempts WHERE occurred_at < $1;`, before)
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}
