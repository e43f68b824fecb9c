package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"

	"linkup/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
// The pool is owned by the caller; the store never closes it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema holding the accounts table (default "linkup").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "linkup"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

const accountColumns = `id, username, first_name, last_name, email_hash, password_hash,
       refresh_token_hash, created_at, updated_at`

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "accounts"}.Sanitize()
}

// CreateAccount inserts a new account. A taken email hash is FaultUniqueViolation.
func (s *PostgresStore) CreateAccount(ctx context.Context, in NewAccount) (Account, error) {
	const op = "identity.CreateAccount"

	if msg := in.validate(); msg != "" {
		return Account{}, &StoreError{Op: op, Fault: FaultOther, Err: fmt.Errorf("%w: %s", ErrInvalidInput, msg)}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id := in.ID
	if id == "" {
		var err error
		if id, err = ids.New(now); err != nil {
			return Account{}, Fail(op, FaultOther, err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, username, first_name, last_name, email_hash, password_hash, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, in.Username, in.FirstName, in.LastName, in.EmailHash, in.PasswordHash, now,
	)
	if err != nil {
		return Account{}, pgFail(op, err)
	}

	return Account{
		ID:           id,
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		EmailHash:    in.EmailHash,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AccountByID loads an account by primary key.
func (s *PostgresStore) AccountByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.AccountByID"

	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM `+s.table()+` WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, pgFail(op, err)
	}
	return a, nil
}

// AccountByEmailHash loads an account by its email lookup envelope.
func (s *PostgresStore) AccountByEmailHash(ctx context.Context, emailHash string) (Account, error) {
	const op = "identity.AccountByEmailHash"

	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM `+s.table()+` WHERE email_hash = $1`, emailHash)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, pgFail(op, err)
	}
	return a, nil
}

// SetRefreshTokenHash replaces the stored refresh-token digest.
func (s *PostgresStore) SetRefreshTokenHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.SetRefreshTokenHash"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET refresh_token_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, now,
	)
	if err != nil {
		return pgFail(op, err)
	}
	if tag.RowsAffected() == 0 {
		return Fail(op, FaultNotFound, nil)
	}
	return nil
}

// UpdateProfile overwrites the non-nil profile envelopes and returns the updated row.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, in ProfileUpdate, now time.Time) (Account, error) {
	const op = "identity.UpdateProfile"

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET username   = COALESCE($2, username),
		        first_name = COALESCE($3, first_name),
		        last_name  = COALESCE($4, last_name),
		        updated_at = $5
		  WHERE id = $1
		 RETURNING `+accountColumns,
		id, in.Username, in.FirstName, in.LastName, now,
	)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, pgFail(op, err)
	}
	return a, nil
}

// DeleteAccount removes the account row.
func (s *PostgresStore) DeleteAccount(ctx context.Context, id string) error {
	const op = "identity.DeleteAccount"

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, id)
	if err != nil {
		return pgFail(op, err)
	}
	if tag.RowsAffected() == 0 {
		return Fail(op, FaultNotFound, nil)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.FirstName,
		&a.LastName,
		&a.EmailHash,
		&a.PasswordHash,
		&a.RefreshTokenHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

// ---- error translation ----

// pgFail translates a pgx error into a *StoreError exactly once.
func pgFail(op string, err error) error {
	se := &StoreError{Op: op, Fault: pgFault(err), Err: err}
	if se.Fault == FaultUniqueViolation {
		se.Field = pgUniqueField(err)
	}
	return se
}

func pgFault(err error) Fault {
	if errors.Is(err, pgx.ErrNoRows) {
		return FaultNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return FaultUniqueViolation
		case pgErr.Code == "23503": // foreign_key_violation
			return FaultNotFound
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			strings.HasPrefix(pgErr.Code, "53"),  // insufficient_resources
			strings.HasPrefix(pgErr.Code, "57P"), // operator intervention (shutdown)
			pgErr.Code == "40001",                // serialization_failure
			pgErr.Code == "40P01":                // deadlock_detected
			return FaultUnavailable
		}
		return FaultOther
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return FaultUnavailable
	}
	return FaultOther
}

func pgUniqueField(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	switch c := strings.ToLower(pgErr.ConstraintName); {
	case c == "uq_accounts_email_hash", strings.Contains(c, "email"):
		return "email_hash"
	case strings.Contains(c, "pkey"):
		return "id"
	default:
		return "unique"
	}
}
