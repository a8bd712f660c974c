package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrInvalidRecord is returned when a row read from the database does not
// match the shape the domain expects. It always wraps the validation error
// that rejected the row.
var ErrInvalidRecord = errors.New("invalid record")

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the subset of *sqlx.Tx the stores need.
type Tx interface {
	Execer
	Getter
	Selecter
}

func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ConstraintName returns the violated constraint for Postgres errors.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

func invalidRecord(cause error, entity, field, value string) error {
	return fmt.Errorf("%w: %s.%s=%q: %w", ErrInvalidRecord, entity, field, value, cause)
}

// uuidArg returns id in canonical form. Ids that cannot name a row in a UUID
// column report false; callers answer those with sql.ErrNoRows instead of
// letting Postgres reject the cast.
func uuidArg(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
