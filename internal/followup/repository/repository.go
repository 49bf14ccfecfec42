// Package repository implements follow-up persistence on PostgreSQL.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sequenceNotFoundMsg    = "sequence not found"
	stepNotFoundMsg        = "sequence step not found"
	enrollmentNotFoundMsg  = "enrollment not found"
	interactionNotFoundMsg = "interaction not found"
	scoreNotFoundMsg       = "lead has not been scored"
	jobNotFoundMsg         = "scheduled job not found"
	leadNotFoundMsg        = "lead not found"

	pgUniqueViolation = "23505"
)

// Repo implements Repository with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new follow-up repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func objectJSON(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json object: %w", err)
	}
	return data, nil
}

func listJSON(items []string) ([]byte, error) {
	if len(items) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal json list: %w", err)
	}
	return data, nil
}

func unmarshalObject(raw []byte) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
