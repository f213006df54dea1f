package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BankQuestion is a curated question row.
type BankQuestion struct {
	ID           string
	SectionID    string
	Text         string
	Options      []string
	CorrectIndex int
	Explanation  string
	CreatedAt    time.Time
}

// GetQuestionsBySectionParams selects a random sample for one section.
type GetQuestionsBySectionParams struct {
	SectionID string
	Limit     int32
}

// ExamResult is the persisted outcome of one completed session.
type ExamResult struct {
	SessionID   string
	CandidateID string
	Profile     string
	Composite   int
	Buckets     json.RawMessage
	Breakdown   json.RawMessage
	Trigger     string
	CompletedAt time.Time
}

// ExamEvent is one append-only audit record.
type ExamEvent struct {
	ID        string
	SessionID string
	Type      string
	Data      json.RawMessage
	CreatedAt time.Time
}
