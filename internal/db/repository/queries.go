package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Queries holds the hand-written SQL shared by every repository. Statements
// use $N placeholders, which both pgx and modernc sqlite accept. Timestamps
// are stored as unix milliseconds.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const getQuestionsBySection = `SELECT id, section_id, text, options_json, correct_index, explanation, created_at
FROM question_bank
WHERE section_id = $1
ORDER BY RANDOM()
LIMIT $2`

func (q *Queries) GetQuestionsBySection(ctx context.Context, arg GetQuestionsBySectionParams) ([]BankQuestion, error) {
	rows, err := q.db.QueryContext(ctx, getQuestionsBySection, arg.SectionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BankQuestion
	for rows.Next() {
		var (
			i       BankQuestion
			options string
			created int64
		)
		if err := rows.Scan(&i.ID, &i.SectionID, &i.Text, &options, &i.CorrectIndex, &i.Explanation, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &i.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", i.ID, err)
		}
		i.CreatedAt = time.UnixMilli(created).UTC()
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertQuestion = `INSERT INTO question_bank (id, section_id, text, options_json, correct_index, explanation, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET section_id = EXCLUDED.section_id, text = EXCLUDED.text,
  options_json = EXCLUDED.options_json, correct_index = EXCLUDED.correct_index, explanation = EXCLUDED.explanation`

func (q *Queries) InsertQuestion(ctx context.Context, arg BankQuestion) error {
	options, err := json.Marshal(arg.Options)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, insertQuestion,
		arg.ID, arg.SectionID, arg.Text, string(options), arg.CorrectIndex, arg.Explanation, millis(arg.CreatedAt))
	return err
}

const countQuestionsBySection = `SELECT COUNT(*) FROM question_bank WHERE section_id = $1`

func (q *Queries) CountQuestionsBySection(ctx context.Context, sectionID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countQuestionsBySection, sectionID).Scan(&n)
	return n, err
}

const upsertResult = `INSERT INTO exam_results (session_id, candidate_id, profile, composite, buckets_json, breakdown_json, end_trigger, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id) DO NOTHING`

func (q *Queries) UpsertResult(ctx context.Context, arg ExamResult) error {
	_, err := q.db.ExecContext(ctx, upsertResult,
		arg.SessionID, arg.CandidateID, arg.Profile, arg.Composite,
		string(arg.Buckets), string(arg.Breakdown), arg.Trigger, millis(arg.CompletedAt))
	return err
}

const getResult = `SELECT session_id, candidate_id, profile, composite, buckets_json, breakdown_json, end_trigger, completed_at
FROM exam_results WHERE session_id = $1`

func (q *Queries) GetResult(ctx context.Context, sessionID string) (ExamResult, error) {
	var (
		i                  ExamResult
		buckets, breakdown string
		completed          int64
	)
	err := q.db.QueryRowContext(ctx, getResult, sessionID).Scan(
		&i.SessionID, &i.CandidateID, &i.Profile, &i.Composite, &buckets, &breakdown, &i.Trigger, &completed)
	if err != nil {
		return ExamResult{}, err
	}
	i.Buckets = json.RawMessage(buckets)
	i.Breakdown = json.RawMessage(breakdown)
	i.CompletedAt = time.UnixMilli(completed).UTC()
	return i, nil
}

const insertEvent = `INSERT INTO exam_events (id, session_id, type, data_json, created_at)
VALUES ($1, $2, $3, $4, $5)`

func (q *Queries) InsertEvent(ctx context.Context, arg ExamEvent) error {
	data := string(arg.Data)
	if data == "" {
		data = "{}"
	}
	_, err := q.db.ExecContext(ctx, insertEvent, arg.ID, arg.SessionID, arg.Type, data, millis(arg.CreatedAt))
	return err
}

const listEventsBySession = `SELECT id, session_id, type, data_json, created_at
FROM exam_events WHERE session_id = $1
ORDER BY created_at, id`

func (q *Queries) ListEventsBySession(ctx context.Context, sessionID string) ([]ExamEvent, error) {
	rows, err := q.db.QueryContext(ctx, listEventsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExamEvent
	for rows.Next() {
		var (
			i       ExamEvent
			data    string
			created int64
		)
		if err := rows.Scan(&i.ID, &i.SessionID, &i.Type, &data, &created); err != nil {
			return nil, err
		}
		i.Data = json.RawMessage(data)
		i.CreatedAt = time.UnixMilli(created).UTC()
		items = append(items, i)
	}
	return items, rows.Err()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}
