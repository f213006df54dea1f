package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockQuestionStore struct {
	mock.Mock
}

func (m *mockQuestionStore) GetQuestionsBySection(ctx context.Context, arg GetQuestionsBySectionParams) ([]BankQuestion, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]BankQuestion), args.Error(1)
}

func (m *mockQuestionStore) InsertQuestion(ctx context.Context, arg BankQuestion) error {
	return m.Called(ctx, arg).Error(0)
}

func (m *mockQuestionStore) CountQuestionsBySection(ctx context.Context, sectionID string) (int64, error) {
	args := m.Called(ctx, sectionID)
	return args.Get(0).(int64), args.Error(1)
}

type mockResultStore struct {
	mock.Mock
}

func (m *mockResultStore) UpsertResult(ctx context.Context, arg ExamResult) error {
	return m.Called(ctx, arg).Error(0)
}

func (m *mockResultStore) GetResult(ctx context.Context, sessionID string) (ExamResult, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(ExamResult), args.Error(1)
}

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) InsertEvent(ctx context.Context, arg ExamEvent) error {
	return m.Called(ctx, arg).Error(0)
}

func (m *mockEventStore) ListEventsBySession(ctx context.Context, sessionID string) ([]ExamEvent, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]ExamEvent), args.Error(1)
}

func TestQuestionRepository_FetchSection(t *testing.T) {
	store := new(mockQuestionStore)
	repo := NewQuestionRepository(store)

	expect := []BankQuestion{{ID: "q1", SectionID: "reading"}}
	store.On("GetQuestionsBySection", mock.Anything, GetQuestionsBySectionParams{SectionID: "reading", Limit: 3}).Return(expect, nil)

	got, err := repo.FetchSection(context.Background(), "reading", 3)
	assert.NoError(t, err)
	assert.Equal(t, expect, got)
	store.AssertExpectations(t)
}

func TestQuestionRepository_FetchSectionZeroLimit(t *testing.T) {
	store := new(mockQuestionStore)
	repo := NewQuestionRepository(store)

	got, err := repo.FetchSection(context.Background(), "reading", 0)
	assert.NoError(t, err)
	assert.Nil(t, got)
	store.AssertNotCalled(t, "GetQuestionsBySection", mock.Anything, mock.Anything)
}

func TestResultRepository_SaveAndGet(t *testing.T) {
	store := new(mockResultStore)
	repo := NewResultRepository(store)

	result := ExamResult{SessionID: "s1", CandidateID: "c1", Composite: 1200}
	store.On("UpsertResult", mock.Anything, result).Return(nil)
	store.On("GetResult", mock.Anything, "s1").Return(result, nil)

	assert.NoError(t, repo.Save(context.Background(), result))
	got, err := repo.Get(context.Background(), "s1")
	assert.NoError(t, err)
	assert.Equal(t, 1200, got.Composite)
	store.AssertExpectations(t)
}

func TestEventRepository_AppendFillsIDAndTime(t *testing.T) {
	store := new(mockEventStore)
	repo := NewEventRepository(store)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	store.On("InsertEvent", mock.Anything, mock.MatchedBy(func(ev ExamEvent) bool {
		return ev.ID != "" && ev.CreatedAt.Equal(fixed) && ev.Type == "section_changed"
	})).Return(nil)

	ev, err := repo.Append(context.Background(), ExamEvent{SessionID: "s1", Type: "section_changed"})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, fixed, ev.CreatedAt)
	store.AssertExpectations(t)
}

func TestEventRepository_AppendPropagatesError(t *testing.T) {
	store := new(mockEventStore)
	repo := NewEventRepository(store)
	store.On("InsertEvent", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := repo.Append(context.Background(), ExamEvent{SessionID: "s1", Type: "x"})
	assert.EqualError(t, err, "db down")
}
