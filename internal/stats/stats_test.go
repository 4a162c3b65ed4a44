package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nkuznetsov/tgarchive/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) MessagesByDay(ctx context.Context, days int) ([]storage.DayCount, error) {
	args := m.Called(ctx, days)

	if v := args.Get(0); v != nil {
		return v.([]storage.DayCount), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *mockStore) MessageTypeCounts(ctx context.Context, days int) ([]storage.NameCount, error) {
	return m.nameCounts(m.Called(ctx, days))
}

func (m *mockStore) TopUsers(ctx context.Context, days, limit int) ([]storage.NameCount, error) {
	return m.nameCounts(m.Called(ctx, days, limit))
}

func (m *mockStore) TopCommands(ctx context.Context, days, limit int) ([]storage.NameCount, error) {
	return m.nameCounts(m.Called(ctx, days, limit))
}

func (m *mockStore) RecentTexts(ctx context.Context, days, limit int) ([]string, error) {
	args := m.Called(ctx, days, limit)

	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *mockStore) nameCounts(args mock.Arguments) ([]storage.NameCount, error) {
	if v := args.Get(0); v != nil {
		return v.([]storage.NameCount), args.Error(1)
	}

	return nil, args.Error(1)
}

func newAggregator(store Store) *Aggregator {
	logger := zerolog.Nop()

	return NewAggregator(store, &logger)
}

func TestCollectWithoutStore(t *testing.T) {
	report := newAggregator(nil).Collect(context.Background(), 7)

	assert.Equal(t, 7, report.Days)
	assert.NotNil(t, report.MessagesByDay)
	assert.Empty(t, report.MessagesByDay)
	assert.NotNil(t, report.WordCloud)
}

func TestCollectClampsDays(t *testing.T) {
	agg := newAggregator(nil)

	assert.Equal(t, defaultDays, agg.Collect(context.Background(), 0).Days)
	assert.Equal(t, maxDays, agg.Collect(context.Background(), 100000).Days)
}

func TestCollectDegradesPerQuery(t *testing.T) {
	store := &mockStore{}
	store.On("MessagesByDay", mock.Anything, 7).
		Return([]storage.DayCount{{Day: "19.01.2026", Count: 3}}, nil)
	store.On("MessageTypeCounts", mock.Anything, 7).
		Return(nil, errors.New("connection reset"))
	store.On("TopUsers", mock.Anything, 7, topLimit).
		Return([]storage.NameCount{{Name: "alice", Count: 2}}, nil)
	store.On("TopCommands", mock.Anything, 7, topLimit).
		Return([]storage.NameCount{}, nil)
	store.On("RecentTexts", mock.Anything, 7, textSampleCap).
		Return([]string{"hello hello world"}, nil)

	report := newAggregator(store).Collect(context.Background(), 7)

	require.Len(t, report.MessagesByDay, 1)
	assert.Equal(t, int64(3), report.MessagesByDay[0].Count)
	assert.Empty(t, report.MsgTypes)
	require.Len(t, report.TopUsers, 1)
	require.Len(t, report.WordCloud, 2)
	assert.Equal(t, storage.NameCount{Name: "hello", Count: 2}, report.WordCloud[0])
	store.AssertExpectations(t)
}

func TestWordCloud(t *testing.T) {
	agg := newAggregator(nil)

	tests := []struct {
		name  string
		texts []string
		want  []storage.NameCount
	}{
		{
			name:  "folds case and counts",
			texts: []string{"Deploy DEPLOY deploy", "deploy rollback"},
			want: []storage.NameCount{
				{Name: "deploy", Count: 4},
				{Name: "rollback", Count: 1},
			},
		},
		{
			name:  "drops stopwords short tokens and urls",
			texts: []string{"the and ok wwwarchive check 123 check"},
			want:  []storage.NameCount{{Name: "check", Count: 2}},
		},
		{
			name:  "cyrillic stopwords",
			texts: []string{"это просто отчёт про отчёт"},
			want: []storage.NameCount{
				{Name: "отчёт", Count: 2},
				{Name: "про", Count: 1},
			},
		},
		{
			name:  "ties break alphabetically",
			texts: []string{"zebra apple"},
			want: []storage.NameCount{
				{Name: "apple", Count: 1},
				{Name: "zebra", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, agg.WordCloud(tt.texts, 0))
		})
	}
}

func TestWordCloudLimit(t *testing.T) {
	got := newAggregator(nil).WordCloud([]string{"alpha beta gamma delta"}, 2)
	assert.Len(t, got, 2)
}
