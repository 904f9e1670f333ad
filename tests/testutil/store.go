package testutil

import (
	"context"
	"testing"

	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedIssue inserts an issue with a fresh token and returns it.
func SeedIssue(t *testing.T, s store.Store, id int64, title string, subscribed bool) model.Issue {
	t.Helper()

	issue := model.Issue{
		ID:         id,
		Submitter:  "Reporter <reporter@example.com>",
		Token:      model.NewToken(),
		CreatedAt:  "2024-01-01T00:00:00Z",
		Subscribed: subscribed,
		Title:      title,
	}
	if err := s.InsertIssue(context.Background(), issue); err != nil {
		t.Fatalf("seeding issue %d: %v", id, err)
	}

	return issue
}
