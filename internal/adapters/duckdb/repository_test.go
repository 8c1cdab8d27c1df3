package duckdb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_Sessions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := domain.Session{ID: "sess-1", Title: "stock check", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateSession(ctx, sess))

	got, err := repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "stock check", got.Title)
	assert.WithinDuration(t, now, got.CreatedAt, time.Second)

	_, err = repo.GetSession(ctx, "sess-missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	sessions, err := repo.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRepository_SessionTitleFromMultibyteMessage(t *testing.T) {
	repo := newTestRepo(t)
	store := services.NewSessionStore(repo, 0)
	ctx := context.Background()

	sess, err := store.EnsureSession(ctx, "", strings.Repeat("a", 49)+"ção de estoque")
	require.NoError(t, err)

	got, err := repo.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got.Title))
	assert.Equal(t, sess.Title, got.Title)

	require.NoError(t, repo.CreateSession(ctx, domain.Session{ID: "sess-pt", Title: "contagem de peças", CreatedAt: time.Now(), UpdatedAt: time.Now()}))
	got, err = repo.GetSession(ctx, "sess-pt")
	require.NoError(t, err)
	assert.Equal(t, "contagem de peças", got.Title)
}

func TestRepository_Messages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.CreateSession(ctx, domain.Session{ID: "sess-1", CreatedAt: now, UpdatedAt: now}))

	for i, content := range []string{"one", "two", "three", "four"} {
		require.NoError(t, repo.AddMessage(ctx, domain.Message{
			ID:        domain.NewMessageID(),
			SessionID: "sess-1",
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := repo.ListMessages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "one", all[0].Content)
	assert.Equal(t, "four", all[3].Content)

	last2, err := repo.ListMessages(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, last2, 2)
	assert.Equal(t, "three", last2[0].Content, "window must be oldest-first")
	assert.Equal(t, "four", last2[1].Content)

	err = repo.AddMessage(ctx, domain.Message{ID: "msg-x", SessionID: "sess-none", Role: domain.RoleUser, CreatedAt: now})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRepository_Knowledge(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	docs := []domain.KnowledgeDocument{
		{ID: "kb-1", Title: "Return policy", Body: "Damaged goods can be returned within 30 days.", Tags: []string{"returns"}, CreatedAt: time.Now()},
		{ID: "kb-2", Title: "Forklift safety", Body: "Operators must be certified. Damaged forks must be reported.", CreatedAt: time.Now()},
		{ID: "kb-3", Title: "Holiday schedule", Body: "The warehouse closes on public holidays.", CreatedAt: time.Now()},
	}
	for _, d := range docs {
		require.NoError(t, repo.SaveDocument(ctx, d))
	}

	got, err := repo.GetDocument(ctx, "kb-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"returns"}, got.Tags)

	_, err = repo.GetDocument(ctx, "kb-404")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	hits, err := repo.SearchDocuments(ctx, "return policy for damaged goods?", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "kb-1", hits[0].Document.ID)
	for _, h := range hits {
		assert.NotEqual(t, "kb-3", h.Document.ID)
		assert.Positive(t, h.Score)
	}

	none, err := repo.SearchDocuments(ctx, "%_", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"return", "policy", "50"}, searchTerms("Return POLICY, return a 50%!"))
	assert.Empty(t, searchTerms("  % _ "))
}
