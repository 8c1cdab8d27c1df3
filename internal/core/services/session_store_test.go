package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_EnsureSession(t *testing.T) {
	store := NewSessionStore(newMemRepo(), 4)
	ctx := context.Background()

	created, err := store.EnsureSession(ctx, "", "Where are the hex bolts stored in the north warehouse these days?")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.LessOrEqual(t, len(created.Title), 53)

	same, err := store.EnsureSession(ctx, created.ID, "ignored")
	require.NoError(t, err)
	assert.Equal(t, created.ID, same.ID)

	fresh, err := store.EnsureSession(ctx, "sess-unknown", "hello")
	require.NoError(t, err)
	assert.NotEqual(t, domain.SessionID("sess-unknown"), fresh.ID)
	assert.Equal(t, "hello", fresh.Title)
}

func TestSessionStore_EnsureSessionKeepsTitleValidUTF8(t *testing.T) {
	store := NewSessionStore(newMemRepo(), 4)

	sess, err := store.EnsureSession(context.Background(), "", strings.Repeat("a", 49)+"ção de estoque")
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(sess.Title), "%q", sess.Title)
	assert.Equal(t, strings.Repeat("a", 49)+"...", sess.Title)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "a...", truncate("aéb", 2))
	assert.Equal(t, "aé...", truncate("aébc", 3))
	assert.Equal(t, "...", truncate("日本", 2))
}

func TestSessionStore_MessagesServedFromCache(t *testing.T) {
	repo := newMemRepo()
	store := NewSessionStore(repo, 4)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "t")
	require.NoError(t, err)
	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, store.AddMessage(ctx, domain.Message{SessionID: sess.ID, Role: domain.RoleUser, Content: c}))
	}

	all, err := store.GetMessages(ctx, sess.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].CreatedAt.IsZero())

	last, err := store.GetMessages(ctx, sess.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", last[0].Content)
	assert.Equal(t, "c", last[1].Content)
	assert.Zero(t, repo.listCnt)
}

func TestSessionStore_EvictsLeastRecent(t *testing.T) {
	repo := newMemRepo()
	store := NewSessionStore(repo, 1)
	ctx := context.Background()

	first, err := store.CreateSession(ctx, "first")
	require.NoError(t, err)
	require.NoError(t, store.AddMessage(ctx, domain.Message{SessionID: first.ID, Role: domain.RoleUser, Content: "x"}))
	_, err = store.CreateSession(ctx, "second")
	require.NoError(t, err)

	msgs, err := store.GetMessages(ctx, first.ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 1, repo.listCnt)
}

func TestSessionStore_AddMessageUnknownSession(t *testing.T) {
	store := NewSessionStore(newMemRepo(), 4)

	err := store.AddMessage(context.Background(), domain.Message{SessionID: "nope", Role: domain.RoleUser, Content: "x"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_BuildContextWindow(t *testing.T) {
	store := NewSessionStore(newMemRepo(), 4)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "t")
	require.NoError(t, err)
	for _, m := range []domain.Message{
		{Role: domain.RoleUser, Content: "stock of AB-1?"},
		{Role: domain.RoleAgent, Content: "checking"},
		{Role: domain.RoleAssistant, Content: "42"},
	} {
		m.SessionID = sess.ID
		require.NoError(t, store.AddMessage(ctx, m))
	}

	window, err := store.BuildContextWindow(ctx, sess.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, "User: stock of AB-1?\nAgent message: checking\nAssistant: 42\n", window)

	window, err = store.BuildContextWindow(ctx, sess.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Assistant: 42\n", window)
}
