package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "sqlchat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteStore_UserRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	missing, err := repo.GetUser(ctx, "anon_missing")
	require.NoError(t, err)
	require.Nil(t, missing)

	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, repo.UpsertUser(ctx, &domain.User{
		UserID:     "anon_1",
		Username:   "anon-1",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	later := now.Add(time.Hour)
	require.NoError(t, repo.UpdateLastSeen(ctx, "anon_1", later))

	got, err := repo.GetUser(ctx, "anon_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "anon-1", got.Username)
	require.Equal(t, later.Unix(), got.LastSeenAt.Unix())
	require.Equal(t, now.Unix(), got.CreatedAt.Unix())
}

func TestSQLiteStore_UpdateLastSeenMissingUser(t *testing.T) {
	repo := newTestStore(t)
	err := repo.UpdateLastSeen(context.Background(), "anon_nobody", time.Now())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSQLiteStore_Exchanges(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	require.NoError(t, repo.RecordExchange(ctx, &domain.Exchange{
		ID: "ex-1", UserID: "u1", SessionID: "s1", Prompt: "How many claims in 2023?",
		Reply: "42 claims", Status: domain.ExchangeAnswered, DurationMs: 120, CreatedAt: base,
	}))
	require.NoError(t, repo.RecordExchange(ctx, &domain.Exchange{
		ID: "ex-2", UserID: "u1", SessionID: "s1", Prompt: "list claims",
		Error: "timeout", Status: domain.ExchangeFailed, DurationMs: 3000, CreatedAt: base.Add(time.Second),
	}))
	require.NoError(t, repo.RecordExchange(ctx, &domain.Exchange{
		ID: "ex-3", UserID: "u2", SessionID: "s9", Prompt: "other user",
		Reply: "ok", Status: domain.ExchangeAnswered, CreatedAt: base,
	}))

	items, err := repo.ListExchanges(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "ex-2", items[0].ID)
	require.Equal(t, "timeout", items[0].Error)
	require.Empty(t, items[0].Reply)
	require.Equal(t, domain.ExchangeFailed, items[0].Status)
	require.Equal(t, "ex-1", items[1].ID)
	require.Equal(t, "42 claims", items[1].Reply)
}

func TestSQLiteStore_PruneExchanges(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordExchange(ctx, &domain.Exchange{
		ID: "old", UserID: "u1", SessionID: "s1", Prompt: "p", Status: domain.ExchangeAnswered,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, repo.RecordExchange(ctx, &domain.Exchange{
		ID: "new", UserID: "u1", SessionID: "s1", Prompt: "p", Status: domain.ExchangeAnswered,
		CreatedAt: time.Now(),
	}))

	deleted, err := repo.PruneExchanges(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	items, err := repo.ListExchanges(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "new", items[0].ID)
}

func TestSQLiteStore_Ping(t *testing.T) {
	repo := newTestStore(t)
	require.NoError(t, repo.Ping(context.Background()))
}
