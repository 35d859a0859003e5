package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/C4T-BuT-S4D/invitegate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := Open(config.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := New(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func ptr(v int64) *int64 {
	return &v
}

func TestGetOrCreateUser_Fresh(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for _, tc := range []struct {
		id       int64
		referrer *int64
	}{
		{id: 1, referrer: nil},
		{id: 2, referrer: ptr(1)},
		{id: 3, referrer: ptr(42)},
	} {
		user, created, err := s.GetOrCreateUser(ctx, tc.id, "name", "First", tc.referrer)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, tc.id, user.UserID)

		status, err := s.GetStatus(ctx, tc.id)
		require.NoError(t, err)
		assert.Equal(t, 0, status.InvitedCount)
		assert.False(t, status.ChannelsFollowed)
		assert.False(t, status.Unlocked)
		assert.Equal(t, tc.referrer, status.ReferrerID)
	}
}

func TestGetOrCreateUser_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, _, err := s.GetOrCreateUser(ctx, 10, "first", "First", nil)
	require.NoError(t, err)
	_, _, err = s.GetOrCreateUser(ctx, 11, "referred", "", ptr(10))
	require.NoError(t, err)
	_, err = s.MarkFollowed(ctx, 11)
	require.NoError(t, err)
	_, err = s.IncrementInvite(ctx, 10, 5)
	require.NoError(t, err)

	user, created, err := s.GetOrCreateUser(ctx, 11, "other", "Other", ptr(99))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "referred", user.Username)
	assert.Equal(t, ptr(10), user.ReferrerID)
	assert.True(t, user.ChannelsFollowed)

	referrer, _, err := s.GetOrCreateUser(ctx, 10, "x", "X", ptr(11))
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.InvitedCount)
	assert.Nil(t, referrer.ReferrerID)
}

func TestGetStatus_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetStatus(context.Background(), 777)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkFollowed(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, _, err := s.GetOrCreateUser(ctx, 1, "", "", nil)
	require.NoError(t, err)

	first, err := s.MarkFollowed(ctx, 1)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkFollowed(ctx, 1)
	require.NoError(t, err)
	assert.False(t, first)

	status, err := s.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, status.ChannelsFollowed)
	assert.Equal(t, 0, status.InvitedCount)

	_, err = s.MarkFollowed(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementInvite_UnlocksOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, _, err := s.GetOrCreateUser(ctx, 1, "", "", nil)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		res, err := s.IncrementInvite(ctx, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, i, res.InvitedCount)
		assert.Equal(t, i == 5, res.JustUnlocked, "credit %d", i)
	}

	status, err := s.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, status.Unlocked)
	assert.Equal(t, 7, status.InvitedCount)
}

func TestIncrementInvite_UnknownReferrer(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.IncrementInvite(context.Background(), 404, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementInvite_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, _, err := s.GetOrCreateUser(ctx, 1, "", "", nil)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		unlocked int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.IncrementInvite(ctx, 1, 5)
			if !assert.NoError(t, err) {
				return
			}
			if res.JustUnlocked {
				mu.Lock()
				unlocked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, unlocked)
	status, err := s.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, status.InvitedCount)
}

func TestTransaction_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, _, err := s.GetOrCreateUser(ctx, 1, "", "", nil)
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = s.Transaction(ctx, func(tx *Storage) error {
		if _, err := tx.MarkFollowed(ctx, 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	status, err := s.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.False(t, status.ChannelsFollowed)
}

func TestTopReferrersAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	for id := int64(1); id <= 3; id++ {
		_, _, err := s.GetOrCreateUser(ctx, id, fmt.Sprintf("u%d", id), "", nil)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.IncrementInvite(ctx, 2, 5)
		require.NoError(t, err)
	}
	_, err := s.IncrementInvite(ctx, 3, 5)
	require.NoError(t, err)

	top, err := s.TopReferrers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].UserID)
	assert.Equal(t, int64(3), top[1].UserID)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestGlobalState(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	state, err := s.GetOrCreateGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.LastUpdateID)

	require.NoError(t, s.UpdateLastUpdate(ctx, 15))
	require.NoError(t, s.UpdateLastUpdate(ctx, 12))

	state, err = s.GetOrCreateGlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, state.LastUpdateID)
}
