package repository

import (
	"context"
	"testing"
	"time"

	"installbot/internal/config"
	"installbot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	repo := NewRedisSessionRepository(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, Ping(ctx, client))

	t.Run("SetAndGetSession", func(t *testing.T) {
		sess := models.NewSession("whatsapp:+15551234567")
		sess.Stage = models.StageSelectingDate
		sess.AvailableDates = []string{"2025-06-03", "2025-06-04"}

		require.NoError(t, repo.SetSession(ctx, sess))

		got, err := repo.GetSession(ctx, "whatsapp:+15551234567")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StageSelectingDate, got.Stage)
		assert.Equal(t, sess.AvailableDates, got.AvailableDates)
		assert.True(t, s.Exists("chat_session:whatsapp:+15551234567"))
		assert.Equal(t, "SELECTING_DATE", s.HGet("chat_session:whatsapp:+15551234567", "stage"))
		assert.Equal(t, time.Hour, s.TTL("chat_session:whatsapp:+15551234567"))
	})

	t.Run("GetNonExistentSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		require.NoError(t, repo.SetSession(ctx, models.NewSession("short")))
		s.FastForward(2 * time.Hour)
		got, err := repo.GetSession(ctx, "short")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearSession", func(t *testing.T) {
		require.NoError(t, repo.SetSession(ctx, models.NewSession("gone")))
		require.NoError(t, repo.ClearSession(ctx, "gone"))

		got, _ := repo.GetSession(ctx, "gone")
		assert.Nil(t, got)
	})

	t.Run("CorruptPayload", func(t *testing.T) {
		s.HSet("chat_session:bad", "payload", "{not json")
		_, err := repo.GetSession(ctx, "bad")
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, "rl", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, "rl", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, "rl", limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		// later hits must not push the window out
		assert.Equal(t, window, s.TTL("chat_rate:rl"))

		s.FastForward(2 * time.Second)
		allowed, err = repo.CheckRateLimit(ctx, "rl", limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("SaveSlidesTTL", func(t *testing.T) {
		sess := models.NewSession("sliding")
		require.NoError(t, repo.SetSession(ctx, sess))
		s.FastForward(50 * time.Minute)

		sess.Stage = models.StageCollectingName
		require.NoError(t, repo.SetSession(ctx, sess))
		s.FastForward(50 * time.Minute)

		got, err := repo.GetSession(ctx, "sliding")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StageCollectingName, got.Stage)
	})
}

func TestRedisSessionRepository_NilClient(t *testing.T) {
	repo := NewRedisSessionRepository(nil, time.Hour)
	ctx := context.Background()

	_, err := repo.GetSession(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, repo.SetSession(ctx, models.NewSession("x")))
	assert.Error(t, repo.ClearSession(ctx, "x"))
	_, err = repo.CheckRateLimit(ctx, "x", 1, time.Second)
	assert.Error(t, err)
}

func TestRedisSessionRepository_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	assert.Error(t, Ping(context.Background(), client))
}
