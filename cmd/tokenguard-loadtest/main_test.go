package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenguard"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(1), percentile(samples, 0))
	assert.Equal(t, time.Duration(5), percentile(samples, 50))
	assert.Equal(t, time.Duration(10), percentile(samples, 100))
	assert.Zero(t, percentile(nil, 50))
}

func TestStormRotatesOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	engine, err := newEngine(client, "tg:test")
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	pair, err := engine.Login(context.Background(), tokenguard.LoginRequest{
		Email:    "loadtest@example.com",
		Password: loadtestPassword,
		DeviceID: "d-1",
	}).Unwrap()
	require.NoError(t, err)

	st := &chainState{device: "d-1", access: pair.AccessToken, refresh: pair.RefreshToken}
	winners, reused := runStorm(context.Background(), engine, st, 8)
	assert.Equal(t, int64(1), winners)
	assert.Equal(t, int64(7), reused)
}
