// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidtube/vidtube/pkg/errutil"
)

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func fastOptions(retries uint64) ConnectOptions {
	return ConnectOptions{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestWaitForDatabase(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		p := &flakyPinger{failures: 2}
		require.NoError(t, waitForDatabase(context.Background(), p, fastOptions(5), logger))
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		p := &flakyPinger{failures: 100}
		err := waitForDatabase(context.Background(), p, fastOptions(2), logger)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
		errutil.AssertErrorContext(t, err, "attempts", 3)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &flakyPinger{failures: 100}
		err := waitForDatabase(ctx, p, fastOptions(50), logger)
		require.Error(t, err)
		assert.LessOrEqual(t, p.calls, 1)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::", fastOptions(0), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestDefaultConnectOptions(t *testing.T) {
	opts := DefaultConnectOptions()
	assert.Positive(t, opts.MaxRetries)
	assert.Less(t, opts.InitialBackoff, opts.MaxBackoff)
}
