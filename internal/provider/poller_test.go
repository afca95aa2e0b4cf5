package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(states ...mediaState) (statusCheck, *int) {
	n := 0
	return func(ctx context.Context) (mediaStatus, error) {
		st := states[len(states)-1]
		if n < len(states) {
			st = states[n]
		}
		n++
		return mediaStatus{State: st, Detail: "IN_PROGRESS"}, nil
	}, &n
}

func testPollClient(t *testing.T) (*client, *fakeClock) {
	env := newTestEnv(t, nil)
	c := newClient(Instagram, nil, testConfig(), env.factory.deps)
	return &c, env.clock
}

func TestAwaitMediaFinishesAfterThreeChecks(t *testing.T) {
	c, clock := testPollClient(t)
	start := clock.Now()
	check, n := sequence(mediaInProgress, mediaInProgress, mediaFinished)

	err := c.awaitMedia(context.Background(), "container-1", PollConfig{Interval: time.Second, Timeout: time.Minute}, check)
	require.NoError(t, err)
	assert.Equal(t, 3, *n)
	assert.Equal(t, 2*time.Second, clock.Now().Sub(start))
}

func TestAwaitMediaTimeout(t *testing.T) {
	c, _ := testPollClient(t)
	check, n := sequence(mediaInProgress)

	err := c.awaitMedia(context.Background(), "container-9", PollConfig{Interval: time.Second, Timeout: 5 * time.Second}, check)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMediaTimeout)
	assert.NotErrorIs(t, err, ErrMediaProcessing)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "container-9")
	assert.Contains(t, err.Error(), "not published")
	assert.Equal(t, 6, *n)
}

func TestAwaitMediaError(t *testing.T) {
	c, _ := testPollClient(t)
	check, n := sequence(mediaInProgress, mediaFailed)

	err := c.awaitMedia(context.Background(), "container-2", PollConfig{Interval: time.Second, Timeout: time.Minute}, check)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMediaProcessing)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 2, *n)
}

func TestAwaitMediaNotReadyIsRetried(t *testing.T) {
	c, _ := testPollClient(t)
	check, n := sequence(mediaNotReady, mediaNotReady, mediaInProgress, mediaFinished)

	err := c.awaitMedia(context.Background(), "container-3", PollConfig{Interval: time.Second, Timeout: time.Minute}, check)
	require.NoError(t, err)
	assert.Equal(t, 4, *n)
}

func TestAwaitMediaCheckErrorStops(t *testing.T) {
	c, _ := testPollClient(t)
	boom := &Error{Kind: KindOAuth, Provider: Instagram, Code: "token_invalid"}
	calls := 0
	check := func(ctx context.Context) (mediaStatus, error) {
		calls++
		return mediaStatus{}, boom
	}

	err := c.awaitMedia(context.Background(), "container-4", PollConfig{Interval: time.Second, Timeout: time.Minute}, check)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}

func TestAwaitMediaCancelled(t *testing.T) {
	c, _ := testPollClient(t)
	c.clock = realClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	check, _ := sequence(mediaInProgress)

	err := c.awaitMedia(ctx, "container-5", PollConfig{Interval: time.Hour, Timeout: 2 * time.Hour}, check)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.Canceled)
}
