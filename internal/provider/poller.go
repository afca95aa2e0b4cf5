package provider

import (
	"context"
	"fmt"
	"time"
)

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// PollConfig bounds how long a media container may stay in processing.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

type mediaState int

const (
	mediaInProgress mediaState = iota
	mediaFinished
	mediaFailed
	// mediaNotReady is returned while the platform cannot yet answer for a
	// freshly created resource. It is retried like mediaInProgress.
	mediaNotReady
)

// mediaStatus is one observation of a processing resource.
type mediaStatus struct {
	State  mediaState
	Detail string
}

type statusCheck func(ctx context.Context) (mediaStatus, error)

// awaitMedia polls check until the resource is finished, failed, or the
// budget runs out. The first check happens immediately. Errors returned by
// check end the wait as they are.
func (c *client) awaitMedia(ctx context.Context, resourceID string, cfg PollConfig, check statusCheck) error {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	deadline := c.clock.Now().Add(cfg.Timeout)
	checks := 0

	for {
		st, err := check(ctx)
		checks++
		if err != nil {
			return err
		}

		switch st.State {
		case mediaFinished:
			c.log("media ready", "resource", resourceID, "checks", checks)
			return nil
		case mediaFailed:
			return c.logError("poll_media", &Error{
				Kind:     KindMediaProcessing,
				Provider: c.name,
				Op:       "publish",
				Code:     "media_processing_failed",
				Message:  fmt.Sprintf("media %s failed processing: %s", resourceID, st.Detail),
			})
		}

		if !c.clock.Now().Before(deadline) {
			return c.logError("poll_media", &Error{
				Kind:     KindMediaTimeout,
				Provider: c.name,
				Op:       "publish",
				Code:     "media_processing_timeout",
				Message: fmt.Sprintf("media %s still processing after %s (%d checks, last status %q); it was not published",
					resourceID, cfg.Timeout, checks, st.Detail),
			})
		}

		select {
		case <-ctx.Done():
			return &Error{
				Kind:     KindTransient,
				Provider: c.name,
				Op:       "publish",
				Code:     "cancelled",
				Message:  fmt.Sprintf("waiting for media %s was interrupted", resourceID),
				Err:      ctx.Err(),
			}
		case <-c.clock.After(interval):
		}
	}
}
