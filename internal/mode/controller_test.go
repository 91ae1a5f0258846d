package mode

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"arbot/internal/config"
)

// fakeSource answers server-time probes after a fixed delay, or fails.
type fakeSource struct {
	name  string
	delay time.Duration
	err   error
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) ServerTime(ctx context.Context) (time.Time, error) {
	if s.err != nil {
		return time.Time{}, s.err
	}
	select {
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	case <-time.After(s.delay):
		return time.Now(), nil
	}
}

func modeTestConfig() config.ModeConfig {
	return config.ModeConfig{
		LatencyThresholdMS: 100.0,
		DefaultLatencyMS:   150.0,
		CheckEveryCycles:   3,
		RequestTimeoutSec:  1.0,
	}
}

func TestController_Init(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("fast venues select low latency", func(t *testing.T) {
		c := NewController(logger, []TimeSource{
			&fakeSource{name: "kraken", delay: time.Millisecond},
			&fakeSource{name: "binance", delay: time.Millisecond},
		}, modeTestConfig())
		assert.Equal(t, LowLatency, c.Init(context.Background()))
		assert.Less(t, c.LatencyMS(), 100.0)
	})

	t.Run("slow venues select high latency", func(t *testing.T) {
		c := NewController(logger, []TimeSource{
			&fakeSource{name: "kraken", delay: 150 * time.Millisecond},
		}, modeTestConfig())
		assert.Equal(t, HighLatency, c.Init(context.Background()))
	})

	t.Run("all probes failing uses the conservative default", func(t *testing.T) {
		c := NewController(logger, []TimeSource{
			&fakeSource{name: "kraken", err: errors.New("down")},
		}, modeTestConfig())
		assert.Equal(t, HighLatency, c.Init(context.Background()))
		assert.Equal(t, 150.0, c.LatencyMS())
	})
}

func TestController_Check(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	src := &fakeSource{name: "kraken", delay: time.Millisecond}
	c := NewController(logger, []TimeSource{src}, modeTestConfig())
	ctx := context.Background()

	assert.Equal(t, LowLatency, c.Init(ctx))

	t.Run("no re-measurement before the interval", func(t *testing.T) {
		src.delay = 200 * time.Millisecond
		for i := 0; i < 2; i++ {
			m, changed := c.Check(ctx)
			assert.Equal(t, LowLatency, m)
			assert.False(t, changed)
		}
	})

	t.Run("interval elapses and the mode flips", func(t *testing.T) {
		m, changed := c.Check(ctx)
		assert.Equal(t, HighLatency, m)
		assert.True(t, changed)
	})

	t.Run("steady latency does not flap", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, changed := c.Check(ctx)
			assert.False(t, changed)
		}
	})
}
