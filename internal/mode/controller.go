// Package mode measures round-trip latency to the venues and selects which
// execution strategy and data feed are active.
package mode

import (
	"context"
	"log/slog"
	"time"

	"arbot/internal/config"
)

// Mode identifies the active strategy pairing.
type Mode string

const (
	// LowLatency pairs the streaming feed with the single-shot executor.
	LowLatency Mode = "low_latency"
	// HighLatency pairs REST polling with the order-chasing executor.
	HighLatency Mode = "high_latency"
)

// TimeSource is a latency probe target: a lightweight public endpoint whose
// round trip approximates venue latency. Satisfied by venue clients.
type TimeSource interface {
	Name() string
	ServerTime(ctx context.Context) (time.Time, error)
}

// Controller decides the active mode and re-evaluates it every fixed number
// of cycles.
type Controller struct {
	logger    *slog.Logger
	sources   []TimeSource
	cfg       config.ModeConfig
	counter   int
	current   Mode
	latencyMS float64
}

// NewController creates a Controller probing the given sources.
func NewController(logger *slog.Logger, sources []TimeSource, cfg config.ModeConfig) *Controller {
	return &Controller{
		logger:  logger.With(slog.String("component", "mode")),
		sources: sources,
		cfg:     cfg,
	}
}

// Init performs the first measurement and fixes the starting mode.
func (c *Controller) Init(ctx context.Context) Mode {
	c.latencyMS = c.MeasureLatency(ctx)
	c.current = c.modeFor(c.latencyMS)
	c.logger.Info("initial mode selected",
		"mode", c.current,
		"avgLatencyMS", c.latencyMS,
	)
	return c.current
}

// Current returns the active mode.
func (c *Controller) Current() Mode { return c.current }

// LatencyMS returns the last measured average latency.
func (c *Controller) LatencyMS() float64 { return c.latencyMS }

// Check counts cycles and re-measures when the check interval elapses.
// It reports the active mode and whether it changed this call.
func (c *Controller) Check(ctx context.Context) (Mode, bool) {
	c.counter++
	if c.counter < c.cfg.CheckEveryCycles {
		return c.current, false
	}
	c.counter = 0

	latency := c.MeasureLatency(ctx)
	next := c.modeFor(latency)
	c.latencyMS = latency
	if next == c.current {
		return c.current, false
	}
	c.logger.Info("mode switched",
		"from", c.current,
		"to", next,
		"avgLatencyMS", latency,
	)
	c.current = next
	return c.current, true
}

// MeasureLatency times a server-time request to every source and averages
// the successes. If everything fails it returns the conservative default,
// which lands in high-latency mode.
func (c *Controller) MeasureLatency(ctx context.Context) float64 {
	timeout := time.Duration(c.cfg.RequestTimeoutSec * float64(time.Second))
	var latencies []float64
	for _, src := range c.sources {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		_, err := src.ServerTime(probeCtx)
		cancel()
		if err != nil {
			c.logger.Warn("latency probe failed", "venue", src.Name(), "error", err)
			continue
		}
		latencies = append(latencies, float64(time.Since(start).Milliseconds()))
	}
	if len(latencies) == 0 {
		return c.cfg.DefaultLatencyMS
	}
	sum := 0.0
	for _, l := range latencies {
		sum += l
	}
	return sum / float64(len(latencies))
}

func (c *Controller) modeFor(latencyMS float64) Mode {
	if latencyMS > c.cfg.LatencyThresholdMS {
		return HighLatency
	}
	return LowLatency
}
