// Package poller drives the poll-and-publish cycle: it reads pool
// status at a fixed interval, parses it, and hands the result to the
// discovery and state publishers.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nugget/zpool-mqtt/internal/zpool"
)

// MetricPublisher receives each cycle's parsed pool set. Keeps the
// poller decoupled from the MQTT package; tests use a recording fake.
type MetricPublisher interface {
	// PublishDiscovery announces not-yet-announced entities.
	PublishDiscovery(ctx context.Context, pools []zpool.Pool)
	// PublishStates pushes every metric value for this cycle.
	PublishStates(ctx context.Context, pools []zpool.Pool)
}

// Config configures the poll loop.
type Config struct {
	// Source provides raw pool status text.
	Source zpool.StatusSource

	// Publisher receives parsed pools each successful cycle.
	Publisher MetricPublisher

	// Interval is the poll cycle time.
	Interval time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Poller runs the polling loop. Cycles never overlap: the subprocess
// deadline inside the source bounds each poll, and ticks that fire
// while a poll is still running are coalesced by the ticker.
type Poller struct {
	cfg Config

	// known is the pool name set from the previous successful cycle,
	// used to log pools appearing and disappearing. Only touched from
	// the poll goroutine.
	known map[string]bool
}

// New creates a poll loop driver.
func New(cfg Config) *Poller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		cfg:   cfg,
		known: make(map[string]bool),
	}
}

// Start runs the polling loop until ctx is cancelled. It blocks.
// The first poll fires immediately rather than one interval in.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one cycle. Any fetch or parse failure skips the cycle's
// publishes entirely; a partial or stale pool set must never go out
// as if it were current. The process carries on to the next tick.
func (p *Poller) poll(ctx context.Context) {
	raw, err := p.cfg.Source.Fetch(ctx)
	if err != nil {
		var execErr *zpool.ExecError
		if errors.As(err, &execErr) && execErr.TimedOut {
			p.cfg.Logger.Warn("zpool poll timed out, skipping cycle")
		} else {
			p.cfg.Logger.Warn("zpool poll failed, skipping cycle", "error", err)
		}
		return
	}

	pools, err := zpool.Parse(raw)
	if err != nil {
		p.cfg.Logger.Warn("zpool output unparseable, skipping cycle", "error", err)
		return
	}

	p.logPoolChanges(pools)

	p.cfg.Publisher.PublishDiscovery(ctx, pools)
	p.cfg.Publisher.PublishStates(ctx, pools)

	p.cfg.Logger.Debug("poll cycle complete", "pools", len(pools))
}

// logPoolChanges diffs this cycle's pool names against the previous
// cycle. A disappeared pool keeps its retained topics on the broker;
// the log line is the only signal (see the state publisher's
// no-retraction behavior).
func (p *Poller) logPoolChanges(pools []zpool.Pool) {
	current := make(map[string]bool, len(pools))
	for _, pool := range pools {
		current[pool.Name] = true
		if !p.known[pool.Name] {
			p.cfg.Logger.Info("pool detected", "pool", pool.Name)
		}
	}
	for name := range p.known {
		if !current[name] {
			p.cfg.Logger.Info("pool disappeared", "pool", name)
		}
	}
	p.known = current
}
