// Package connwatch monitors broker reachability with exponential
// backoff.
//
// The MQTT client library owns its own reconnect loop; connwatch sits
// above it with two jobs. At startup it enforces the connect retry
// budget: if the broker cannot be reached within the configured number
// of probe attempts, AwaitStartup returns an error and the process
// exits non-zero. After startup it polls in the background and logs
// reachable/unreachable transitions, so a sustained broker outage is
// visible in the logs even though the publish path just drops messages.
package connwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc checks whether the broker is reachable. Return nil if
// healthy. Must be safe for concurrent use.
type ProbeFunc func(ctx context.Context) error

// Config controls probe timing and the startup retry budget.
type Config struct {
	// Name is a human-readable identifier for logging (e.g., "mqtt").
	Name string

	// Probe checks broker health.
	Probe ProbeFunc

	// InitialDelay is the delay before the first startup retry
	// (default 2s).
	InitialDelay time.Duration

	// MaxDelay is the ceiling for backoff growth (default 60s).
	MaxDelay time.Duration

	// Multiplier scales the delay after each retry (default 2.0).
	Multiplier float64

	// MaxRetries is the startup probe budget (default 10). Exhausting
	// it fails AwaitStartup.
	MaxRetries int

	// PollInterval is the background check interval after startup
	// (default 60s).
	PollInterval time.Duration

	// ProbeTimeout limits each individual probe call (default 10s).
	ProbeTimeout time.Duration

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// withDefaults fills zero-value fields.
func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Watcher monitors the broker connection.
type Watcher struct {
	cfg   Config
	ready atomic.Bool

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// New creates a Watcher. Panics if Name is empty or Probe is nil;
// those are programming errors, not runtime conditions.
func New(cfg Config) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: Config.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("connwatch: Config.Probe must not be nil")
	}
	return &Watcher{cfg: cfg.withDefaults()}
}

// IsReady reports whether the broker was reachable at the last probe.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// LastError returns the most recent probe error, or nil if healthy.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// AwaitStartup probes the broker with exponential backoff until it
// answers or the retry budget runs out. A nil return means the broker
// is reachable. A non-nil return is an unrecoverable startup failure;
// it wraps the last probe error.
func (w *Watcher) AwaitStartup(ctx context.Context) error {
	delay := w.cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		err := w.probe(ctx)
		w.recordResult(err)

		if err == nil {
			w.ready.Store(true)
			w.cfg.Logger.Info("service connected",
				"service", w.cfg.Name,
				"after_attempts", attempt,
			)
			return nil
		}

		if attempt >= w.cfg.MaxRetries {
			return fmt.Errorf("%s unreachable after %d attempts: %w", w.cfg.Name, attempt, err)
		}

		w.cfg.Logger.Debug("startup probe failed, retrying",
			"service", w.cfg.Name,
			"attempt", attempt,
			"max_retries", w.cfg.MaxRetries,
			"next_delay", delay.String(),
			"error", err,
		)

		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * w.cfg.Multiplier)
		if delay > w.cfg.MaxDelay {
			delay = w.cfg.MaxDelay
		}
	}
}

// Run polls the broker periodically and logs reachability transitions.
// It blocks until ctx is cancelled. Call after AwaitStartup succeeds.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.probe(ctx)
			w.recordResult(err)
			wasReady := w.ready.Load()

			switch {
			case wasReady && err != nil:
				w.ready.Store(false)
				w.cfg.Logger.Warn("service became unreachable",
					"service", w.cfg.Name,
					"error", err,
				)
			case !wasReady && err == nil:
				w.ready.Store(true)
				w.cfg.Logger.Info("service recovered",
					"service", w.cfg.Name,
				)
			case !wasReady && err != nil:
				w.cfg.Logger.Debug("service still unreachable",
					"service", w.cfg.Name,
					"error", err,
				)
			}
		}
	}
}

// probe calls the configured ProbeFunc with a timeout.
func (w *Watcher) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.ProbeTimeout)
	defer cancel()
	return w.cfg.Probe(probeCtx)
}

// recordResult stores the probe outcome under the mutex.
func (w *Watcher) recordResult(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
