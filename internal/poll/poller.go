// Package poll runs a refresh callback on a fixed interval for as long as a
// session is active.
package poll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/metrics"
)

// ErrNoToken is returned by Start when there is no authentication token.
var ErrNoToken = errors.New("poll: no authentication token")

// Tick identifies one refresh invocation. Gen is the poller generation the
// tick belongs to; results must be applied through Poller.Apply with it.
type Tick struct {
	Gen   uint64
	Token string
	At    time.Time
}

// RefreshFunc performs one refresh. ctx is cancelled when the poller stops.
type RefreshFunc func(ctx context.Context, tick Tick)

// Poller fires a RefreshFunc immediately on Start and then every interval
// until Stop. Every Start/Stop bumps the generation so that a response that
// arrives after Stop is recognized as stale.
type Poller struct {
	name     string
	interval time.Duration
	refresh  RefreshFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped poller.
func New(name string, interval time.Duration, refresh RefreshFunc) *Poller {
	name = strings.TrimSpace(name)
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Poller{
		name:     name,
		interval: interval,
		refresh:  refresh,
		logger:   logging.Component("poll").With().Str("loop", name).Logger(),
		done:     done,
	}
}

// Name returns the loop name used in logs and metrics.
func (p *Poller) Name() string { return p.name }

// Interval returns the tick period.
func (p *Poller) Interval() time.Duration { return p.interval }

// Start begins polling with token. It restarts the loop if already running.
func (p *Poller) Start(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p.gen++
	p.running = true
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.gen, token, p.done)

	p.logger.Debug().Uint64("gen", p.gen).Dur("interval", p.interval).Msg("poller started")
	return nil
}

// Stop cancels the loop and any in-flight refresh. It does not wait for the
// loop goroutine; use Done for that. Safe to call repeatedly and from within
// a RefreshFunc.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.running {
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
	p.gen++
	p.logger.Debug().Uint64("gen", p.gen).Msg("poller stopped")
}

// Done is closed once the most recently started loop has exited.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Current reports whether gen is the live generation.
func (p *Poller) Current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.gen == gen
}

// Apply runs fn only if gen is still the live generation. fn runs with the
// poller lock held, so Stop cannot interleave; fn must not call back into
// the poller.
func (p *Poller) Apply(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.gen != gen {
		metrics.PollStaleDiscards.WithLabelValues(p.name).Inc()
		p.logger.Debug().Uint64("gen", gen).Uint64("live", p.gen).Msg("discarding stale refresh")
		return false
	}
	fn()
	return true
}

func (p *Poller) loop(ctx context.Context, gen uint64, token string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fire(ctx, gen, token)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		p.fire(ctx, gen, token)
	}
}

func (p *Poller) fire(ctx context.Context, gen uint64, token string) {
	if p.refresh == nil {
		return
	}
	metrics.PollTicks.WithLabelValues(p.name).Inc()
	p.refresh(ctx, Tick{Gen: gen, Token: token, At: time.Now().UTC()})
}
