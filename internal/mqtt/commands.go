package mqtt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Canceller stops the in-flight agent request. [agent.Driver]
// implements it.
type Canceller interface {
	Cancel() bool
}

// commandHandler dispatches inbound messages on <prefix>/command/#.
type commandHandler struct {
	prefix  string
	target  Canceller
	limiter *commandBucket
	logger  *slog.Logger
}

// handle runs the command named by topic. It reports whether the topic
// was a known command.
func (h *commandHandler) handle(topic string, payload []byte) bool {
	name, ok := strings.CutPrefix(topic, h.prefix+"/command/")
	if !ok {
		return false
	}
	if h.limiter != nil && !h.limiter.allow() {
		return true
	}

	switch name {
	case "cancel":
		if h.target == nil {
			h.logger.Debug("mqtt cancel ignored, no driver")
			return true
		}
		cancelled := h.target.Cancel()
		h.logger.Info("mqtt cancel command", "cancelled", cancelled, "payload_size", len(payload))
		return true
	default:
		h.logger.Debug("mqtt unknown command", "command", name)
		return false
	}
}

// commandBucket is a token bucket over inbound commands: it holds up
// to burst tokens and regains one every interval/burst. Dropped
// commands are summarized by report.
type commandBucket struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	refill   float64 // tokens per second
	last     time.Time
	dropped  int
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func newCommandBucket(burst int, interval time.Duration, logger *slog.Logger) *commandBucket {
	b := &commandBucket{
		burst:    float64(burst),
		tokens:   float64(burst),
		refill:   float64(burst) / interval.Seconds(),
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
	b.last = b.now()
	return b
}

// allow takes a token if one is available.
func (b *commandBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.now()
	b.tokens = min(b.burst, b.tokens+t.Sub(b.last).Seconds()*b.refill)
	b.last = t
	if b.tokens < 1 {
		b.dropped++
		return false
	}
	b.tokens--
	return true
}

// report logs and clears the drop count.
func (b *commandBucket) report() {
	b.mu.Lock()
	dropped := b.dropped
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("mqtt commands dropped due to rate limit",
			"dropped", dropped, "limit", int(b.burst), "per", b.interval.String())
	}
}

// run reports drops once per interval until ctx is done.
func (b *commandBucket) run(ctx context.Context) {
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			b.report()
		}
	}
}
