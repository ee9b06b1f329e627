package store

import (
	"strings"
	"sync"
	"time"

	"github.com/yungbote/dcengine/internal/platform/logger"
)

// Hooks captures write-path observability events.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type NoopHooks struct{}

func (NoopHooks) ObserveOperation(string, string, time.Duration) {}
func (NoopHooks) IncConflict(string)                             {}
func (NoopHooks) IncRetry(string)                                {}

type joined []Hooks

// JoinHooks fans every event out to each non-nil hook.
func JoinHooks(hooks ...Hooks) Hooks {
	out := joined{}
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		return NoopHooks{}
	}
	return out
}

func (j joined) ObserveOperation(name, status string, dur time.Duration) {
	for _, h := range j {
		h.ObserveOperation(name, status, dur)
	}
}

func (j joined) IncConflict(name string) {
	for _, h := range j {
		h.IncConflict(name)
	}
}

func (j joined) IncRetry(name string) {
	for _, h := range j {
		h.IncRetry(name)
	}
}

type logHooks struct {
	log  *logger.Logger
	slow time.Duration
}

// NewLogHooks reports conflicts, retries and slow operations to the log stream.
func NewLogHooks(log *logger.Logger, slow time.Duration) Hooks {
	if log == nil {
		return NoopHooks{}
	}
	return &logHooks{log: log.With("component", "StoreHooks"), slow: slow}
}

func (h *logHooks) ObserveOperation(name, status string, dur time.Duration) {
	if h.slow > 0 && dur >= h.slow {
		h.log.Warn("slow write operation", "op", strings.TrimSpace(name), "status", status, "duration_ms", dur.Milliseconds())
	}
}

func (h *logHooks) IncConflict(name string) {
	h.log.Info("write conflict", "op", strings.TrimSpace(name))
}

func (h *logHooks) IncRetry(name string) {
	h.log.Warn("retryable write failure", "op", strings.TrimSpace(name))
}

// CountingHooks keeps per-operation counters in memory.
type CountingHooks struct {
	mu         sync.Mutex
	Operations map[string]map[string]int
	Conflicts  map[string]int
	Retries    map[string]int
}

func NewCountingHooks() *CountingHooks {
	return &CountingHooks{
		Operations: map[string]map[string]int{},
		Conflicts:  map[string]int{},
		Retries:    map[string]int{},
	}
}

func (h *CountingHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Operations[name] == nil {
		h.Operations[name] = map[string]int{}
	}
	h.Operations[name][status]++
}

func (h *CountingHooks) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts[name]++
}

func (h *CountingHooks) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries[name]++
}
