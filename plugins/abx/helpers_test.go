package abx

import (
	"context"
	"strings"
	"sync"
	"testing"

	"abxcore/internal/core"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (c *captureLogger) add(level, msg string, kv []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := []string{level + ":" + msg}
	for i := 0; i+1 < len(kv); i += 2 {
		if s, ok := kv[i+1].(string); ok {
			parts = append(parts, s)
		}
	}
	c.entries = append(c.entries, strings.Join(parts, " "))
}

func (c *captureLogger) Debug(msg string, kv ...any) { c.add("d", msg, kv) }
func (c *captureLogger) Info(msg string, kv ...any)  { c.add("i", msg, kv) }
func (c *captureLogger) Warn(msg string, kv ...any)  { c.add("w", msg, kv) }
func (c *captureLogger) Error(msg string, kv ...any) { c.add("e", msg, kv) }

func (c *captureLogger) count(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

func installed(t *testing.T, opts []Option, svcOpts ...core.Option) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(core.NewRulesEngine(), svcOpts...)
	if _, err := svc.InstallPlugin(context.Background(), New(opts...)); err != nil {
		t.Fatalf("install abx: %v", err)
	}
	return svc
}

func view(t *testing.T, svc *core.Service, fn func(core.TransactionView)) {
	t.Helper()
	if err := svc.View(context.Background(), func(v core.TransactionView) error {
		fn(v)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func titles(brains []core.Brain) []string {
	out := make([]string, 0, len(brains))
	for _, b := range brains {
		out = append(out, b.Title)
	}
	return out
}
