package controller

import (
	"context"
	"sync"
	"time"
)

// packagingGate is the shared flag the Package task raises around snapshot
// exports. Import and Analysis wait on it at their safe points, polling at
// 1 Hz.
type packagingGate struct {
	mu  sync.Mutex
	set bool
}

func (g *packagingGate) Set() {
	g.mu.Lock()
	g.set = true
	g.mu.Unlock()
}

func (g *packagingGate) Clear() {
	g.mu.Lock()
	g.set = false
	g.mu.Unlock()
}

func (g *packagingGate) isSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}

// Wait blocks while the gate is set, or until ctx is cancelled.
func (g *packagingGate) Wait(ctx context.Context) error {
	for g.isSet() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return ctx.Err()
}
