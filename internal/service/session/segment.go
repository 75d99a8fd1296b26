package session

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out per-session segment IDs.
type Generator struct {
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns "<sessionId>-seg-<n>" and the sequence number n.
func (g *Generator) Next(sessionId string) (string, int) {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", sessionId, n), int(n)
}
