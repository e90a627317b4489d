package encoder

import (
	"sync"
	"testing"
)

// forward is one quadrature cycle in the positive direction.
var forward = [][2]bool{{false, true}, {true, true}, {true, false}, {false, false}}

func step(q *Quadrature, seq [][2]bool, cycles int) {
	for i := 0; i < cycles; i++ {
		for _, s := range seq {
			q.Update(s[0], s[1])
		}
	}
}

func reversed(seq [][2]bool) [][2]bool {
	out := make([][2]bool, 0, len(seq))
	for i := len(seq) - 2; i >= 0; i-- {
		out = append(out, seq[i])
	}
	return append(out, seq[len(seq)-1])
}

func TestQuadrature_CountsFullCycles(t *testing.T) {
	q := NewQuadrature(4, false, false)
	step(q, forward, 10)
	if got := q.Position(); got != 10 {
		t.Errorf("Position after 10 forward cycles = %d, want 10", got)
	}

	step(q, reversed(forward), 3)
	if got := q.Position(); got != 7 {
		t.Errorf("Position after 3 reverse cycles = %d, want 7", got)
	}
}

func TestQuadrature_DivisorOne(t *testing.T) {
	q := NewQuadrature(1, false, false)
	step(q, forward, 2)
	if got := q.Position(); got != 8 {
		t.Errorf("Position = %d, want 8 edges", got)
	}
}

func TestQuadrature_DefaultDivisorCountsEdges(t *testing.T) {
	q := NewQuadrature(0, false, false)
	step(q, forward, 3)
	if got := q.Position(); got != 12 {
		t.Errorf("Position = %d, want 12 edges", got)
	}
}

func TestQuadrature_InvalidTransitionIgnored(t *testing.T) {
	q := NewQuadrature(1, false, false)
	q.Update(true, true) // both channels at once
	if got := q.Position(); got != 0 {
		t.Errorf("Position = %d, want 0", got)
	}
}

func TestQuadrature_SingleChannelEdges(t *testing.T) {
	q := NewQuadrature(1, false, false)
	q.SetB(true)
	q.SetA(true)
	q.SetB(false)
	q.SetA(false)
	if got := q.Position(); got != 4 {
		t.Errorf("Position = %d, want 4", got)
	}
}

func TestQuadrature_Reset(t *testing.T) {
	q := NewQuadrature(4, false, false)
	step(q, forward, 5)
	q.Reset()
	if got := q.Position(); got != 0 {
		t.Errorf("Position after Reset = %d, want 0", got)
	}
	step(q, forward, 1)
	if got := q.Position(); got != 1 {
		t.Errorf("Position = %d, want 1", got)
	}
}

func TestQuadrature_ConcurrentReaders(t *testing.T) {
	q := NewQuadrature(4, false, false)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		step(q, forward, 1000)
	}()
	for i := 0; i < 100; i++ {
		_ = q.Position()
	}
	wg.Wait()
	if got := q.Position(); got != 1000 {
		t.Errorf("Position = %d, want 1000", got)
	}
}
