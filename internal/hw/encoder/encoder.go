// Package encoder counts incremental quadrature encoder positions.
package encoder

import "sync"

// Encoder reports a signed position that can be zeroed.
type Encoder interface {
	Position() int64
	Reset()
}

// DefaultDivisor counts every edge, so axis bounds are in single edges.
const DefaultDivisor = 1

// transitions maps prev<<2|cur of the (A,B) state to a step. Invalid
// double transitions count as zero.
var transitions = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// Quadrature decodes A/B edges into a position.
type Quadrature struct {
	mu      sync.Mutex
	a, b    bool
	state   uint8
	count   int64
	divisor int64
}

// NewQuadrature returns a decoder starting at zero with the given initial
// channel levels. A divisor below 1 selects DefaultDivisor.
func NewQuadrature(divisor int, a, b bool) *Quadrature {
	if divisor < 1 {
		divisor = DefaultDivisor
	}
	q := &Quadrature{divisor: int64(divisor)}
	q.a, q.b = a, b
	q.state = stateOf(a, b)
	return q
}

func stateOf(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Update feeds the current levels of both channels.
func (q *Quadrature) Update(a, b bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.update(a, b)
}

// SetA feeds a level change of channel A.
func (q *Quadrature) SetA(level bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.update(level, q.b)
}

// SetB feeds a level change of channel B.
func (q *Quadrature) SetB(level bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.update(q.a, level)
}

func (q *Quadrature) update(a, b bool) {
	cur := stateOf(a, b)
	q.count += int64(transitions[q.state<<2|cur])
	q.state = cur
	q.a, q.b = a, b
}

// Position implements Encoder.
func (q *Quadrature) Position() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count / q.divisor
}

// Reset implements Encoder.
func (q *Quadrature) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.count = 0
}
