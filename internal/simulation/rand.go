package simulation

import (
	"math/rand"
	"sync"
)

// Source supplies the random draws behind every probabilistic decision.
// Injecting it lets tests script exact branch outcomes.
type Source interface {
	Float64() float64
	Intn(n int) int
	Int63n(n int64) int64
}

// NewSource returns a seeded, goroutine-safe Source.
func NewSource(seed int64) Source {
	return &lockedSource{r: rand.New(rand.NewSource(seed))}
}

type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Intn(n)
}

func (s *lockedSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Int63n(n)
}

// SequenceSource replays a scripted list of float draws, cycling when
// exhausted. Intn/Int63n derive from the same sequence.
type SequenceSource struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequenceSource creates a source that returns the given values in order.
func NewSequenceSource(values ...float64) *SequenceSource {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &SequenceSource{values: values}
}

func (s *SequenceSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

func (s *SequenceSource) Intn(n int) int {
	return int(s.Float64() * float64(n))
}

func (s *SequenceSource) Int63n(n int64) int64 {
	return int64(s.Float64() * float64(n))
}
