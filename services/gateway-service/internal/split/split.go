// Package split implements the weighted traffic split between the two
// user-service instances during the migration.
package split

import "math/rand/v2"

// Splitter picks one of two targets per request with no memory between
// requests: a uniform draw in [0,100) below Weight selects V1, anything
// else selects V2. There is deliberately no session affinity; a client
// may land on a different instance on every request.
type Splitter struct {
	Weight int // percentage of traffic sent to V1, 0..100
	V1     string
	V2     string

	// draw is swappable for deterministic tests. Defaults to the
	// top-level rand/v2 generator, which is safe for concurrent use.
	draw func() float64
}

func New(weight int, v1, v2 string) *Splitter {
	if weight < 0 {
		weight = 0
	}
	if weight > 100 {
		weight = 100
	}
	return &Splitter{Weight: weight, V1: v1, V2: v2}
}

// Pick returns the target for one request.
func (s *Splitter) Pick() string {
	draw := s.draw
	if draw == nil {
		draw = rand.Float64
	}
	if draw()*100 < float64(s.Weight) {
		return s.V1
	}
	return s.V2
}
