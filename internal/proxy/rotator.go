package proxy

// Rotator hands out pool entries round robin.
//
// The counter starts at 0 and advances on every call, so the n-th call
// (0-based) uses index n mod len(pool). There is no health tracking: a proxy
// that just failed is used again on its next turn.
//
// A Rotator is owned by the dispatch loop and is not safe for concurrent use.
type Rotator struct {
	counter int
}

// NewRotator creates a Rotator whose first call returns index 0.
func NewRotator() *Rotator {
	return &Rotator{}
}

// Next returns the proxy for the current call and its index in pool.
// An empty pool yields Direct and index -1.
func (r *Rotator) Next(pool Pool) (Proxy, int) {
	if len(pool) == 0 {
		return Direct, -1
	}
	index := r.counter % len(pool)
	r.counter++
	return pool[index], index
}

// Calls returns the number of Next calls so far.
func (r *Rotator) Calls() int {
	return r.counter
}
