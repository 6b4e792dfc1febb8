package pool

import "time"

type result struct {
	conn *Connection
	err  error
}

// request is a caller waiting for a connection. settled is guarded by the
// pool lock and flips exactly once, so a request is resolved exactly once.
type request struct {
	requester  string
	tier       Tier
	enqueuedAt time.Time
	timer      *time.Timer
	result     chan result
	settled    bool
}

// settle resolves the request. The caller must hold the pool lock.
func (r *request) settle(res result) {
	r.settled = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.result <- res
}

// waitQueue holds pending requests in two bands. Requests with a positive
// tier priority are served before standard ones; each band is FIFO.
type waitQueue struct {
	high     []*request
	standard []*request
}

func (q *waitQueue) push(r *request) {
	if r.tier.Priority() > 0 {
		q.high = append(q.high, r)
		return
	}
	q.standard = append(q.standard, r)
}

func (q *waitQueue) pop() *request {
	if len(q.high) > 0 {
		r := q.high[0]
		q.high[0] = nil
		q.high = q.high[1:]
		return r
	}
	if len(q.standard) > 0 {
		r := q.standard[0]
		q.standard[0] = nil
		q.standard = q.standard[1:]
		return r
	}
	return nil
}

func (q *waitQueue) remove(r *request) bool {
	return removeFrom(&q.high, r) || removeFrom(&q.standard, r)
}

func removeFrom(band *[]*request, r *request) bool {
	for i, cand := range *band {
		if cand == r {
			*band = append((*band)[:i], (*band)[i+1:]...)
			return true
		}
	}
	return false
}

func (q *waitQueue) len() int {
	return len(q.high) + len(q.standard)
}

// drain removes and returns every request, priority band first.
func (q *waitQueue) drain() []*request {
	all := make([]*request, 0, q.len())
	all = append(all, q.high...)
	all = append(all, q.standard...)
	q.high = nil
	q.standard = nil
	return all
}
