package guest

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/graphshare/src/protocol"
)

// result settles a pending request: either a response or an error.
type result struct {
	resp *protocol.FileResponse
	err  error
}

type pendingRequest struct {
	ch        chan result
	timer     *time.Timer
	createdAt time.Time
}

// pendingTracker correlates outbound file requests with their responses. An
// entry is removed together with its first settlement, so it can never settle
// twice.
type pendingTracker struct {
	sync.Mutex
	requests map[string]*pendingRequest
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{
		requests: make(map[string]*pendingRequest),
	}
}

// add registers a request that settles with ErrRequestTimeout if nothing
// else settles it within timeout.
func (t *pendingTracker) add(id string, timeout time.Duration) <-chan result {
	p := &pendingRequest{
		ch:        make(chan result, 1),
		createdAt: time.Now(),
	}

	t.Lock()
	defer t.Unlock()

	t.requests[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		t.settle(id, result{err: protocol.ErrRequestTimeout})
	})

	return p.ch
}

// settle removes the request and delivers res. It returns false if the request
// was already settled, or never existed.
func (t *pendingTracker) settle(id string, res result) bool {
	t.Lock()
	p, ok := t.requests[id]
	if ok {
		delete(t.requests, id)
	}
	t.Unlock()

	if !ok {
		return false
	}

	p.timer.Stop()
	p.ch <- res

	return true
}

// resolve settles the request that resp answers.
func (t *pendingTracker) resolve(resp *protocol.FileResponse) bool {
	return t.settle(resp.RequestID, result{resp: resp})
}

// rejectAll settles every request with err.
func (t *pendingTracker) rejectAll(err error) int {
	t.Lock()
	requests := t.requests
	t.requests = make(map[string]*pendingRequest)
	t.Unlock()

	for _, p := range requests {
		p.timer.Stop()
		p.ch <- result{err: err}
	}

	return len(requests)
}

func (t *pendingTracker) len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.requests)
}

// oldest returns the age of the oldest request, or 0.
func (t *pendingTracker) oldest() time.Duration {
	t.Lock()
	defer t.Unlock()

	var age time.Duration
	for _, p := range t.requests {
		if a := time.Since(p.createdAt); a > age {
			age = a
		}
	}
	return age
}
