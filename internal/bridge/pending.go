package bridge

import (
	"encoding/json"
	"strconv"
	"sync"
)

type callResult struct {
	result json.RawMessage
	err    error
}

// pendingRequest is an in-flight call awaiting its correlated Response,
// tagged with the connection it was sent to.
type pendingRequest struct {
	id     string
	connID uint64
	ch     chan callResult
}

// pendingTable owns request id minting and exactly-once settlement. Ids are
// strictly increasing and never reused within the table's lifetime.
type pendingTable struct {
	mu     sync.Mutex
	nextID uint64
	reqs   map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{reqs: make(map[string]*pendingRequest)}
}

func (t *pendingTable) add(connID uint64) *pendingRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	pr := &pendingRequest{
		id:     strconv.FormatUint(t.nextID, 10),
		connID: connID,
		ch:     make(chan callResult, 1),
	}
	t.reqs[pr.id] = pr
	pendingRequests.Set(float64(len(t.reqs)))
	return pr
}

// connOf reports which connection a pending id belongs to.
func (t *pendingTable) connOf(id string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pr, ok := t.reqs[id]
	if !ok {
		return 0, false
	}
	return pr.connID, true
}

// settle completes the request exactly once. It reports false when the id
// is unknown or was already settled; late timers and stale replies are
// no-ops.
func (t *pendingTable) settle(id string, res callResult) bool {
	t.mu.Lock()
	pr, ok := t.reqs[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.reqs, id)
	pendingRequests.Set(float64(len(t.reqs)))
	t.mu.Unlock()
	pr.ch <- res
	return true
}

// remove drops an entry without settling it. Used when the frame was never
// sent, before any waiter exists.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reqs, id)
	pendingRequests.Set(float64(len(t.reqs)))
}

// cancelConn rejects every request owned by connID.
func (t *pendingTable) cancelConn(connID uint64, err error) int {
	t.mu.Lock()
	var victims []*pendingRequest
	for id, pr := range t.reqs {
		if pr.connID == connID {
			victims = append(victims, pr)
			delete(t.reqs, id)
		}
	}
	pendingRequests.Set(float64(len(t.reqs)))
	t.mu.Unlock()
	for _, pr := range victims {
		pr.ch <- callResult{err: err}
	}
	return len(victims)
}

// drain rejects every request regardless of owner.
func (t *pendingTable) drain(err error) int {
	t.mu.Lock()
	victims := make([]*pendingRequest, 0, len(t.reqs))
	for id, pr := range t.reqs {
		victims = append(victims, pr)
		delete(t.reqs, id)
	}
	pendingRequests.Set(0)
	t.mu.Unlock()
	for _, pr := range victims {
		pr.ch <- callResult{err: err}
	}
	return len(victims)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.reqs)
}
