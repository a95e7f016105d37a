package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/Mmx233/QRcon/protocol"
)

// retiredWindow is how many recently delivered ids are remembered to
// recognise stale frames and guard against re-insertion.
const retiredWindow = 64

// pendingResponse holds the fragments received so far for one request id.
type pendingResponse struct {
	fragments [][]byte
	size      int
	lastType  protocol.Type
	openedAt  time.Time
}

// Correlator maps request ids to their pending responses.
// With one request in flight it degenerates to a single slot, but the
// mapping is kept so pipelined exchanges need no protocol change.
type Correlator struct {
	mu      sync.Mutex
	pending map[int32]*pendingResponse

	retired     map[int32]struct{}
	retiredRing [retiredWindow]int32
	ringNext    int
	ringLen     int
}

func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[int32]*pendingResponse),
		retired: make(map[int32]struct{}, retiredWindow),
	}
}

// Open registers an outstanding request.
func (c *Correlator) Open(id int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; ok {
		return fmt.Errorf("%w: %d", ErrIDInUse, id)
	}
	if _, ok := c.retired[id]; ok {
		return fmt.Errorf("%w: %d", ErrRetiredID, id)
	}
	c.pending[id] = &pendingResponse{
		lastType: protocol.TypeMultiPacketResponse,
		openedAt: time.Now(),
	}
	return nil
}

// Append adds one fragment to the pending response of its request id.
func (c *Correlator) Append(frame protocol.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[frame.ID]
	if !ok {
		if _, retired := c.retired[frame.ID]; retired {
			return fmt.Errorf("%w: %d", ErrRetiredID, frame.ID)
		}
		return fmt.Errorf("%w: %d", ErrUnknownID, frame.ID)
	}
	p.fragments = append(p.fragments, frame.Payload)
	p.size += len(frame.Payload)
	p.lastType = frame.Type
	return nil
}

// Deliver removes the pending response and returns the fragments
// concatenated in arrival order. An id is delivered at most once.
func (c *Correlator) Deliver(id int32) (protocol.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		if _, retired := c.retired[id]; retired {
			return protocol.Packet{}, fmt.Errorf("%w: %d", ErrRetiredID, id)
		}
		return protocol.Packet{}, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(c.pending, id)
	c.retire(id)

	payload := make([]byte, 0, p.size)
	for _, f := range p.fragments {
		payload = append(payload, f...)
	}
	return protocol.Packet{ID: id, Type: p.lastType, Payload: payload}, nil
}

// Fragments returns how many fragments are buffered for id.
func (c *Correlator) Fragments(id int32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[id]; ok {
		return len(p.fragments)
	}
	return 0
}

// Discard drops a pending response without delivering it. Frames that
// still arrive for the id are treated as stale.
func (c *Correlator) Discard(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.retire(id)
	}
}

// Retire marks an id that never had a pending response (a marker frame)
// so that late frames carrying it are recognised as stale.
func (c *Correlator) Retire(id int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		c.retire(id)
	}
}

// FailAll drops every pending response and returns their ids.
// Used when the connection is torn down.
func (c *Correlator) FailAll() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int32, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
		c.retire(id)
	}
	clear(c.pending)
	return ids
}

// Has reports whether id has an outstanding request.
func (c *Correlator) Has(id int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Retired reports whether id was delivered or discarded recently.
func (c *Correlator) Retired(id int32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.retired[id]
	return ok
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// retire must be called with mu held.
func (c *Correlator) retire(id int32) {
	if _, ok := c.retired[id]; ok {
		return
	}
	if c.ringLen == retiredWindow {
		delete(c.retired, c.retiredRing[c.ringNext])
	} else {
		c.ringLen++
	}
	c.retiredRing[c.ringNext] = id
	c.ringNext = (c.ringNext + 1) % retiredWindow
	c.retired[id] = struct{}{}
}
