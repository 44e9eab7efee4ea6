package command

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// Entry lifecycle states.
const (
	statePending int32 = iota
	stateResolved
)

// entry is one in-flight command awaiting its response.
//
// An entry resolves exactly once. The three possible resolvers (matching
// response, timeout reaper, caller cancellation) race on the state CAS;
// the single winner writes the result and closes done. Losers observe the
// failed CAS and back off, which is how duplicate responses become a
// counted non-event instead of a crash.
type entry struct {
	commandID    string
	deviceID     string
	action       string
	dispatchedAt time.Time
	deadline     time.Time

	state atomic.Int32

	// result is written exactly once, before done is closed.
	result *Result
	done   chan struct{}
}

// newEntry creates a pending entry with its deadline already fixed.
func newEntry(commandID, deviceID, action string, dispatchedAt time.Time, timeout time.Duration) *entry {
	return &entry{
		commandID:    commandID,
		deviceID:     deviceID,
		action:       action,
		dispatchedAt: dispatchedAt,
		deadline:     dispatchedAt.Add(timeout),
		done:         make(chan struct{}),
	}
}

// resolve attempts to deliver the terminal result.
// Returns true for the single winning caller; false means the entry was
// already resolved by someone else and res was discarded.
func (e *entry) resolve(res *Result) bool {
	if !e.state.CompareAndSwap(statePending, stateResolved) {
		return false
	}
	e.result = res
	close(e.done)
	return true
}

// resolved reports whether the entry has reached its terminal state.
func (e *entry) resolved() bool {
	return e.state.Load() == stateResolved
}

// Table tracks pending commands by ID with an auxiliary deadline ordering.
//
// The map serves O(1) correlation lookups on the response path. The
// min-heap lets the reaper find expired entries without scanning the whole
// table; it holds the same entry pointers and is cleaned lazily, so
// removal stays cheap.
//
// All methods are safe for concurrent use.
type Table struct {
	mu         sync.Mutex
	entries    map[string]*entry
	byDeadline deadlineHeap
}

// NewTable creates an empty pending-command table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]*entry),
	}
}

// Insert registers a pending entry.
// Returns ErrDuplicateCommandID if the ID is already tracked; the caller
// regenerates the ID and retries rather than clobbering an in-flight command.
func (t *Table) Insert(e *entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[e.commandID]; exists {
		return ErrDuplicateCommandID
	}
	t.entries[e.commandID] = e
	heap.Push(&t.byDeadline, e)
	return nil
}

// Get returns the pending entry for a command ID.
func (t *Table) Get(commandID string) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[commandID]
	return e, ok
}

// Remove drops the entry from the table.
// The matching heap item is left behind and discarded lazily by Expired.
func (t *Table) Remove(commandID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, commandID)
}

// All returns every tracked entry, pending or not.
func (t *Table) All() []*entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Expired pops every entry whose deadline has passed.
//
// Heap items whose entry was already removed or resolved are stale; they
// are discarded here rather than at removal time. The returned entries are
// still pending as of this call, but the caller must still win the resolve
// CAS before acting on them.
func (t *Table) Expired(now time.Time) []*entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*entry
	for t.byDeadline.Len() > 0 {
		head := t.byDeadline[0]
		if head.deadline.After(now) {
			break
		}
		heap.Pop(&t.byDeadline)

		current, ok := t.entries[head.commandID]
		if !ok || current != head {
			continue // stale heap item
		}
		if head.resolved() {
			continue
		}
		expired = append(expired, head)
	}
	return expired
}

// deadlineHeap is a min-heap of entries ordered by deadline.
type deadlineHeap []*entry

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
