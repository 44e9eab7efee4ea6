package command

import "sync"

// maxRecordedResults bounds the resolved-command log.
// Old outcomes are evicted FIFO; agents polling long after resolution get
// ErrCommandNotFound rather than the gateway growing without bound.
const maxRecordedResults = 1024

// resultLog records terminal outcomes for later polling.
type resultLog struct {
	mu      sync.Mutex
	results map[string]*Result
	order   []string // insertion order for FIFO eviction
	limit   int
}

func newResultLog(limit int) *resultLog {
	return &resultLog{
		results: make(map[string]*Result),
		limit:   limit,
	}
}

// record stores a terminal outcome, evicting the oldest if at capacity.
func (l *resultLog) record(res *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.results[res.CommandID]; !exists {
		if len(l.order) >= l.limit {
			oldest := l.order[0]
			l.order = l.order[1:]
			delete(l.results, oldest)
		}
		l.order = append(l.order, res.CommandID)
	}
	l.results[res.CommandID] = res
}

// get returns a copy of the recorded outcome.
func (l *resultLog) get(commandID string) (*Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.results[commandID]
	if !ok {
		return nil, false
	}
	copied := *res
	return &copied, true
}

// len returns the number of recorded outcomes.
func (l *resultLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}
