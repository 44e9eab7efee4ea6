package command

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Entry Tests
// =============================================================================

func TestEntryResolveOnce(t *testing.T) {
	ent := newEntry("cmd-1", "mpsoc-01", "GET_DEVICE_STATUS", time.Now(), time.Second)

	first := &Result{CommandID: "cmd-1", Status: StatusSuccess}
	second := &Result{CommandID: "cmd-1", Status: StatusTimeout}

	if !ent.resolve(first) {
		t.Fatal("first resolve() = false, want true")
	}
	if ent.resolve(second) {
		t.Error("second resolve() = true, want false")
	}

	select {
	case <-ent.done:
	default:
		t.Fatal("done channel not closed after resolve")
	}

	if ent.result != first {
		t.Error("losing resolve overwrote the winner's result")
	}
	if !ent.resolved() {
		t.Error("resolved() = false after resolve")
	}
}

func TestEntryConcurrentResolve(t *testing.T) {
	ent := newEntry("cmd-1", "mpsoc-01", "GET_DEVICE_STATUS", time.Now(), time.Second)

	const racers = 16
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if ent.resolve(&Result{CommandID: "cmd-1"}) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("resolve() won %d times, want exactly 1", wins)
	}
}

// =============================================================================
// Table Tests
// =============================================================================

func TestTableInsertAndGet(t *testing.T) {
	table := NewTable()
	ent := newEntry("cmd-1", "mpsoc-01", "GET_DEVICE_STATUS", time.Now(), time.Second)

	if err := table.Insert(ent); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, ok := table.Get("cmd-1")
	if !ok {
		t.Fatal("Get() ok = false after Insert")
	}
	if got != ent {
		t.Error("Get() returned a different entry")
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestTableInsertDuplicate(t *testing.T) {
	table := NewTable()
	now := time.Now()

	if err := table.Insert(newEntry("cmd-1", "mpsoc-01", "A", now, time.Second)); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err := table.Insert(newEntry("cmd-1", "mpsoc-02", "B", now, time.Second))
	if !errors.Is(err, ErrDuplicateCommandID) {
		t.Errorf("Insert() duplicate error = %v, want ErrDuplicateCommandID", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d after rejected insert, want 1", table.Len())
	}
}

func TestTableRemove(t *testing.T) {
	table := NewTable()
	table.Insert(newEntry("cmd-1", "mpsoc-01", "A", time.Now(), time.Second))

	table.Remove("cmd-1")

	if _, ok := table.Get("cmd-1"); ok {
		t.Error("Get() ok = true after Remove")
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0", table.Len())
	}

	// Removing a missing entry is a no-op.
	table.Remove("cmd-ghost")
}

func TestExpiredReturnsOnlyPastDeadline(t *testing.T) {
	table := NewTable()
	now := time.Now()

	soon := newEntry("cmd-soon", "mpsoc-01", "A", now, 50*time.Millisecond)
	later := newEntry("cmd-later", "mpsoc-01", "A", now, time.Hour)
	table.Insert(soon)
	table.Insert(later)

	expired := table.Expired(now.Add(100 * time.Millisecond))
	if len(expired) != 1 || expired[0] != soon {
		t.Fatalf("Expired() = %v entries, want just cmd-soon", len(expired))
	}

	// The later entry stays tracked and unexpired.
	if _, ok := table.Get("cmd-later"); !ok {
		t.Error("unexpired entry disappeared from table")
	}
	if more := table.Expired(now.Add(200 * time.Millisecond)); len(more) != 0 {
		t.Errorf("second Expired() = %d entries, want 0", len(more))
	}
}

func TestExpiredOrderIndependentOfInsertion(t *testing.T) {
	table := NewTable()
	now := time.Now()

	// Insert with deadlines in reverse order; the heap must still yield
	// both once the clock passes them.
	late := newEntry("cmd-late", "mpsoc-01", "A", now, 200*time.Millisecond)
	early := newEntry("cmd-early", "mpsoc-01", "A", now, 100*time.Millisecond)
	table.Insert(late)
	table.Insert(early)

	expired := table.Expired(now.Add(150 * time.Millisecond))
	if len(expired) != 1 || expired[0] != early {
		t.Fatalf("Expired() at t+150ms returned %d entries, want just cmd-early", len(expired))
	}

	expired = table.Expired(now.Add(250 * time.Millisecond))
	if len(expired) != 1 || expired[0] != late {
		t.Fatalf("Expired() at t+250ms returned %d entries, want just cmd-late", len(expired))
	}
}

func TestExpiredSkipsRemovedEntries(t *testing.T) {
	table := NewTable()
	now := time.Now()

	ent := newEntry("cmd-1", "mpsoc-01", "A", now, 50*time.Millisecond)
	table.Insert(ent)
	table.Remove("cmd-1") // resolved and removed before expiry

	if expired := table.Expired(now.Add(time.Second)); len(expired) != 0 {
		t.Errorf("Expired() returned %d removed entries, want 0", len(expired))
	}
}

func TestExpiredSkipsResolvedEntries(t *testing.T) {
	table := NewTable()
	now := time.Now()

	ent := newEntry("cmd-1", "mpsoc-01", "A", now, 50*time.Millisecond)
	table.Insert(ent)
	ent.resolve(&Result{CommandID: "cmd-1", Status: StatusSuccess})

	if expired := table.Expired(now.Add(time.Second)); len(expired) != 0 {
		t.Errorf("Expired() returned %d resolved entries, want 0", len(expired))
	}
}

// =============================================================================
// Result Log Tests
// =============================================================================

func TestResultLogEviction(t *testing.T) {
	log := newResultLog(2)

	log.record(&Result{CommandID: "cmd-1", Status: StatusSuccess})
	log.record(&Result{CommandID: "cmd-2", Status: StatusSuccess})
	log.record(&Result{CommandID: "cmd-3", Status: StatusSuccess})

	if _, ok := log.get("cmd-1"); ok {
		t.Error("oldest outcome survived past capacity")
	}
	if _, ok := log.get("cmd-2"); !ok {
		t.Error("cmd-2 evicted early")
	}
	if _, ok := log.get("cmd-3"); !ok {
		t.Error("cmd-3 missing")
	}
	if log.len() != 2 {
		t.Errorf("len() = %d, want 2", log.len())
	}
}

func TestResultLogGetReturnsCopy(t *testing.T) {
	log := newResultLog(8)
	log.record(&Result{CommandID: "cmd-1", Status: StatusSuccess, Message: "ok"})

	res, _ := log.get("cmd-1")
	res.Message = "mutated"

	again, _ := log.get("cmd-1")
	if again.Message != "ok" {
		t.Error("mutation of returned result leaked into log")
	}
}
