package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockRepository is an in-memory Repository for registry tests.
type mockRepository struct {
	mu      sync.Mutex
	devices map[string]Device
	upserts int
	failAll bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{devices: make(map[string]Device)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (m *mockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, *d.DeepCopy())
	}
	return out, nil
}

func (m *mockRepository) Upsert(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("mock: upsert failed")
	}
	m.upserts++
	m.devices[d.ID] = *d.DeepCopy()
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(m.devices, id)
	return nil
}

// =============================================================================
// RecordActivity Tests
// =============================================================================

func TestRecordActivityCreatesDevice(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	now := time.Now()

	if err := r.RecordActivity("mpsoc-01", now); err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}

	d, err := r.Get("mpsoc-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !d.FirstSeenAt.Equal(now) {
		t.Errorf("FirstSeenAt = %v, want %v", d.FirstSeenAt, now)
	}
	if !d.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v, want %v", d.LastSeenAt, now)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRecordActivityAdvancesLastSeen(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	first := time.Now()
	second := first.Add(5 * time.Second)

	if err := r.RecordActivity("mpsoc-01", first); err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	if err := r.RecordActivity("mpsoc-01", second); err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}

	d, _ := r.Get("mpsoc-01")
	if !d.LastSeenAt.Equal(second) {
		t.Errorf("LastSeenAt = %v, want %v", d.LastSeenAt, second)
	}
	if !d.FirstSeenAt.Equal(first) {
		t.Errorf("FirstSeenAt = %v, want %v (must not advance)", d.FirstSeenAt, first)
	}
}

func TestRecordActivityIgnoresStaleArrival(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	now := time.Now()

	r.RecordActivity("mpsoc-01", now)
	r.RecordActivity("mpsoc-01", now.Add(-10*time.Second))

	d, _ := r.Get("mpsoc-01")
	if !d.LastSeenAt.Equal(now) {
		t.Errorf("LastSeenAt = %v, want %v (stale arrival must not rewind)", d.LastSeenAt, now)
	}
}

func TestRecordActivityEmptyID(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)

	err := r.RecordActivity("", time.Now())
	if !errors.Is(err, ErrInvalidDeviceID) {
		t.Errorf("RecordActivity(\"\") error = %v, want ErrInvalidDeviceID", err)
	}
}

// =============================================================================
// Liveness Tests
// =============================================================================

func TestOnlineAt(t *testing.T) {
	threshold := 30 * time.Second
	r := NewRegistry(nil, threshold)
	seen := time.Now()
	r.RecordActivity("mpsoc-01", seen)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just seen", seen, true},
		{"within threshold", seen.Add(threshold - time.Second), true},
		{"instant before threshold", seen.Add(threshold - time.Nanosecond), true},
		{"exactly at threshold", seen.Add(threshold), false},
		{"past threshold", seen.Add(threshold + time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.OnlineAt("mpsoc-01", tt.now); got != tt.want {
				t.Errorf("OnlineAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnlineAtUnknownDevice(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)

	if r.OnlineAt("ghost", time.Now()) {
		t.Error("OnlineAt() = true for unknown device, want false")
	}
}

// =============================================================================
// SetInfo Tests
// =============================================================================

func TestSetInfoMergesReportedFields(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	r.RecordActivity("mpsoc-01", time.Now())

	err := r.SetInfo("mpsoc-01", Info{
		IPAddress:       "10.0.4.21",
		GeoLocation:     "lab-2/rack-4",
		ModelParameters: map[string]float64{"L_uH": 22.0, "C_uF": 470.0},
	})
	if err != nil {
		t.Fatalf("SetInfo() error = %v", err)
	}

	// A later heartbeat reporting only the IP must not wipe the rest.
	if err := r.SetInfo("mpsoc-01", Info{IPAddress: "10.0.4.22"}); err != nil {
		t.Fatalf("SetInfo() error = %v", err)
	}

	d, _ := r.Get("mpsoc-01")
	if d.IPAddress != "10.0.4.22" {
		t.Errorf("IPAddress = %q, want %q", d.IPAddress, "10.0.4.22")
	}
	if d.GeoLocation != "lab-2/rack-4" {
		t.Errorf("GeoLocation = %q, want %q", d.GeoLocation, "lab-2/rack-4")
	}
	if d.ModelParameters["C_uF"] != 470.0 {
		t.Errorf("ModelParameters[C_uF] = %v, want 470.0", d.ModelParameters["C_uF"])
	}
}

func TestSetInfoUnknownDevice(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)

	err := r.SetInfo("ghost", Info{IPAddress: "10.0.0.1"})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("SetInfo() error = %v, want ErrDeviceNotFound", err)
	}
}

// =============================================================================
// Read Isolation Tests
// =============================================================================

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	r.RecordActivity("mpsoc-01", time.Now())
	r.SetInfo("mpsoc-01", Info{ModelParameters: map[string]float64{"L_uH": 22.0}})

	d1, _ := r.Get("mpsoc-01")
	d1.ModelParameters["L_uH"] = 99.0
	d1.IPAddress = "mutated"

	d2, _ := r.Get("mpsoc-01")
	if d2.ModelParameters["L_uH"] != 22.0 {
		t.Error("mutation of returned device leaked into registry")
	}
	if d2.IPAddress == "mutated" {
		t.Error("mutation of returned device leaked into registry")
	}
}

func TestListSortedByID(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	now := time.Now()
	for _, id := range []string{"mpsoc-03", "mpsoc-01", "mpsoc-02"} {
		r.RecordActivity(id, now)
	}

	devices := r.List()
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}
	for i, want := range []string{"mpsoc-01", "mpsoc-02", "mpsoc-03"} {
		if devices[i].ID != want {
			t.Errorf("List()[%d].ID = %q, want %q", i, devices[i].ID, want)
		}
	}
}

// =============================================================================
// Persistence Tests
// =============================================================================

func TestLoadSeedsFromRepository(t *testing.T) {
	repo := newMockRepository()
	seen := time.Now().Add(-time.Hour)
	repo.devices["mpsoc-01"] = Device{
		ID:          "mpsoc-01",
		IPAddress:   "10.0.4.21",
		FirstSeenAt: seen,
		LastSeenAt:  seen,
	}

	r := NewRegistry(repo, 30*time.Second)
	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	d, err := r.Get("mpsoc-01")
	if err != nil {
		t.Fatalf("Get() after Load() error = %v", err)
	}
	if d.IPAddress != "10.0.4.21" {
		t.Errorf("IPAddress = %q, want %q", d.IPAddress, "10.0.4.21")
	}

	// An hour of silence means the restored device is offline.
	if r.IsOnline("mpsoc-01") {
		t.Error("IsOnline() = true for device silent an hour, want false")
	}
}

func TestFlushDirtyPersistsChanges(t *testing.T) {
	repo := newMockRepository()
	r := NewRegistry(repo, 30*time.Second)

	r.RecordActivity("mpsoc-01", time.Now())
	r.flushDirty(context.Background())

	repo.mu.Lock()
	_, persisted := repo.devices["mpsoc-01"]
	repo.mu.Unlock()
	if !persisted {
		t.Error("flushDirty() did not persist new device")
	}

	// Nothing dirty now; a second flush must not write again.
	before := repo.upserts
	r.flushDirty(context.Background())
	if repo.upserts != before {
		t.Errorf("flushDirty() with clean state wrote %d times", repo.upserts-before)
	}
}

func TestFlushDirtyRetriesOnFailure(t *testing.T) {
	repo := newMockRepository()
	repo.failAll = true
	r := NewRegistry(repo, 30*time.Second)

	r.RecordActivity("mpsoc-01", time.Now())
	r.flushDirty(context.Background())

	// The failed device is re-marked dirty and written on the next cycle.
	repo.mu.Lock()
	repo.failAll = false
	repo.mu.Unlock()

	r.flushDirty(context.Background())

	repo.mu.Lock()
	_, persisted := repo.devices["mpsoc-01"]
	repo.mu.Unlock()
	if !persisted {
		t.Error("flushDirty() did not retry failed write")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil, 30*time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordActivity("mpsoc-01", time.Now())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.List()
				r.IsOnline("mpsoc-01")
			}
		}()
	}
	wg.Wait()

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}
