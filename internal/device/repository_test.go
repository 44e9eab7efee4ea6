package device

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wattagent/wattmcp-core/internal/infrastructure/database"
	_ "github.com/wattagent/wattmcp-core/migrations" // register embedded schema
)

// setupTestRepo opens a temporary SQLite database with the full schema applied.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5000,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func testDevice(id string) *Device {
	now := time.Now().UTC().Truncate(time.Second)
	return &Device{
		ID:          id,
		IPAddress:   "10.0.4.21",
		GeoLocation: "lab-2/rack-4",
		ModelParameters: map[string]float64{
			"L_uH": 22.0,
			"C_uF": 470.0,
		},
		FirstSeenAt: now.Add(-time.Hour),
		LastSeenAt:  now,
	}
}

func TestUpsertAndGetByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	want := testDevice("mpsoc-01")
	if err := repo.Upsert(ctx, want); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "mpsoc-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if got.IPAddress != want.IPAddress {
		t.Errorf("IPAddress = %q, want %q", got.IPAddress, want.IPAddress)
	}
	if got.GeoLocation != want.GeoLocation {
		t.Errorf("GeoLocation = %q, want %q", got.GeoLocation, want.GeoLocation)
	}
	if got.ModelParameters["L_uH"] != 22.0 {
		t.Errorf("ModelParameters[L_uH] = %v, want 22.0", got.ModelParameters["L_uH"])
	}
	if !got.LastSeenAt.Equal(want.LastSeenAt) {
		t.Errorf("LastSeenAt = %v, want %v", got.LastSeenAt, want.LastSeenAt)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice("mpsoc-01")
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	d.IPAddress = "10.0.4.99"
	d.LastSeenAt = d.LastSeenAt.Add(time.Minute)
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	got, err := repo.GetByID(ctx, "mpsoc-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.IPAddress != "10.0.4.99" {
		t.Errorf("IPAddress = %q, want %q", got.IPAddress, "10.0.4.99")
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("List() returned %d devices after update, want 1", len(devices))
	}
}

func TestUpsertEmptyID(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Upsert(context.Background(), &Device{})
	if !errors.Is(err, ErrInvalidDeviceID) {
		t.Errorf("Upsert() error = %v, want ErrInvalidDeviceID", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestListOrderedByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"mpsoc-03", "mpsoc-01", "mpsoc-02"} {
		if err := repo.Upsert(ctx, testDevice(id)); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("List() returned %d devices, want 3", len(devices))
	}
	for i, want := range []string{"mpsoc-01", "mpsoc-02", "mpsoc-03"} {
		if devices[i].ID != want {
			t.Errorf("List()[%d].ID = %q, want %q", i, devices[i].ID, want)
		}
	}
}

func TestDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, testDevice("mpsoc-01")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Delete(ctx, "mpsoc-01"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := repo.GetByID(ctx, "mpsoc-01")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() after Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	repo := setupTestRepo(t)

	err := repo.Delete(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Delete() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestEmptyModelParametersRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice("mpsoc-01")
	d.ModelParameters = nil
	if err := repo.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "mpsoc-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(got.ModelParameters) != 0 {
		t.Errorf("ModelParameters = %v, want empty", got.ModelParameters)
	}
}
