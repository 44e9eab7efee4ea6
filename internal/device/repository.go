package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// Upsert inserts a device or updates it if the ID already exists.
	Upsert(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT id, ip_address, geo_location, model_parameters,
			first_seen_at, last_seen_at
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, ip_address, geo_location, model_parameters,
			first_seen_at, last_seen_at
		FROM devices
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Upsert inserts a device or updates it if the ID already exists.
func (r *SQLiteRepository) Upsert(ctx context.Context, device *Device) error {
	if device.ID == "" {
		return ErrInvalidDeviceID
	}

	params, err := json.Marshal(device.ModelParameters)
	if err != nil {
		return fmt.Errorf("marshalling model parameters: %w", err)
	}
	if device.ModelParameters == nil {
		params = []byte("{}")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO devices (
			id, ip_address, geo_location, model_parameters,
			first_seen_at, last_seen_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ip_address = excluded.ip_address,
			geo_location = excluded.geo_location,
			model_parameters = excluded.model_parameters,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.IPAddress,
		device.GeoLocation,
		string(params),
		device.FirstSeenAt.UTC().Format(time.RFC3339),
		device.LastSeenAt.UTC().Format(time.RFC3339),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row.
func scanDevice(row scanner) (*Device, error) {
	var (
		d           Device
		paramsJSON  string
		firstSeenAt string
		lastSeenAt  string
	)

	if err := row.Scan(
		&d.ID,
		&d.IPAddress,
		&d.GeoLocation,
		&paramsJSON,
		&firstSeenAt,
		&lastSeenAt,
	); err != nil {
		return nil, err
	}

	if paramsJSON != "" && paramsJSON != "{}" {
		if err := json.Unmarshal([]byte(paramsJSON), &d.ModelParameters); err != nil {
			return nil, fmt.Errorf("unmarshalling model parameters: %w", err)
		}
	}

	var err error
	if d.FirstSeenAt, err = time.Parse(time.RFC3339, firstSeenAt); err != nil {
		return nil, fmt.Errorf("parsing first_seen_at: %w", err)
	}
	if d.LastSeenAt, err = time.Parse(time.RFC3339, lastSeenAt); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}

	return &d, nil
}
