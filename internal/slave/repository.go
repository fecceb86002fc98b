package slave

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-motion/internal/driver"
	"github.com/nerrad567/gray-logic-motion/internal/message"
	"github.com/nerrad567/gray-logic-motion/internal/netdata"
)

// Repository persists the slave registry of a master.
type Repository interface {
	// Save inserts s or updates the slave at the same address.
	Save(ctx context.Context, s Slave) error
	Get(ctx context.Context, addr message.Address) (Slave, error)
	FindBySerialnumber(ctx context.Context, sn string) (Slave, error)
	List(ctx context.Context) ([]Slave, error)
	Delete(ctx context.Context, addr message.Address) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed slave repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save upserts s keyed by host and port.
func (r *SQLiteRepository) Save(ctx context.Context, s Slave) error {
	config := "{}"
	if len(s.Config) > 0 {
		b, err := json.Marshal(s.Config)
		if err != nil {
			return fmt.Errorf("encoding config of %s: %w", s.Address, err)
		}
		config = string(b)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	const query = `INSERT INTO slaves (id, serialnumber, host, port, driver, control_mode, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (host, port) DO UPDATE SET
			serialnumber = excluded.serialnumber,
			driver = excluded.driver,
			control_mode = excluded.control_mode,
			config = excluded.config,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		uuid.NewString(), s.Serialnumber, s.Address.Host, s.Address.Port,
		string(s.Driver), s.ControlMode.String(), config, now, now)
	if err != nil {
		return fmt.Errorf("saving slave %s: %w", s.Address, err)
	}
	return nil
}

// Get returns the slave at addr.
func (r *SQLiteRepository) Get(ctx context.Context, addr message.Address) (Slave, error) {
	const query = `SELECT serialnumber, host, port, driver, control_mode, config
		FROM slaves WHERE host = ? AND port = ?`
	return scanSlave(r.db.QueryRowContext(ctx, query, addr.Host, addr.Port))
}

// FindBySerialnumber returns the slave registered with sn.
func (r *SQLiteRepository) FindBySerialnumber(ctx context.Context, sn string) (Slave, error) {
	const query = `SELECT serialnumber, host, port, driver, control_mode, config
		FROM slaves WHERE serialnumber = ? AND serialnumber != '' LIMIT 1`
	return scanSlave(r.db.QueryRowContext(ctx, query, sn))
}

// List returns every slave ordered by registration time.
func (r *SQLiteRepository) List(ctx context.Context) ([]Slave, error) {
	const query = `SELECT serialnumber, host, port, driver, control_mode, config
		FROM slaves ORDER BY created_at, host, port`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying slaves: %w", err)
	}
	defer rows.Close()

	var slaves []Slave
	for rows.Next() {
		s, err := scanSlave(rows)
		if err != nil {
			return nil, err
		}
		slaves = append(slaves, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slaves: %w", err)
	}
	return slaves, nil
}

// Delete removes the slave at addr.
func (r *SQLiteRepository) Delete(ctx context.Context, addr message.Address) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM slaves WHERE host = ? AND port = ?`, addr.Host, addr.Port)
	if err != nil {
		return fmt.Errorf("deleting slave %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of slave %s: %w", addr, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlave(row scanner) (Slave, error) {
	var (
		s          Slave
		drv, mode  string
		configJSON string
	)
	err := row.Scan(&s.Serialnumber, &s.Address.Host, &s.Address.Port, &drv, &mode, &configJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Slave{}, ErrNotFound
	}
	if err != nil {
		return Slave{}, fmt.Errorf("scanning slave: %w", err)
	}

	if s.Driver, err = driver.ParseType(drv); err != nil {
		return Slave{}, fmt.Errorf("slave %s: %w", s.Address, err)
	}
	if s.ControlMode, err = netdata.ParseControlMode(mode); err != nil {
		return Slave{}, fmt.Errorf("slave %s: %w", s.Address, err)
	}
	if configJSON != "" && configJSON != "{}" {
		if err := json.Unmarshal([]byte(configJSON), &s.Config); err != nil {
			return Slave{}, fmt.Errorf("decoding config of slave %s: %w", s.Address, err)
		}
	}
	return s, nil
}
