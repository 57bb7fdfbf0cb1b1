package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/neilk/octowatch/internal/tariff"
)

// Change describes one per-entity state write, emitted for subscribers such
// as the MQTT publisher.
type Change struct {
	EntityID string
	States   map[string]string
}

// Store persists per-entity derived state and serialized day rate tables
// using SQLite. Scalars plus a cached rate table are enough to resume all
// recomputation after a restart without replaying history.
type Store struct {
	db      *sql.DB
	changes chan Change
}

// New opens the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, changes: make(chan Change, 64)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entity_state (
		entity_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (entity_id, key)
	);

	CREATE TABLE IF NOT EXISTS rate_tables (
		entity_id TEXT NOT NULL,
		day TEXT NOT NULL,
		periods TEXT NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (entity_id, day)
	);

	CREATE INDEX IF NOT EXISTS idx_entity_state_entity ON entity_state(entity_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get retrieves a single state value. A missing key returns the empty
// string, which lets entities resume cleanly from a fresh database.
func (s *Store) Get(entityID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM entity_state WHERE entity_id = ? AND key = ?`,
		entityID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// GetAll retrieves every state key for an entity.
func (s *Store) GetAll(entityID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM entity_state WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		states[k] = v
	}
	return states, rows.Err()
}

// SetAll writes every key in states atomically in a single transaction, then
// emits a change notification. A slow subscriber never blocks the tick
// driver; the notification is dropped instead.
func (s *Store) SetAll(entityID string, states map[string]string) error {
	if len(states) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO entity_state (entity_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := stmt.Exec(entityID, k, states[k], now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	select {
	case s.changes <- Change{EntityID: entityID, States: states}:
	default:
	}
	return nil
}

// SaveDayTable caches a serialized rate table so restarts do not need an
// immediate upstream fetch.
func (s *Store) SaveDayTable(entityID string, t tariff.DayRateTable) error {
	periods, err := json.Marshal(t.Periods)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO rate_tables (entity_id, day, periods, fetched_at)
		VALUES (?, ?, ?, ?)`, entityID, t.Date, string(periods), time.Now())
	return err
}

// DayTable loads a cached rate table. A missing day returns an empty table
// with no error; callers treat that as cache-miss and refresh from source.
func (s *Store) DayTable(entityID, day string) (tariff.DayRateTable, error) {
	var periods string
	err := s.db.QueryRow(`SELECT periods FROM rate_tables WHERE entity_id = ? AND day = ?`,
		entityID, day).Scan(&periods)
	if err == sql.ErrNoRows {
		return tariff.DayRateTable{}, nil
	}
	if err != nil {
		return tariff.DayRateTable{}, err
	}

	t := tariff.DayRateTable{Date: day}
	if err := json.Unmarshal([]byte(periods), &t.Periods); err != nil {
		return tariff.DayRateTable{}, err
	}
	return t, nil
}

// PruneDayTables removes cached tables for days before the given one,
// keeping the database from growing without bound.
func (s *Store) PruneDayTables(before string) error {
	_, err := s.db.Exec(`DELETE FROM rate_tables WHERE day < ?`, before)
	return err
}

// Changes returns the change notification stream.
func (s *Store) Changes() <-chan Change {
	return s.changes
}
