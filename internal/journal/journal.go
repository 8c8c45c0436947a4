// Package journal keeps a local SQLite record of relay lifecycle events so
// `relayctl history` can show what happened across panel sessions.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Event kinds
const (
	KindStart         = "start"
	KindStartFailed   = "start_failed"
	KindStop          = "stop"
	KindStopFailed    = "stop_failed"
	KindApply         = "apply"
	KindApplyFailed   = "apply_failed"
	KindSave          = "save"
	KindSaveFailed    = "save_failed"
	KindStatusChanged = "status_changed"
)

// Event is one journal entry.
type Event struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	RunID       uuid.UUID `gorm:"type:text;index" json:"run_id"`
	Kind        string    `gorm:"not null;index" json:"kind"`
	PID         int       `json:"pid,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	DetailsJSON string    `gorm:"type:text" json:"details_json,omitempty"`
	Timestamp   time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Event) TableName() string { return "relay_events" }

// Journal manages the event database via GORM.
type Journal struct {
	db   *gorm.DB
	path string
}

// Open creates or opens the journal inside dataDir.
func Open(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "relayctl.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Panel and one-shot commands may write concurrently.
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrating journal schema: %w", err)
	}

	return &Journal{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends an event. details is stored as JSON; a value that cannot
// be marshalled is stored as "{}".
func (j *Journal) Record(ev Event, details interface{}) error {
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			data = []byte("{}")
		}
		ev.DetailsJSON = string(data)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := j.db.Create(&ev).Error; err != nil {
		return fmt.Errorf("recording %s event: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (j *Journal) Recent(limit int) ([]Event, error) {
	q := j.db.Order("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []Event
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// ForRun returns the events of one relay run in the order they happened.
func (j *Journal) ForRun(runID uuid.UUID) ([]Event, error) {
	var events []Event
	if err := j.db.Where("run_id = ?", runID).Order("timestamp ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("listing events for run %s: %w", runID, err)
	}
	return events, nil
}

// Prune deletes events older than before and returns how many were removed.
func (j *Journal) Prune(before time.Time) (int64, error) {
	res := j.db.Where("timestamp < ?", before).Delete(&Event{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning events: %w", res.Error)
	}
	return res.RowsAffected, nil
}
