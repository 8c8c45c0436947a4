package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onemin-relay/relayctl/internal/settings"
)

// State is the on-disk record of the relay a relayctl instance is holding.
// Other relayctl invocations use it to find, check and stop that relay.
type State struct {
	PID        int       `json:"pid"`
	RunID      string    `json:"run_id"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	OwnerPID   int       `json:"owner_pid"`
	StartTicks int64     `json:"start_ticks,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Endpoint returns the relay's base URL.
func (s *State) Endpoint() string {
	return settings.Endpoint(s.Host, s.Port)
}

// IsRunning reports whether the recorded relay process still exists. When
// the start time was recorded it must match, so a recycled PID is not
// mistaken for the relay. A nil state is not running.
func (s *State) IsRunning() bool {
	if s == nil || !IsProcessAlive(s.PID) {
		return false
	}
	if s.StartTicks == 0 {
		return true
	}
	current := processStartTicks(s.PID)
	return current == 0 || current == s.StartTicks
}

// StatePath returns the path to the state file inside dataDir.
func StatePath(dataDir string) string {
	return filepath.Join(dataDir, "server.state")
}

// ReadState reads the relay state from dataDir.
// Returns nil, nil if the state file does not exist.
func ReadState(dataDir string) (*State, error) {
	data, err := os.ReadFile(StatePath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read relay state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse relay state: %w", err)
	}

	return &state, nil
}

// WriteState writes the relay state into dataDir.
func WriteState(dataDir string, state *State) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal relay state: %w", err)
	}

	if err := os.WriteFile(StatePath(dataDir), data, 0600); err != nil {
		return fmt.Errorf("failed to write relay state: %w", err)
	}

	return nil
}

// RemoveState removes the state file. A missing file is not an error.
func RemoveState(dataDir string) error {
	if err := os.Remove(StatePath(dataDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove relay state: %w", err)
	}
	return nil
}
