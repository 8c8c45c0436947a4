package panel

import "github.com/onemin-relay/relayctl/internal/relay"

// Status is the relay state shown to the user. It is derived on every poll
// and explicit check and never persisted.
type Status string

const (
	StatusStopped       Status = "Stopped"
	StatusRunning       Status = "Running"
	StatusError         Status = "Error"
	StatusNotResponding Status = "Not Responding"
)

// StatusFor maps liveness and a health check onto a Status.
func StatusFor(running bool, health relay.HealthStatus) Status {
	if !running {
		return StatusStopped
	}
	switch health {
	case relay.Healthy:
		return StatusRunning
	case relay.Unhealthy:
		return StatusError
	default:
		return StatusNotResponding
	}
}
