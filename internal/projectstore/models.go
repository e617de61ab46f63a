package projectstore

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a queue project.
type Status string

const (
	StatusOperational Status = "operational"
	StatusWithdrawn   Status = "withdrawn"
	StatusActive      Status = "active"
	StatusOther       Status = "other"
)

// Resolved reports whether the project reached a terminal state.
func (s Status) Resolved() bool {
	return s == StatusOperational || s == StatusWithdrawn
}

// ParseStatus normalizes a raw queue status string. Upstream filings use a
// wider vocabulary (Under Construction, Suspended, ...) that all maps to
// the active/other buckets here.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "operational", "in service":
		return StatusOperational
	case "withdrawn", "cancelled":
		return StatusWithdrawn
	case "active", "queued", "under construction", "suspended":
		return StatusActive
	default:
		return StatusOther
	}
}

// ProjectRecord is one immutable interconnection-queue entry. Records are
// sourced externally and read-only here; DeveloperName arrives
// pre-normalized and is the sole grouping key.
type ProjectRecord struct {
	QueueID       string     `json:"queue_id"`
	DeveloperName string     `json:"developer_name"`
	ProjectName   string     `json:"name,omitempty"`
	Status        Status     `json:"status"`
	CapacityMW    float64    `json:"capacity_mw"`
	FuelType      string     `json:"fuel_type"`
	Region        string     `json:"region"`
	State         string     `json:"state,omitempty"`
	QueueDate     time.Time  `json:"queue_date"`
	COD           *time.Time `json:"cod,omitempty"`
	WithdrawnDate *time.Time `json:"withdrawn_date,omitempty"`
}

// Validate checks the record invariants. Any violation is fatal to the
// scoring cycle that reads the record.
func (p ProjectRecord) Validate() error {
	if p.QueueID == "" {
		return fmt.Errorf("project missing queue_id")
	}
	if p.DeveloperName == "" {
		return fmt.Errorf("project %s missing developer_name", p.QueueID)
	}
	if p.Region == "" {
		return fmt.Errorf("project %s missing region", p.QueueID)
	}
	if p.CapacityMW < 0 {
		return fmt.Errorf("project %s has negative capacity_mw %v", p.QueueID, p.CapacityMW)
	}
	if p.QueueDate.IsZero() {
		return fmt.Errorf("project %s missing queue_date", p.QueueID)
	}
	if (p.Status == StatusOperational) != (p.COD != nil) {
		return fmt.Errorf("project %s: cod must be present iff status is operational", p.QueueID)
	}
	if (p.Status == StatusWithdrawn) != (p.WithdrawnDate != nil) {
		return fmt.Errorf("project %s: withdrawn_date must be present iff status is withdrawn", p.QueueID)
	}
	return nil
}
