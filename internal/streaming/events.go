package streaming

import (
	"time"

	"github.com/google/uuid"

	"cloneguard-lab/internal/domain/models"
)

// EventType represents the type of scan event
type EventType string

const (
	EventTypeScanCompleted EventType = "scan_completed"
)

// ScanEvent announces a finished scan
type ScanEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ScanID    string          `json:"scan_id"`
	Package   string          `json:"package,omitempty"`
	Pipeline  models.Pipeline `json:"pipeline"`
	RiskScore int             `json:"risk_score"`
	Verdict   models.Verdict  `json:"verdict"`
	Cached    bool            `json:"cached"`

	InsufficientEvidence bool              `json:"insufficient_evidence"`
	UnavailableSignals   []models.SignalID `json:"unavailable_signals,omitempty"`
}

// NewScanEvent creates a completion event for result
func NewScanEvent(result *models.ScanResult) *ScanEvent {
	return &ScanEvent{
		ID:                   uuid.New().String(),
		Type:                 EventTypeScanCompleted,
		Timestamp:            time.Now().UTC(),
		ScanID:               result.ScanID.String(),
		Package:              result.Package,
		Pipeline:             result.Score.Pipeline,
		RiskScore:            result.Score.RiskScore,
		Verdict:              result.Score.Verdict,
		Cached:               result.Cached,
		InsufficientEvidence: result.Score.InsufficientEvidence,
		UnavailableSignals:   result.Score.UnavailableSignals(),
	}
}

// Subject returns the subject the event is published on, e.g. scan.completed.likely_counterfeit
func (e *ScanEvent) Subject(prefix string) string {
	verdict := string(e.Verdict)
	if verdict == "" {
		verdict = "unknown"
	}
	return prefix + "." + verdict
}
