package models

import (
	"time"

	"github.com/google/uuid"
)

// SignalID identifies one independently computed legitimacy signal
type SignalID string

const (
	SignalPackageLabelSimilarity SignalID = "package_label_similarity"
	SignalReviewHistogramShape   SignalID = "review_histogram_shape"
	SignalInstallsVsRatings      SignalID = "installs_vs_ratings"
	SignalDeveloperPresence      SignalID = "developer_presence"
	SignalPermissionRisk         SignalID = "permission_risk"
	SignalIconPerceptualHash     SignalID = "icon_perceptual_hash"
	SignalCertificateFingerprint SignalID = "certificate_fingerprint"
	SignalURLExtraction          SignalID = "url_extraction"
)

// AllSignals lists every signal in evaluation order
var AllSignals = []SignalID{
	SignalPackageLabelSimilarity,
	SignalReviewHistogramShape,
	SignalInstallsVsRatings,
	SignalDeveloperPresence,
	SignalPermissionRisk,
	SignalIconPerceptualHash,
	SignalCertificateFingerprint,
	SignalURLExtraction,
}

// StoreSignals are the signals computable from store metadata alone
var StoreSignals = []SignalID{
	SignalPackageLabelSimilarity,
	SignalReviewHistogramShape,
	SignalInstallsVsRatings,
	SignalDeveloperPresence,
}

// SignalResult is the outcome of one evaluator.
// Score is nil exactly when Available is false; 1.0 means no risk indicated, 0.0 maximal risk.
type SignalResult struct {
	SignalID  SignalID       `json:"signal_id"`
	Available bool           `json:"available"`
	Score     *float64       `json:"score"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Pipeline names the orchestration variant that produced a report
type Pipeline string

const (
	PipelineStoreOnly   Pipeline = "store_only"
	PipelinePackageDeep Pipeline = "package_deep"
)

// Verdict is a coarse reading of a risk score
type Verdict string

const (
	VerdictLikelyCounterfeit Verdict = "likely_counterfeit"
	VerdictSuspicious        Verdict = "suspicious"
	VerdictLikelyLegitimate  Verdict = "likely_legitimate"
)

// VerdictFor bands a 0-100 risk score, lower is riskier
func VerdictFor(score int) Verdict {
	switch {
	case score < 40:
		return VerdictLikelyCounterfeit
	case score < 70:
		return VerdictSuspicious
	default:
		return VerdictLikelyLegitimate
	}
}

// RiskScore is the auditable result of one scan. It is built once and never mutated.
type RiskScore struct {
	Pipeline             Pipeline                  `json:"pipeline"`
	RiskScore            int                       `json:"risk_score"`
	Verdict              Verdict                   `json:"verdict"`
	EvidenceCoverage     float64                   `json:"evidence_coverage"`
	InsufficientEvidence bool                      `json:"insufficient_evidence"`
	Signals              map[SignalID]SignalResult `json:"signals"`
	GeneratedAt          time.Time                 `json:"generated_at"`
}

// ScanResult is what the scan service hands to the presentation layer
type ScanResult struct {
	ScanID  uuid.UUID `json:"scan_id"`
	Package string    `json:"package"`
	Cached  bool      `json:"cached"`
	Score   RiskScore `json:"score"`
	// APK carries the inspected package evidence for package scans
	APK *PackageEvidence `json:"apk_metadata,omitempty"`
}

// UnavailableSignals returns the ids of signals that could not be computed
func (r *RiskScore) UnavailableSignals() []SignalID {
	ids := make([]SignalID, 0)
	for _, id := range AllSignals {
		if res, ok := r.Signals[id]; ok && !res.Available {
			ids = append(ids, id)
		}
	}
	return ids
}
