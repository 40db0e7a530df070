package model

import "time"

// PatternUsage tracks how one literal pattern performed for a (field, strategy).
type PatternUsage struct {
	Uses          int       `json:"uses"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastUsed      time.Time `json:"last_used"`
}

// PatternPerformance aggregates attempts for one (field, strategy) pair.
type PatternPerformance struct {
	Field         string                   `json:"field"`
	Strategy      string                   `json:"strategy"`
	Attempts      int                      `json:"attempts"`
	Successes     int                      `json:"successes"`
	Failures      int                      `json:"failures"`
	AvgConfidence float64                  `json:"avg_confidence"`
	Patterns      map[string]*PatternUsage `json:"patterns,omitempty"`
}

// PerformanceKey is the map key for a (field, strategy) pair.
func PerformanceKey(field, strategy string) string {
	return field + "|" + strategy
}

// StrategyStat counts successful uses of a strategy for a field on one domain.
type StrategyStat struct {
	Field         string  `json:"field"`
	Strategy      string  `json:"strategy"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// FieldLocation is a page location where a field was found with high confidence.
type FieldLocation struct {
	Location string    `json:"location"`
	Section  Section   `json:"section,omitempty"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// ExtractionStats summarizes all extractions on a domain.
type ExtractionStats struct {
	Total          int       `json:"total"`
	Successful     int       `json:"successful"`
	AvgConfidence  float64   `json:"avg_confidence"`
	LastExtraction time.Time `json:"last_extraction"`
}

// SuccessRate returns successful / total, 0 when nothing was recorded.
func (s ExtractionStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total)
}

// SiteProfile is the per-domain memory of what worked.
type SiteProfile struct {
	Domain               string                      `json:"domain"`
	SuccessfulStrategies map[string]*StrategyStat    `json:"successful_strategies"`
	FieldLocations       map[string][]FieldLocation `json:"field_locations"`
	ExtractionStats      ExtractionStats             `json:"extraction_stats"`
	CreatedAt            time.Time                   `json:"created_at"`
}

// NewSiteProfile returns an empty profile for domain.
func NewSiteProfile(domain string, now time.Time) *SiteProfile {
	return &SiteProfile{
		Domain:               domain,
		SuccessfulStrategies: make(map[string]*StrategyStat),
		FieldLocations:       make(map[string][]FieldLocation),
		CreatedAt:            now,
	}
}

// Correction types produced by correction analysis.
const (
	CorrectionMissed          = "missed"
	CorrectionFalsePositive   = "false-positive"
	CorrectionCaseDifference  = "case-difference"
	CorrectionPartialMatch    = "partial-match"
	CorrectionDifferentValue  = "different-value"
	CorrectionArrayDifference = "array-difference"
	CorrectionUnknown         = "unknown"
)

// CorrectionAnalysis classifies the delta between an extracted and a corrected value.
type CorrectionAnalysis struct {
	Type       string   `json:"type"`
	Similarity float64  `json:"similarity,omitempty"`
	Added      []string `json:"added,omitempty"`
	Removed    []string `json:"removed,omitempty"`
}

// CorrectionRecord stores a human override of an extracted value.
type CorrectionRecord struct {
	HistoryKey       string             `json:"history_key,omitempty"`
	Field            string             `json:"field"`
	Original         any                `json:"original"`
	Corrected        any                `json:"corrected"`
	Analysis         CorrectionAnalysis `json:"analysis"`
	Context          ExtractionContext  `json:"context"`
	Domain           string             `json:"domain"`
	SuggestedPattern string             `json:"suggested_pattern,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// HistoryEntry is one logged extraction attempt.
type HistoryEntry struct {
	Key        string            `json:"key"`
	Timestamp  time.Time         `json:"timestamp"`
	URL        string            `json:"url"`
	Domain     string            `json:"domain"`
	Field      string            `json:"field"`
	Strategy   string            `json:"strategy"`
	Value      any               `json:"value"`
	Confidence float64           `json:"confidence"`
	Context    ExtractionContext `json:"context"`
	Verified   bool              `json:"verified"`
	Feedback   *Feedback         `json:"feedback,omitempty"`
}

// Feedback is a reviewer verdict on a history entry.
type Feedback struct {
	IsCorrect      bool      `json:"is_correct"`
	CorrectedValue any       `json:"corrected_value,omitempty"`
	At             time.Time `json:"at"`
}

// LearnedPattern is the persisted form of one pattern-engine entry.
type LearnedPattern struct {
	Field         string    `json:"field"`
	Source        string    `json:"source"`
	Successes     int       `json:"successes"`
	Failures      int       `json:"failures"`
	Uses          int       `json:"uses"`
	AvgConfidence float64   `json:"avg_confidence"`
	LastUsed      time.Time `json:"last_used"`
}

// LearningSnapshot is the durable learning state, saved and loaded as a blob.
type LearningSnapshot struct {
	PatternPerformance map[string]*PatternPerformance `json:"pattern_performance"`
	SiteProfiles       map[string]*SiteProfile        `json:"site_profiles"`
	FieldStrategies    map[string][]string            `json:"field_strategies"`
	History            []HistoryEntry                 `json:"history"`
	Corrections        map[string][]CorrectionRecord  `json:"corrections"`
	Patterns           []LearnedPattern               `json:"patterns,omitempty"`
	Revision           int64                          `json:"revision"`
	Timestamp          time.Time                      `json:"timestamp"`
}

// NewLearningSnapshot returns a snapshot with all maps allocated.
func NewLearningSnapshot() *LearningSnapshot {
	return &LearningSnapshot{
		PatternPerformance: make(map[string]*PatternPerformance),
		SiteProfiles:       make(map[string]*SiteProfile),
		FieldStrategies:    make(map[string][]string),
		Corrections:        make(map[string][]CorrectionRecord),
	}
}

// Normalize allocates any nil maps, e.g. after decoding an older blob.
func (s *LearningSnapshot) Normalize() {
	if s.PatternPerformance == nil {
		s.PatternPerformance = make(map[string]*PatternPerformance)
	}
	if s.SiteProfiles == nil {
		s.SiteProfiles = make(map[string]*SiteProfile)
	}
	if s.FieldStrategies == nil {
		s.FieldStrategies = make(map[string][]string)
	}
	if s.Corrections == nil {
		s.Corrections = make(map[string][]CorrectionRecord)
	}
	for _, p := range s.SiteProfiles {
		if p.SuccessfulStrategies == nil {
			p.SuccessfulStrategies = make(map[string]*StrategyStat)
		}
		if p.FieldLocations == nil {
			p.FieldLocations = make(map[string][]FieldLocation)
		}
	}
}

// SaveStatus reports the outcome of persisting a snapshot.
type SaveStatus struct {
	Revision int64 `json:"revision"`
	// Overwrote is set when another writer saved after this snapshot was
	// loaded; its changes were replaced (last writer wins).
	Overwrote bool `json:"overwrote"`
}
