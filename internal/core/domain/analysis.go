package domain

import (
	"strings"
	"time"
)

type ParameterStatus string

const (
	StatusNormal   ParameterStatus = "Normal"
	StatusLow      ParameterStatus = "Low"
	StatusHigh     ParameterStatus = "High"
	StatusAbnormal ParameterStatus = "Abnormal"
	StatusUnknown  ParameterStatus = "Unknown"
)

func (s ParameterStatus) IsAbnormal() bool {
	return s == StatusLow || s == StatusHigh || s == StatusAbnormal
}

type Severity string

const (
	SeverityNormal Severity = "Normal"
	SeverityMild   Severity = "Mild"
	SeveritySevere Severity = "Severe"
)

type ClassifiedParameter struct {
	Name               string          `json:"name"`
	Value              string          `json:"value"`
	NumericValue       *float64        `json:"numericValue,omitempty"`
	Unit               string          `json:"unit"`
	Status             ParameterStatus `json:"status"`
	Severity           Severity        `json:"severity,omitempty"`
	DeviationPercent   float64         `json:"deviationPercent,omitempty"`
	ReferenceRangeText string          `json:"referenceRange,omitempty"`
	// Warning is set only when the value is clinically significant.
	Warning string `json:"-"`
}

// Display renders "<value> <unit> (<status>)", dropping the unit when it is empty.
func (p ClassifiedParameter) Display() string {
	parts := []string{p.Value}
	if strings.TrimSpace(p.Unit) != "" {
		parts = append(parts, p.Unit)
	}
	return strings.Join(parts, " ") + " (" + string(p.Status) + ")"
}

type ReportAnalysis struct {
	Parameters         map[string]ClassifiedParameter `json:"parameters"`
	Order              []string                       `json:"-"`
	Warnings           []string                       `json:"healthWarnings"`
	NormalParameters   []string                       `json:"normalParameters"`
	AbnormalParameters []string                       `json:"abnormalParameters"`
	OverallStatus      string                         `json:"overallStatus"`
}

type AnalysisOutcome string

const (
	OutcomeCompleted AnalysisOutcome = "completed"
	OutcomePartial   AnalysisOutcome = "partial"
	OutcomeFailed    AnalysisOutcome = "failed"
)

type AnalysisResult struct {
	DocumentID string          `json:"documentId"`
	ReportType ReportType      `json:"reportType"`
	FileType   string          `json:"fileType"`
	Provenance Provenance      `json:"provenance"`
	RawText    string          `json:"rawText"`
	CharCount  int             `json:"charCount"`
	Analysis   ReportAnalysis  `json:"analysis"`
	Warning    string          `json:"warning,omitempty"`
	Outcome    AnalysisOutcome `json:"outcome"`
	OCRTime    time.Duration   `json:"-"`
}

// AnalysisAudit is the operational record of one analysis. It never carries clinical values.
type AnalysisAudit struct {
	DocumentID     string
	RequestID      string
	Filename       string
	MediaType      string
	ReportType     ReportType
	FileType       string
	Provenance     Provenance
	CharCount      int
	Outcome        AnalysisOutcome
	ParameterCount int
	AbnormalCount  int
	ErrorMessage   string
	Duration       time.Duration
	CreatedAt      time.Time
}

type ReportAnalyzedEvent struct {
	DocumentID string         `json:"documentId"`
	ReportType ReportType     `json:"reportType"`
	FileType   string         `json:"fileType"`
	Provenance Provenance     `json:"provenance"`
	Analysis   ReportAnalysis `json:"analysis"`
	AnalyzedAt time.Time      `json:"analyzedAt"`
}
