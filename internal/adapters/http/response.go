package httpadapter

import (
	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type analyzeResponse struct {
	Success            bool                         `json:"success"`
	DocumentID         string                       `json:"documentId"`
	ReportType         domain.ReportType            `json:"reportType"`
	FileType           string                       `json:"fileType"`
	Provenance         domain.Provenance            `json:"provenance"`
	RawText            string                       `json:"rawText"`
	ExtractedData      map[string]string            `json:"extractedData"`
	Parameters         []domain.ClassifiedParameter `json:"parameters"`
	HealthWarnings     []string                     `json:"healthWarnings"`
	AbnormalParameters []string                     `json:"abnormalParameters"`
	NormalParameters   []string                     `json:"normalParameters"`
	OverallStatus      string                       `json:"overallStatus"`
	Warning            string                       `json:"warning,omitempty"`
	Message            string                       `json:"message"`
}

func newAnalyzeResponse(result *domain.AnalysisResult) analyzeResponse {
	analysis := result.Analysis

	extracted := make(map[string]string, len(analysis.Parameters))
	params := make([]domain.ClassifiedParameter, 0, len(analysis.Parameters))
	for _, name := range analysis.Order {
		p, ok := analysis.Parameters[name]
		if !ok {
			continue
		}
		extracted[name] = p.Display()
		params = append(params, p)
	}

	message := "Text extracted successfully"
	if result.Outcome == domain.OutcomePartial {
		message = "Text extracted, analysis skipped"
	}

	return analyzeResponse{
		Success:            true,
		DocumentID:         result.DocumentID,
		ReportType:         result.ReportType,
		FileType:           result.FileType,
		Provenance:         result.Provenance,
		RawText:            result.RawText,
		ExtractedData:      extracted,
		Parameters:         params,
		HealthWarnings:     nonNil(analysis.Warnings),
		AbnormalParameters: nonNil(analysis.AbnormalParameters),
		NormalParameters:   nonNil(analysis.NormalParameters),
		OverallStatus:      analysis.OverallStatus,
		Warning:            result.Warning,
		Message:            message,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
