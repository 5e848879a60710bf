package ports

import (
	"context"
	"io"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

type AnalyzeRequest struct {
	RequestID  string
	Filename   string
	MediaType  string
	Size       int64
	ReportType string
	Body       io.Reader
}

// ReportAnalyzer is the inbound contract for turning an uploaded lab report into a structured analysis.
type ReportAnalyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*domain.AnalysisResult, error)
}
