package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

// ScratchStorage hands out request-scoped workspaces for temporary artifacts.
type ScratchStorage interface {
	NewWorkspace(ctx context.Context, id string) (Workspace, error)
}

// Workspace holds the temporary files of one request. Release removes all of them.
type Workspace interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Release() error
}

// PDFReader validates PDFs, reads their text layer and rasterizes pages.
type PDFReader interface {
	Validate(ctx context.Context, data []byte) (pageCount int, err error)
	ExtractTextLayer(ctx context.Context, data []byte) (string, error)
	RenderFirstPage(ctx context.Context, data []byte) ([]byte, error)
}

// ImagePreprocessor normalizes a bitmap to improve OCR yield.
type ImagePreprocessor interface {
	Preprocess(ctx context.Context, image []byte) ([]byte, error)
}

// OCREngine recognizes text in an encoded bitmap.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// AnalysisAuditLog records operational metadata about each analysis.
type AnalysisAuditLog interface {
	Record(ctx context.Context, audit domain.AnalysisAudit) error
}

// AnalysisPublisher hands completed analyses to downstream consumers.
type AnalysisPublisher interface {
	PublishReportAnalyzed(ctx context.Context, event domain.ReportAnalyzedEvent) error
}

// AnalysisMetrics observes the analysis pipeline.
type AnalysisMetrics interface {
	StartAnalysis()
	FinishAnalysis(fileType string, provenance domain.Provenance, outcome domain.AnalysisOutcome, parameters int, duration time.Duration)
	ObserveOCR(duration time.Duration, err error)
	ObserveQualityGate(provenance domain.Provenance)
}
