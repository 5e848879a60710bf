package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/core/labreport"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
)

const (
	LowQualityWarning   = "Low-quality PDF OCR result; please re-upload the report as a JPG or PNG image"
	LowQualityOverall   = "Analysis skipped: low-quality scan"
	defaultLowQualityAt = 400
)

type AnalyzeConfig struct {
	MaxUploadBytes     int64
	LowQualityOCRChars int
}

type AnalyzeReportUseCase struct {
	grammars  *labreport.Grammars
	storage   ports.ScratchStorage
	acquirer  *TextAcquirer
	audit     ports.AnalysisAuditLog
	publisher ports.AnalysisPublisher
	metrics   ports.AnalysisMetrics
	cfg       AnalyzeConfig
}

func NewAnalyzeReportUseCase(
	grammars *labreport.Grammars,
	storage ports.ScratchStorage,
	acquirer *TextAcquirer,
	audit ports.AnalysisAuditLog,
	publisher ports.AnalysisPublisher,
	metrics ports.AnalysisMetrics,
	cfg AnalyzeConfig,
) *AnalyzeReportUseCase {
	if cfg.LowQualityOCRChars <= 0 {
		cfg.LowQualityOCRChars = defaultLowQualityAt
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AnalyzeReportUseCase{
		grammars:  grammars,
		storage:   storage,
		acquirer:  acquirer,
		audit:     audit,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (uc *AnalyzeReportUseCase) Analyze(ctx context.Context, req ports.AnalyzeRequest) (*domain.AnalysisResult, error) {
	in, err := admit(req, uc.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	grammar, err := uc.grammars.For(in.reportType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	uc.metrics.StartAnalysis()

	result, err := uc.run(ctx, &in, grammar)
	uc.finish(ctx, req.RequestID, in, result, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *AnalyzeReportUseCase) run(ctx context.Context, in *intake, grammar labreport.ReportGrammar) (*domain.AnalysisResult, error) {
	ws, err := uc.storage.NewWorkspace(ctx, in.doc.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "create workspace", err)
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			slog.Error("workspace_release_failed", "document_id", in.doc.ID, "error", releaseErr.Error())
		}
	}()

	if err := store(ctx, ws, in, uc.cfg.MaxUploadBytes); err != nil {
		return nil, err
	}

	extracted, err := uc.acquirer.Acquire(ctx, in.doc.Kind, ws, in.doc.StorageKey)
	if err != nil {
		return nil, err
	}

	result := &domain.AnalysisResult{
		DocumentID: in.doc.ID,
		ReportType: in.reportType,
		FileType:   in.doc.Kind.FileType(),
		Provenance: extracted.Provenance,
		RawText:    extracted.Text,
		CharCount:  extracted.CharCount,
		OCRTime:    extracted.OCRTime,
	}

	if uc.lowQuality(extracted) {
		uc.metrics.ObserveQualityGate(extracted.Provenance)
		slog.Warn("quality_gate_triggered",
			"document_id", in.doc.ID,
			"provenance", string(extracted.Provenance),
			"char_count", extracted.CharCount,
		)
		result.Analysis = skippedAnalysis()
		result.Warning = LowQualityWarning
		result.Outcome = domain.OutcomePartial
		return result, nil
	}

	result.Analysis = labreport.Analyze(extracted.Text, grammar)
	result.Outcome = domain.OutcomeCompleted
	uc.publish(ctx, result)
	return result, nil
}

// lowQuality reports whether a scanned-PDF OCR result is too short to trust.
// Images are not gated: the user already supplied the best available bitmap.
func (uc *AnalyzeReportUseCase) lowQuality(extracted domain.ExtractedText) bool {
	return extracted.Provenance == domain.ProvenancePDFOCRFallback && extracted.CharCount < uc.cfg.LowQualityOCRChars
}

func skippedAnalysis() domain.ReportAnalysis {
	return domain.ReportAnalysis{
		Parameters:         map[string]domain.ClassifiedParameter{},
		Order:              []string{},
		Warnings:           []string{},
		NormalParameters:   []string{},
		AbnormalParameters: []string{},
		OverallStatus:      LowQualityOverall,
	}
}

func (uc *AnalyzeReportUseCase) publish(ctx context.Context, result *domain.AnalysisResult) {
	if uc.publisher == nil {
		return
	}
	event := domain.ReportAnalyzedEvent{
		DocumentID: result.DocumentID,
		ReportType: result.ReportType,
		FileType:   result.FileType,
		Provenance: result.Provenance,
		Analysis:   result.Analysis,
		AnalyzedAt: time.Now().UTC(),
	}
	if err := uc.publisher.PublishReportAnalyzed(ctx, event); err != nil {
		slog.Warn("analysis_event_publish_failed", "document_id", result.DocumentID, "error", err.Error())
	}
}

func (uc *AnalyzeReportUseCase) finish(
	ctx context.Context,
	requestID string,
	in intake,
	result *domain.AnalysisResult,
	runErr error,
	duration time.Duration,
) {
	audit := domain.AnalysisAudit{
		DocumentID: in.doc.ID,
		RequestID:  requestID,
		Filename:   in.doc.Filename,
		MediaType:  in.doc.MediaType,
		ReportType: in.reportType,
		FileType:   in.doc.Kind.FileType(),
		Outcome:    domain.OutcomeFailed,
		Duration:   duration,
		CreatedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		audit.ErrorMessage = runErr.Error()
		slog.Error("analysis_failed",
			"document_id", in.doc.ID,
			"request_id", requestID,
			"file_type", audit.FileType,
			"duration_ms", duration.Milliseconds(),
			"error", runErr.Error(),
		)
	} else {
		audit.Provenance = result.Provenance
		audit.CharCount = result.CharCount
		audit.Outcome = result.Outcome
		audit.ParameterCount = len(result.Analysis.Parameters)
		audit.AbnormalCount = len(result.Analysis.AbnormalParameters)
		slog.Info("analysis_completed",
			"document_id", in.doc.ID,
			"request_id", requestID,
			"file_type", audit.FileType,
			"report_type", string(in.reportType),
			"provenance", string(result.Provenance),
			"char_count", result.CharCount,
			"outcome", string(result.Outcome),
			"parameters", audit.ParameterCount,
			"abnormal", audit.AbnormalCount,
			"duration_ms", duration.Milliseconds(),
		)
	}

	uc.metrics.FinishAnalysis(audit.FileType, audit.Provenance, audit.Outcome, audit.ParameterCount, duration)

	if uc.audit == nil {
		return
	}
	// The request context may already be cancelled; the audit row is still wanted.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.audit.Record(auditCtx, audit); err != nil {
		slog.Warn("analysis_audit_failed", "document_id", in.doc.ID, "error", err.Error())
	}
}

type noopMetrics struct{}

func (noopMetrics) StartAnalysis() {}

func (noopMetrics) FinishAnalysis(string, domain.Provenance, domain.AnalysisOutcome, int, time.Duration) {}

func (noopMetrics) ObserveOCR(time.Duration, error) {}

func (noopMetrics) ObserveQualityGate(domain.Provenance) {}
