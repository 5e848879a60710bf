package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

const textLayerReport = "Hemoglobin 10.5 g/dL\nPlatelets 250\nGlucose 92 mg/dL\nCreatinine 1.0"

func TestAnalyzeImageUsesOCR(t *testing.T) {
	h := newHarness()
	h.ocr.text = "Hemoglobin 8.0\nWBC 7.5"

	result, err := h.useCase(t).Analyze(context.Background(), request("image/png", "Blood", []byte("png-bytes")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Provenance != domain.ProvenanceImageOCR {
		t.Fatalf("expected image-ocr provenance, got %q", result.Provenance)
	}
	if result.FileType != "Image" {
		t.Fatalf("expected Image file type, got %q", result.FileType)
	}
	if result.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %q", result.Outcome)
	}
	hb := result.Analysis.Parameters["Hemoglobin"]
	if hb.Status != domain.StatusLow || hb.Severity != domain.SeveritySevere {
		t.Fatalf("unexpected hemoglobin classification: %+v", hb)
	}
	if len(result.Analysis.Warnings) != 1 {
		t.Fatalf("expected one severe warning, got %v", result.Analysis.Warnings)
	}
	if h.preprocessor.calls != 1 || h.ocr.calls != 1 {
		t.Fatalf("expected one preprocess and one ocr call, got %d/%d", h.preprocessor.calls, h.ocr.calls)
	}
	if !h.storage.allReleased() {
		t.Fatalf("workspace was not released")
	}
	if len(h.publisher.events) != 1 || h.publisher.events[0].DocumentID != result.DocumentID {
		t.Fatalf("expected one analysis event, got %+v", h.publisher.events)
	}
	if len(h.audit.records) != 1 || h.audit.records[0].Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed audit record, got %+v", h.audit.records)
	}
	if h.audit.records[0].ParameterCount != 2 || h.audit.records[0].AbnormalCount != 1 {
		t.Fatalf("unexpected audit counts: %+v", h.audit.records[0])
	}
}

func TestAnalyzePDFTextLayerSkipsOCR(t *testing.T) {
	h := newHarness()
	h.pdf.text = textLayerReport

	result, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "", []byte("%PDF-1.7")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Provenance != domain.ProvenancePDFTextLayer {
		t.Fatalf("expected text layer provenance, got %q", result.Provenance)
	}
	if result.ReportType != domain.ReportTypeBlood {
		t.Fatalf("expected default Blood report type, got %q", result.ReportType)
	}
	if h.ocr.calls != 0 || h.pdf.renders != 0 {
		t.Fatalf("expected no rendering or ocr, got renders=%d ocr=%d", h.pdf.renders, h.ocr.calls)
	}
	if got := result.Analysis.OverallStatus; got != "1 parameter(s) outside normal range" {
		t.Fatalf("unexpected overall status %q", got)
	}
}

func TestAnalyzeScannedPDFLowQualityIsPartial(t *testing.T) {
	h := newHarness()
	h.pdf.text = "   "
	h.ocr.text = strings.Repeat("x", 120)

	result, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "Blood", []byte("%PDF-1.4")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Outcome != domain.OutcomePartial {
		t.Fatalf("expected partial outcome, got %q", result.Outcome)
	}
	if result.Provenance != domain.ProvenancePDFOCRFallback {
		t.Fatalf("expected ocr fallback provenance, got %q", result.Provenance)
	}
	if result.Warning != LowQualityWarning {
		t.Fatalf("unexpected warning %q", result.Warning)
	}
	if result.Analysis.OverallStatus != LowQualityOverall {
		t.Fatalf("unexpected overall status %q", result.Analysis.OverallStatus)
	}
	if len(result.Analysis.Parameters) != 0 || result.Analysis.AbnormalParameters == nil {
		t.Fatalf("expected empty non-nil analysis, got %+v", result.Analysis)
	}
	if h.pdf.renders != 1 || h.ocr.calls != 1 {
		t.Fatalf("expected one render and one ocr call, got %d/%d", h.pdf.renders, h.ocr.calls)
	}
	if len(h.publisher.events) != 0 {
		t.Fatalf("partial analyses must not be published")
	}
	if h.metrics.qualityGate != 1 {
		t.Fatalf("expected quality gate observation")
	}
	if !h.storage.allReleased() {
		t.Fatalf("workspace was not released")
	}
}

func TestAnalyzeScannedPDFFallbackAnalyzesLongOCRText(t *testing.T) {
	h := newHarness()
	h.ocr.text = "Hemoglobin 13.5\n" + strings.Repeat("Reference laboratory line\n", 20)

	result, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "Blood", []byte("%PDF-1.4")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Outcome != domain.OutcomeCompleted || result.Provenance != domain.ProvenancePDFOCRFallback {
		t.Fatalf("unexpected result outcome=%q provenance=%q", result.Outcome, result.Provenance)
	}
	if result.Analysis.Parameters["Hemoglobin"].Status != domain.StatusNormal {
		t.Fatalf("expected normal hemoglobin, got %+v", result.Analysis.Parameters["Hemoglobin"])
	}
}

func TestAnalyzeTextLayerErrorFallsBackToOCR(t *testing.T) {
	h := newHarness()
	h.pdf.textErr = errors.New("malformed content stream")
	h.ocr.text = strings.Repeat("y", 500)

	result, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "Blood", []byte("%PDF-1.4")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Provenance != domain.ProvenancePDFOCRFallback {
		t.Fatalf("expected ocr fallback provenance, got %q", result.Provenance)
	}
}

func TestAnalyzeRejectsBeforeAllocating(t *testing.T) {
	cases := []struct {
		name       string
		mediaType  string
		reportType string
		kind       error
	}{
		{name: "unsupported media", mediaType: "text/plain", reportType: "Blood", kind: domain.ErrUnsupportedMediaType},
		{name: "invalid report type", mediaType: "image/png", reportType: "Stool", kind: domain.ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.useCase(t).Analyze(context.Background(), request(tc.mediaType, tc.reportType, []byte("data")))
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if len(h.storage.workspaces) != 0 || h.ocr.calls != 0 {
				t.Fatalf("expected no resources, got workspaces=%d ocr=%d", len(h.storage.workspaces), h.ocr.calls)
			}
			if h.metrics.started != 0 || len(h.audit.records) != 0 {
				t.Fatalf("rejected requests must not be recorded")
			}
		})
	}
}

func TestAnalyzeCorruptPDFNeverInvokesOCR(t *testing.T) {
	h := newHarness()
	h.pdf.validateErr = errors.New("xref table not found")

	_, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "Blood", []byte("garbage")))
	if !domain.IsKind(err, domain.ErrDocumentUnreadable) {
		t.Fatalf("expected ErrDocumentUnreadable, got %v", err)
	}
	if h.ocr.calls != 0 || h.pdf.renders != 0 {
		t.Fatalf("expected no rendering or ocr on corrupt pdf")
	}
	if !h.storage.allReleased() {
		t.Fatalf("workspace was not released")
	}
	if len(h.audit.records) != 1 || h.audit.records[0].Outcome != domain.OutcomeFailed {
		t.Fatalf("expected failed audit record, got %+v", h.audit.records)
	}
}

func TestAnalyzeOCRTimeout(t *testing.T) {
	h := newHarness()
	h.ocr.block = true
	h.ocrTimeout = 20 * time.Millisecond

	_, err := h.useCase(t).Analyze(context.Background(), request("image/jpeg", "Blood", []byte("jpeg-bytes")))
	if !domain.IsKind(err, domain.ErrExtractionTimeout) {
		t.Fatalf("expected ErrExtractionTimeout, got %v", err)
	}
	if !h.storage.allReleased() {
		t.Fatalf("workspace was not released")
	}
	if len(h.metrics.finished) != 1 || h.metrics.finished[0] != domain.OutcomeFailed {
		t.Fatalf("expected failed metrics observation, got %v", h.metrics.finished)
	}
}

func TestAnalyzeOCRFailure(t *testing.T) {
	h := newHarness()
	h.ocr.err = errors.New("tesseract: init failed")

	_, err := h.useCase(t).Analyze(context.Background(), request("image/png", "Urine", []byte("png")))
	if !domain.IsKind(err, domain.ErrExtractionFailed) {
		t.Fatalf("expected ErrExtractionFailed, got %v", err)
	}
	if h.ocr.calls != 1 {
		t.Fatalf("ocr must not be retried, calls=%d", h.ocr.calls)
	}
}

func TestAnalyzeOversizedUpload(t *testing.T) {
	h := newHarness()
	h.maxUpload = 8
	req := request("image/png", "Blood", []byte("0123456789abcdef"))
	req.Size = 0

	_, err := h.useCase(t).Analyze(context.Background(), req)
	if !domain.IsKind(err, domain.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if h.ocr.calls != 0 {
		t.Fatalf("oversized upload must not reach ocr")
	}
	if !h.storage.allReleased() {
		t.Fatalf("workspace was not released")
	}
}

func TestAnalyzeReleasesWorkspaceOnPanic(t *testing.T) {
	h := newHarness()
	h.ocr.panic = true
	uc := h.useCase(t)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = uc.Analyze(context.Background(), request("image/png", "Blood", []byte("png")))
	}()

	if len(h.storage.workspaces) != 1 || !h.storage.allReleased() {
		t.Fatalf("workspace was not released after panic")
	}
}

func TestAnalyzeToleratesAuditAndPublishFailures(t *testing.T) {
	h := newHarness()
	h.pdf.text = textLayerReport
	h.audit.err = errors.New("db down")
	h.publisher.err = errors.New("nats down")

	result, err := h.useCase(t).Analyze(context.Background(), request("application/pdf", "Blood", []byte("%PDF")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Outcome != domain.OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %q", result.Outcome)
	}
}

func TestAnalyzeUrineReport(t *testing.T) {
	h := newHarness()
	h.ocr.text = "URINE ROUTINE\nColour : Pale Yellow\npH: 55\nPROTEIN: Trace\nSugar: Nil"

	result, err := h.useCase(t).Analyze(context.Background(), request("image/jpg", "urine", []byte("jpg")))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.ReportType != domain.ReportTypeUrine {
		t.Fatalf("expected Urine report type, got %q", result.ReportType)
	}
	ph := result.Analysis.Parameters["pH"]
	if ph.Value != "5.5" || ph.Status != domain.StatusNormal {
		t.Fatalf("unexpected pH: %+v", ph)
	}
	if got := result.Analysis.AbnormalParameters; len(got) != 1 || got[0] != "Protein" {
		t.Fatalf("expected Protein abnormal, got %v", got)
	}
}
