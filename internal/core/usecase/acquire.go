package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
)

const (
	renderedPageKey = "page-1.png"
	preparedKey     = "prepared.png"
)

type AcquireConfig struct {
	MinTextLayerChars int
	OCRTimeout        time.Duration
}

// TextAcquirer turns a stored upload into raw text, choosing the PDF text layer when it is
// usable and falling back to rasterization plus OCR otherwise.
type TextAcquirer struct {
	pdf          ports.PDFReader
	preprocessor ports.ImagePreprocessor
	ocr          ports.OCREngine
	metrics      ports.AnalysisMetrics
	cfg          AcquireConfig
}

func NewTextAcquirer(
	pdf ports.PDFReader,
	preprocessor ports.ImagePreprocessor,
	ocr ports.OCREngine,
	metrics ports.AnalysisMetrics,
	cfg AcquireConfig,
) *TextAcquirer {
	if cfg.MinTextLayerChars <= 0 {
		cfg.MinTextLayerChars = 50
	}
	if cfg.OCRTimeout <= 0 {
		cfg.OCRTimeout = 8 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TextAcquirer{
		pdf:          pdf,
		preprocessor: preprocessor,
		ocr:          ocr,
		metrics:      metrics,
		cfg:          cfg,
	}
}

func (a *TextAcquirer) Acquire(ctx context.Context, kind domain.DocumentKind, ws ports.Workspace, sourceKey string) (domain.ExtractedText, error) {
	data, err := readArtifact(ctx, ws, sourceKey)
	if err != nil {
		return domain.ExtractedText{}, err
	}

	switch kind {
	case domain.KindImage:
		return a.recognize(ctx, ws, data, domain.ProvenanceImageOCR)
	case domain.KindPDF:
		return a.acquirePDF(ctx, ws, data)
	default:
		return domain.ExtractedText{}, domain.WrapError(
			domain.ErrUnsupportedMediaType,
			"acquire text",
			fmt.Errorf("unknown document kind %q", kind),
		)
	}
}

func (a *TextAcquirer) acquirePDF(ctx context.Context, ws ports.Workspace, data []byte) (domain.ExtractedText, error) {
	if _, err := a.pdf.Validate(ctx, data); err != nil {
		if domain.IsKind(err, domain.ErrDocumentUnreadable) {
			return domain.ExtractedText{}, err
		}
		return domain.ExtractedText{}, domain.WrapError(domain.ErrDocumentUnreadable, "validate pdf", err)
	}

	text, err := a.pdf.ExtractTextLayer(ctx, data)
	if err != nil {
		slog.Warn("text_layer_unreadable", "error", err.Error())
		text = ""
	}
	if count := charCount(text); count >= a.cfg.MinTextLayerChars {
		return domain.ExtractedText{
			Text:       text,
			Provenance: domain.ProvenancePDFTextLayer,
			CharCount:  count,
		}, nil
	}

	page, err := a.pdf.RenderFirstPage(ctx, data)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentUnreadable) {
			return domain.ExtractedText{}, err
		}
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtractionFailed, "render pdf page", err)
	}
	if err := ws.Save(ctx, renderedPageKey, bytes.NewReader(page)); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("save rendered page: %w", err)
	}
	return a.recognize(ctx, ws, page, domain.ProvenancePDFOCRFallback)
}

func (a *TextAcquirer) recognize(ctx context.Context, ws ports.Workspace, image []byte, provenance domain.Provenance) (domain.ExtractedText, error) {
	prepared, err := a.preprocessor.Preprocess(ctx, image)
	if err != nil {
		if domain.IsKind(err, domain.ErrDocumentUnreadable) {
			return domain.ExtractedText{}, err
		}
		return domain.ExtractedText{}, domain.WrapError(domain.ErrExtractionFailed, "preprocess image", err)
	}
	if err := ws.Save(ctx, preparedKey, bytes.NewReader(prepared)); err != nil {
		return domain.ExtractedText{}, fmt.Errorf("save preprocessed image: %w", err)
	}

	ocrCtx, cancel := context.WithTimeout(ctx, a.cfg.OCRTimeout)
	defer cancel()

	start := time.Now()
	text, err := a.ocr.Recognize(ocrCtx, prepared)
	elapsed := time.Since(start)
	a.metrics.ObserveOCR(elapsed, err)
	if err != nil {
		return domain.ExtractedText{}, classifyOCRError(ctx, ocrCtx, err)
	}

	return domain.ExtractedText{
		Text:       text,
		Provenance: provenance,
		CharCount:  charCount(text),
		OCRTime:    elapsed,
	}, nil
}

func classifyOCRError(parent, ocrCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("ocr aborted: %w", parent.Err())
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ocrCtx.Err(), context.DeadlineExceeded):
		return domain.WrapError(domain.ErrExtractionTimeout, "ocr", err)
	case domain.IsKind(err, domain.ErrTemporary):
		return err
	default:
		return domain.WrapError(domain.ErrExtractionFailed, "ocr", err)
	}
}

func readArtifact(ctx context.Context, ws ports.Workspace, key string) ([]byte, error) {
	rc, err := ws.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func charCount(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}
