// Package tesseract recognizes report text with Tesseract through gosseract.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/resilience"
)

const operation = "ocr.tesseract"

type Options struct {
	Language string
	// PageSegMode defaults to automatic segmentation, which suits tabular reports.
	PageSegMode        gosseract.PageSegMode
	ResilienceExecutor *resilience.Executor
}

type Engine struct {
	language string
	psm      gosseract.PageSegMode
	executor *resilience.Executor
	run      func(language string, psm gosseract.PageSegMode, image []byte) (string, error)
}

func New(opts Options) *Engine {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "eng"
	}
	psm := opts.PageSegMode
	if psm == 0 {
		psm = gosseract.PSM_AUTO
	}
	return &Engine{
		language: language,
		psm:      psm,
		executor: opts.ResilienceExecutor,
		run:      recognizeOnce,
	}
}

// Recognize returns as soon as ctx is done. Tesseract itself cannot be interrupted,
// so the abandoned run finishes in the background and closes its own client.
func (e *Engine) Recognize(ctx context.Context, image []byte) (string, error) {
	call := func(callCtx context.Context) (string, error) {
		return e.recognize(callCtx, image)
	}

	var (
		text string
		err  error
	)
	if e.executor != nil {
		text, err = resilience.Call(ctx, e.executor, operation, call, classifyOCRError)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		if resilience.IsCircuitOpen(err) {
			slog.Warn("ocr_circuit_open", "breaker_state", e.BreakerState(), "language", e.language)
			return "", domain.WrapError(domain.ErrTemporary, "ocr", err)
		}
		return "", err
	}
	return text, nil
}

// BreakerState reports the OCR circuit breaker state: closed, open, half-open or disabled.
func (e *Engine) BreakerState() string {
	if e.executor == nil {
		return "disabled"
	}
	return e.executor.State(operation)
}

func (e *Engine) recognize(ctx context.Context, image []byte) (string, error) {
	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tesseract panic: %v", rec)}
			}
		}()
		text, err := e.run(e.language, e.psm, image)
		done <- outcome{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		slog.Warn("ocr_abandoned", "language", e.language, "error", ctx.Err().Error())
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}

// recognizeOnce uses a fresh client per call; gosseract clients are not safe for concurrent use.
func recognizeOnce(language string, psm gosseract.PageSegMode, image []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("set ocr language: %w", err)
	}
	if err := client.SetPageSegMode(psm); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}

func classifyOCRError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// Timeouts count: a hung engine is exactly what the breaker should stop calling.
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
