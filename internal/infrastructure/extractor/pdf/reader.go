// Package pdf reads lab report PDFs: structure validation with pdfcpu, the embedded
// text layer with ledongthuc/pdf and first-page rasterization with MuPDF (go-fitz).
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

type Options struct {
	RenderDPI int
}

type Reader struct {
	renderDPI float64
}

func NewReader(opts Options) *Reader {
	dpi := opts.RenderDPI
	if dpi <= 0 {
		dpi = 300
	}
	return &Reader{renderDPI: float64(dpi)}
}

// Validate parses the cross-reference table and object graph in relaxed mode.
// Any failure means the document cannot be trusted for text or rendering.
func (r *Reader) Validate(ctx context.Context, data []byte) (pages int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, domain.WrapError(domain.ErrDocumentUnreadable, "validate pdf", errors.New("empty document"))
	}
	defer func() {
		if rec := recover(); rec != nil {
			pages = 0
			err = domain.WrapError(domain.ErrDocumentUnreadable, "validate pdf", fmt.Errorf("parser panic: %v", rec))
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, domain.WrapError(domain.ErrDocumentUnreadable, "validate pdf", err)
	}
	if pdfCtx.PageCount < 1 {
		return 0, domain.WrapError(domain.ErrDocumentUnreadable, "validate pdf", errors.New("document has no pages"))
	}
	return pdfCtx.PageCount, nil
}

// ExtractTextLayer concatenates the plain text of every page. Malformed content
// streams make the decoder panic; that is reported as an error, not a crash.
func (r *Reader) ExtractTextLayer(ctx context.Context, data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("text layer decoder panic: %v", rec)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open text layer: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d text: %w", i, err)
		}
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

// RenderFirstPage rasterizes page one to PNG at the configured DPI.
func (r *Reader) RenderFirstPage(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "render pdf", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, domain.WrapError(domain.ErrDocumentUnreadable, "render pdf", errors.New("document has no pages"))
	}

	img, err := doc.ImageDPI(0, r.renderDPI)
	if err != nil {
		return nil, fmt.Errorf("rasterize first page: %w", err)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page png: %w", err)
	}
	return buf.Bytes(), nil
}
