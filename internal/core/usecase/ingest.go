package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
)

// intake is the validated, not yet stored form of an analyze request.
type intake struct {
	doc        domain.UploadedDocument
	reportType domain.ReportType
	body       io.Reader
}

// admit validates an analyze request. It runs before any workspace or OCR resource is allocated.
func admit(req ports.AnalyzeRequest, maxUploadBytes int64) (intake, error) {
	reportType, err := domain.ParseReportType(req.ReportType)
	if err != nil {
		return intake{}, err
	}
	kind, err := domain.ClassifyMediaType(req.MediaType)
	if err != nil {
		return intake{}, err
	}
	if req.Body == nil {
		return intake{}, domain.WrapError(domain.ErrInvalidInput, "admit upload", errors.New("file is required"))
	}
	if maxUploadBytes > 0 && req.Size > maxUploadBytes {
		return intake{}, domain.WrapError(
			domain.ErrFileTooLarge,
			"admit upload",
			fmt.Errorf("file size %d exceeds limit %d", req.Size, maxUploadBytes),
		)
	}

	id := uuid.NewString()
	return intake{
		doc: domain.UploadedDocument{
			ID:         id,
			Filename:   req.Filename,
			MediaType:  domain.NormalizeMediaType(req.MediaType),
			Kind:       kind,
			Size:       req.Size,
			StorageKey: fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename, kind)),
			CreatedAt:  time.Now().UTC(),
		},
		reportType: reportType,
		body:       req.Body,
	}, nil
}

// store copies the upload into the workspace, enforcing the size limit on the actual byte count.
func store(ctx context.Context, ws ports.Workspace, in *intake, maxUploadBytes int64) error {
	counter := &countingReader{r: in.body}
	var body io.Reader = counter
	if maxUploadBytes > 0 {
		body = io.LimitReader(counter, maxUploadBytes+1)
	}

	if err := ws.Save(ctx, in.doc.StorageKey, body); err != nil {
		return fmt.Errorf("save upload to workspace: %w", err)
	}
	if maxUploadBytes > 0 && counter.n > maxUploadBytes {
		return domain.WrapError(
			domain.ErrFileTooLarge,
			"store upload",
			fmt.Errorf("file exceeds limit %d", maxUploadBytes),
		)
	}
	if counter.n == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "store upload", errors.New("file is empty"))
	}
	in.doc.Size = counter.n
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string, kind domain.DocumentKind) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		if kind == domain.KindPDF {
			return "report.pdf"
		}
		return "report.img"
	}
	return base
}
