package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/core/labreport"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
)

type storageFake struct {
	createErr  error
	workspaces []*workspaceFake
}

func (f *storageFake) NewWorkspace(context.Context, string) (ports.Workspace, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	ws := &workspaceFake{files: map[string][]byte{}}
	f.workspaces = append(f.workspaces, ws)
	return ws, nil
}

func (f *storageFake) allReleased() bool {
	for _, ws := range f.workspaces {
		if !ws.released {
			return false
		}
	}
	return true
}

type workspaceFake struct {
	mu       sync.Mutex
	files    map[string][]byte
	released bool
}

func (w *workspaceFake) Save(_ context.Context, key string, data io.Reader) error {
	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[key] = payload
	return nil
}

func (w *workspaceFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	payload, ok := w.files[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (w *workspaceFake) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released = true
	w.files = map[string][]byte{}
	return nil
}

type pdfFake struct {
	validateErr error
	text        string
	textErr     error
	page        []byte
	renderErr   error
	renders     int
}

func (f *pdfFake) Validate(context.Context, []byte) (int, error) {
	if f.validateErr != nil {
		return 0, f.validateErr
	}
	return 1, nil
}

func (f *pdfFake) ExtractTextLayer(context.Context, []byte) (string, error) {
	return f.text, f.textErr
}

func (f *pdfFake) RenderFirstPage(context.Context, []byte) ([]byte, error) {
	f.renders++
	if f.renderErr != nil {
		return nil, f.renderErr
	}
	return f.page, nil
}

type preprocessorFake struct {
	err   error
	calls int
}

func (f *preprocessorFake) Preprocess(_ context.Context, image []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("prepared:"), image...), nil
}

type ocrFake struct {
	text  string
	err   error
	block bool
	panic bool
	calls int
}

func (f *ocrFake) Recognize(ctx context.Context, _ []byte) (string, error) {
	f.calls++
	if f.panic {
		panic("tesseract crashed")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type auditFake struct {
	err     error
	records []domain.AnalysisAudit
}

func (f *auditFake) Record(_ context.Context, audit domain.AnalysisAudit) error {
	f.records = append(f.records, audit)
	return f.err
}

type publisherFake struct {
	err    error
	events []domain.ReportAnalyzedEvent
}

func (f *publisherFake) PublishReportAnalyzed(_ context.Context, event domain.ReportAnalyzedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type metricsFake struct {
	started     int
	finished    []domain.AnalysisOutcome
	ocr         int
	qualityGate int
}

func (f *metricsFake) StartAnalysis() { f.started++ }

func (f *metricsFake) FinishAnalysis(_ string, _ domain.Provenance, outcome domain.AnalysisOutcome, _ int, _ time.Duration) {
	f.finished = append(f.finished, outcome)
}

func (f *metricsFake) ObserveOCR(time.Duration, error) { f.ocr++ }

func (f *metricsFake) ObserveQualityGate(domain.Provenance) { f.qualityGate++ }

type harness struct {
	storage      *storageFake
	pdf          *pdfFake
	preprocessor *preprocessorFake
	ocr          *ocrFake
	audit        *auditFake
	publisher    *publisherFake
	metrics      *metricsFake
	ocrTimeout   time.Duration
	maxUpload    int64
}

func newHarness() *harness {
	return &harness{
		storage:      &storageFake{},
		pdf:          &pdfFake{page: []byte("rendered-page")},
		preprocessor: &preprocessorFake{},
		ocr:          &ocrFake{},
		audit:        &auditFake{},
		publisher:    &publisherFake{},
		metrics:      &metricsFake{},
		ocrTimeout:   time.Second,
		maxUpload:    1 << 20,
	}
}

func (h *harness) useCase(t *testing.T) *AnalyzeReportUseCase {
	t.Helper()
	grammars, err := labreport.DefaultGrammars()
	if err != nil {
		t.Fatalf("load grammars: %v", err)
	}
	acquirer := NewTextAcquirer(h.pdf, h.preprocessor, h.ocr, h.metrics, AcquireConfig{
		MinTextLayerChars: 50,
		OCRTimeout:        h.ocrTimeout,
	})
	return NewAnalyzeReportUseCase(grammars, h.storage, acquirer, h.audit, h.publisher, h.metrics, AnalyzeConfig{
		MaxUploadBytes:     h.maxUpload,
		LowQualityOCRChars: 400,
	})
}

func request(mediaType, reportType string, body []byte) ports.AnalyzeRequest {
	return ports.AnalyzeRequest{
		RequestID:  "req-1",
		Filename:   "report file.bin",
		MediaType:  mediaType,
		Size:       int64(len(body)),
		ReportType: reportType,
		Body:       bytes.NewReader(body),
	}
}
