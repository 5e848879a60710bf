package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/config"
	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
	"github.com/kirillkom/labreport-analyzer/internal/observability/metrics"
)

const (
	serviceName           = "api"
	defaultMaxUploadBytes = 10 << 20

	// multipartOverhead covers boundaries, part headers and the reportType field.
	multipartOverhead = 1 << 20
	multipartMemory   = 4 << 20
	sniffLength       = 512
	octetStreamType   = "application/octet-stream"
	fileFieldName     = "file"
	reportTypeField   = "reportType"
)

type Router struct {
	cfg         config.Config
	analyzer    ports.ReportAnalyzer
	httpMetrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, analyzer ports.ReportAnalyzer, httpMetrics *metrics.HTTPServerMetrics) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPServerMetrics(serviceName)
	}
	return &Router{
		cfg:         cfg,
		analyzer:    analyzer,
		httpMetrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	onReject := func(reason string) {
		rt.httpMetrics.RecordRejection(serviceName, reason)
	}

	analyze := backpressureMiddlewareWithRecorder(
		http.HandlerFunc(rt.analyzeReport),
		rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		onReject,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.httpMetrics.Handler())
	mux.Handle("/v1/reports/analyze", analyze)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	handler = rt.httpMetrics.Middleware(serviceName, handler)
	handler = accessLogMiddleware(handler)
	handler = recoverMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) analyzeReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.writeError(w, r, uploadError(err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(fileFieldName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No file uploaded"})
		return
	}
	defer file.Close()

	body, mediaType, err := resolveMediaType(file, header)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	annotateAnalysis(r.Context(), "file_media_type", mediaType)
	result, err := rt.analyzer.Analyze(r.Context(), ports.AnalyzeRequest{
		RequestID:  requestIDFromContext(r.Context()),
		Filename:   header.Filename,
		MediaType:  mediaType,
		Size:       header.Size,
		ReportType: r.FormValue(reportTypeField),
		Body:       body,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	annotateAnalysis(r.Context(),
		"document_id", result.DocumentID,
		"report_type", string(result.ReportType),
		"provenance", string(result.Provenance),
		"outcome", string(result.Outcome),
	)
	writeJSON(w, http.StatusOK, newAnalyzeResponse(result))
}

// resolveMediaType trusts the declared part type unless it is missing or generic,
// in which case the leading bytes are sniffed.
func resolveMediaType(file multipart.File, header *multipart.FileHeader) (io.Reader, string, error) {
	declared := domain.NormalizeMediaType(header.Header.Get("Content-Type"))
	if declared != "" && declared != octetStreamType {
		return file, declared, nil
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", domain.WrapError(domain.ErrInvalidInput, "read upload", err)
	}
	head = head[:n]
	sniffed := domain.NormalizeMediaType(http.DetectContentType(head))
	return io.MultiReader(bytes.NewReader(head), file), sniffed, nil
}

func uploadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return domain.WrapError(domain.ErrFileTooLarge, "parse upload", err)
	}
	return domain.WrapError(domain.ErrInvalidInput, "parse upload", errors.New("request must be multipart/form-data with a 'file' field"))
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("analyze_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err.Error(),
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: publicErrorMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
