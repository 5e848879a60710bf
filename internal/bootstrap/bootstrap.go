package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kirillkom/labreport-analyzer/internal/config"
	"github.com/kirillkom/labreport-analyzer/internal/core/labreport"
	"github.com/kirillkom/labreport-analyzer/internal/core/ports"
	"github.com/kirillkom/labreport-analyzer/internal/core/usecase"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/imageprep"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/labreport-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/labreport-analyzer/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Analyzer    ports.ReportAnalyzer
	HTTPMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	grammars, err := loadGrammars(cfg.GrammarFile)
	if err != nil {
		return nil, fmt.Errorf("load grammars: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init scratch storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	analysisMetrics := metrics.NewAnalysisMetrics("api", httpMetrics.Registerer())

	ocrExecutor := resilience.NewExecutor(ocrResilienceConfig(cfg))
	engine := tesseract.New(tesseract.Options{
		Language:           cfg.OCRLanguage,
		ResilienceExecutor: ocrExecutor,
	})

	acquirer := usecase.NewTextAcquirer(
		pdf.NewReader(pdf.Options{RenderDPI: cfg.PDFRenderDPI}),
		imageprep.New(imageprep.Options{MaxDimension: cfg.PreprocessMaxDimension}),
		engine,
		analysisMetrics,
		usecase.AcquireConfig{
			MinTextLayerChars: cfg.MinTextLayerChars,
			OCRTimeout:        time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		},
	)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var audit ports.AnalysisAuditLog
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		repo := postgres.NewAuditRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		audit = repo
	} else {
		slog.Info("audit_log_disabled", "reason", "POSTGRES_DSN is empty")
	}

	var publisher ports.AnalysisPublisher
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		publisher = queue
	} else {
		slog.Info("analysis_events_disabled", "reason", "NATS_URL is empty")
	}

	analyzer := usecase.NewAnalyzeReportUseCase(
		grammars,
		storage,
		acquirer,
		audit,
		publisher,
		analysisMetrics,
		usecase.AnalyzeConfig{
			MaxUploadBytes:     cfg.MaxUploadBytes,
			LowQualityOCRChars: cfg.LowQualityOCRChars,
		},
	)

	return &App{
		Config:      cfg,
		Analyzer:    analyzer,
		HTTPMetrics: httpMetrics,
		closeFn:     closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func loadGrammars(path string) (*labreport.Grammars, error) {
	if path == "" {
		return labreport.DefaultGrammars()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return labreport.LoadGrammars(f)
}

func ocrResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.BreakerEnabled = cfg.OCRBreakerEnabled
	if cfg.OCRBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.OCRBreakerMinRequests)
	}
	if cfg.OCRBreakerFailureRatio > 0 {
		out.BreakerFailureRatio = cfg.OCRBreakerFailureRatio
	}
	if cfg.OCRBreakerOpenTimeoutSeconds > 0 {
		out.BreakerOpenTimeout = time.Duration(cfg.OCRBreakerOpenTimeoutSeconds) * time.Second
	}
	return out.SingleAttempt()
}
