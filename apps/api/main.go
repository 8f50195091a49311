package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	documentshandler "github.com/coffeevibes888/rentflowhq-sub007/domains/documents/be/handler"
	documentsservice "github.com/coffeevibes888/rentflowhq-sub007/domains/documents/be/service"
	leaseshandler "github.com/coffeevibes888/rentflowhq-sub007/domains/leases/be/handler"
	leasesservice "github.com/coffeevibes888/rentflowhq-sub007/domains/leases/be/service"
	signinghandler "github.com/coffeevibes888/rentflowhq-sub007/domains/signing/be/handler"
	signingservice "github.com/coffeevibes888/rentflowhq-sub007/domains/signing/be/service"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/clientinfo"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/logging"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/mail"
	platformmiddleware "github.com/coffeevibes888/rentflowhq-sub007/platform/go/middleware"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/outbox"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/pdf"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/storage"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	ServiceKey      string        `env:"SERVICE_KEY,required"`
	PublicBaseURL   string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	SigningBaseURL string        `env:"SIGNING_BASE_URL,required"`
	SigningLinkTTL time.Duration `env:"SIGNING_LINK_TTL" envDefault:"168h"`
	// Forces the landlord onto the HTML template once the tenant has signed,
	// keeping both signatures inside the same rendered document.
	ForceTemplateForSecondSigner bool `env:"FORCE_TEMPLATE_FOR_SECOND_SIGNER" envDefault:"true"`

	WkhtmltopdfPath string `env:"WKHTMLTOPDF_PATH"`

	StorageBackend  string `env:"STORAGE_BACKEND" envDefault:"local"` // s3 | gcs | local
	StorageBucket   string `env:"STORAGE_BUCKET"`                     // required for s3 and gcs
	StorageLocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./.data/artifacts"`
	S3Region        string `env:"S3_REGION"`
	S3Endpoint      string `env:"S3_ENDPOINT"` // set for MinIO
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3PathStyle     bool   `env:"S3_PATH_STYLE" envDefault:"false"`

	SMTPHost     string `env:"SMTP_HOST"` // empty disables delivery (log only)
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"no-reply@rentflowhq.com"`
	MailFromName string `env:"MAIL_FROM_NAME" envDefault:"RentFlowHQ"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"15s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"20"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"8"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Component: "esign-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	leaseStore, err := persistence.NewLeaseStore(pool)
	if err != nil {
		logger.Fatal("init lease store", zap.Error(err))
	}
	documentStore, err := persistence.NewDocumentStore(pool)
	if err != nil {
		logger.Fatal("init document store", zap.Error(err))
	}
	requestStore, err := persistence.NewSignatureRequestStore(pool)
	if err != nil {
		logger.Fatal("init signature request store", zap.Error(err))
	}
	outboxStore, err := persistence.NewOutboxStore(pool)
	if err != nil {
		logger.Fatal("init outbox store", zap.Error(err))
	}

	artifacts, err := storage.New(ctx, storage.Config{
		Backend:       cfg.StorageBackend,
		S3Bucket:      cfg.StorageBucket,
		S3Region:      cfg.S3Region,
		S3Endpoint:    cfg.S3Endpoint,
		S3AccessKey:   cfg.S3AccessKey,
		S3SecretKey:   cfg.S3SecretKey,
		S3PathStyle:   cfg.S3PathStyle,
		GCSBucket:     cfg.StorageBucket,
		LocalDir:      cfg.StorageLocalDir,
		PublicBaseURL: cfg.PublicBaseURL,
		LinkTTL:       cfg.SigningLinkTTL,
	})
	if err != nil {
		logger.Fatal("init artifact storage", zap.Error(err))
	}
	if closer, ok := artifacts.(io.Closer); ok {
		defer func() {
			_ = closer.Close()
		}()
	}

	engine := pdf.NewEngine(
		pdf.NewWkhtmltopdfConverter(cfg.WkhtmltopdfPath),
		pdf.NewPdfcpuStamper(),
		artifacts,
		logger,
	)

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		})
		if err != nil {
			logger.Fatal("init smtp mailer", zap.Error(err))
		}
	} else {
		logger.Warn("no SMTP_HOST configured, notification emails will only be logged")
		mailer = &mail.LogMailer{Logger: logger}
	}

	dispatcher := outbox.NewDispatcher(outboxStore, mailer, logger, outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	})
	dispatchCtx, stopDispatcher := context.WithCancel(ctx)
	defer stopDispatcher()
	go dispatcher.Run(dispatchCtx)

	leaseService := leasesservice.New(leaseStore, requestStore, leasesservice.Config{
		SigningBaseURL: cfg.SigningBaseURL,
		LinkTTL:        cfg.SigningLinkTTL,
	})
	leaseHTTPHandler := leaseshandler.New(leaseService, logger)

	documentService := documentsservice.New(leaseStore, documentStore, requestStore)
	documentHTTPHandler := documentshandler.New(documentService, logger)

	signingService := signingservice.New(requestStore, leaseStore, documentStore, engine, logger, signingservice.Config{
		SigningBaseURL: cfg.SigningBaseURL,
		LinkTTL:        cfg.SigningLinkTTL,
		Policy: signingservice.ConsistencyPolicy{
			ForceTemplateForSecondSigner: cfg.ForceTemplateForSecondSigner,
		},
	})
	signingHTTPHandler := signinghandler.New(signingService, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		clientinfo.Capture,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(logging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := artifacts.Check(r.Context()); err != nil {
			http.Error(w, "artifact storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, logger)

	// The local backend serves its artifacts itself; S3/GCS mint their own URLs.
	if local, ok := artifacts.(*storage.LocalStore); ok {
		fileServer := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(local.Dir())))
		rootRouter.Handle("/artifacts/*", fileServer)
	}

	apiRouter := chi.NewRouter()

	signingValidator := mustNewSpecValidator(logger, "contracts/signing.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(signingValidator)
		r.Route("/sign", signingHTTPHandler.Register)
	})

	leasesValidator := mustNewSpecValidator(logger, "contracts/leases.yaml")
	apiRouter.Group(func(r chi.Router) {
		r.Use(platformmiddleware.RequireServiceKey(cfg.ServiceKey))
		r.Use(leasesValidator)
		r.Route("/leases", func(r chi.Router) {
			leaseHTTPHandler.Register(r)
			documentHTTPHandler.Register(r)
		})
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting esign api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	stopDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// mustNewSpecValidator loads an OpenAPI contract and builds request validation
// middleware for its route group, so requests never reach a handler in a shape
// the contract forbids.
func mustNewSpecValidator(logger *zap.Logger, path string) func(http.Handler) http.Handler {
	spec := mustLoadSpec(logger, path)

	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateServiceKeyViaSwagger,
		},
	})
}

// mustLoadSpec loads and returns the OpenAPI document for validation and docs
// serving. References resolve relative to the contract file only.
func mustLoadSpec(logger *zap.Logger, path string) *openapi3.T {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	absPath, err := filepath.Abs(path)
	if err != nil {
		logger.Fatal("resolve spec path", zap.String("path", path), zap.Error(err))
	}

	baseDir := filepath.Dir(absPath)
	loader.ReadFromURIFunc = func(loader *openapi3.Loader, ref *url.URL) ([]byte, error) {
		if ref == nil {
			return nil, errors.New("nil reference URI")
		}
		if ref.IsAbs() {
			switch ref.Scheme {
			case "file":
				data, err := os.ReadFile(ref.Path)
				if err != nil {
					return nil, fmt.Errorf("read reference %q: %w", ref.Path, err)
				}
				return data, nil
			default:
				return nil, fmt.Errorf("unsupported reference scheme %q", ref.String())
			}
		}
		refPath := filepath.Clean(ref.Path)
		if refPath == "" {
			return nil, fmt.Errorf("empty reference path for %q", ref.String())
		}
		candidate := filepath.Join(baseDir, refPath)
		data, err := os.ReadFile(candidate)
		if err != nil {
			return nil, fmt.Errorf("read reference %q: %w", candidate, err)
		}
		return data, nil
	}

	spec, err := loader.LoadFromFile(absPath)
	if err != nil {
		logger.Fatal("load openapi spec", zap.String("path", path), zap.Error(err))
	}

	return spec
}
