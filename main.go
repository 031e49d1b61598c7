package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"building-monitor/internal/audit"
	"building-monitor/internal/auth"
	"building-monitor/internal/backendapi"
	"building-monitor/internal/charts"
	mdapp "building-monitor/internal/masterdata/application"
	masterdatahttp "building-monitor/internal/masterdata/interfaces/http"
	"building-monitor/internal/observability/metrics"
	realtimeapp "building-monitor/internal/realtime/application"
	"building-monitor/internal/realtime/infrastructure/push"
	realtimehttp "building-monitor/internal/realtime/interfaces/http"
	reportapp "building-monitor/internal/reports/application"
	reports "building-monitor/internal/reports/domain"
	reportshttp "building-monitor/internal/reports/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("dotenv load error: %v", err)
	}
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		db          *sql.DB
		auditLogger audit.Logger
		auditReader audit.Reader
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		auditRepo := audit.NewRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			logger.Fatalf("audit schema error: %v", err)
		}
		auditLogger = auditRepo
		auditReader = auditRepo
	} else {
		logger.Printf("audit disabled: DATABASE_URL not set")
	}
	metrics.Init(db, logger)

	backend, err := backendapi.NewClient(cfg.BackendURL,
		backendapi.WithToken(cfg.BackendToken),
		backendapi.WithFileBaseURL(cfg.BackendFilesURL),
		backendapi.WithTimeout(cfg.BackendTimeout),
	)
	if err != nil {
		logger.Fatalf("backend client error: %v", err)
	}
	referenceService, err := mdapp.NewReferenceService(backend, backend, backend, logger)
	if err != nil {
		logger.Fatalf("reference service error: %v", err)
	}

	renderer := charts.NewRenderer(cfg.ChartWidth, cfg.ChartHeight)
	sessions, err := reportapp.NewSessions(func(def reports.Definition) (*reportapp.Builder, error) {
		return reportapp.NewBuilder(def, backend, renderer,
			reportapp.WithReferenceData(referenceService),
			reportapp.WithLogger(logger),
		)
	})
	if err != nil {
		logger.Fatalf("report sessions error: %v", err)
	}
	reportsHandler, err := reportshttp.NewHandler(sessions, auditLogger, auditReader, cfg.ReportLocation)
	if err != nil {
		logger.Fatalf("reports handler error: %v", err)
	}
	masterdataHandler, err := masterdatahttp.NewHandler(referenceService, auditLogger)
	if err != nil {
		logger.Fatalf("masterdata handler error: %v", err)
	}

	catalog, err := realtimeapp.LoadCatalog()
	if err != nil {
		logger.Fatalf("realtime catalog error: %v", err)
	}
	hub := realtimeapp.NewHub(logger)
	broker := realtimehttp.NewSSEBroker()
	panel, err := realtimeapp.NewPanel(hub, catalog, broker)
	if err != nil {
		logger.Fatalf("realtime panel error: %v", err)
	}
	defer panel.Close()
	snapshotHandler, err := realtimehttp.NewHandler(panel)
	if err != nil {
		logger.Fatalf("realtime handler error: %v", err)
	}
	ingestHandler, err := realtimehttp.NewIngestHandler(hub, logger)
	if err != nil {
		logger.Fatalf("realtime ingest handler error: %v", err)
	}

	source, err := buildSource(catalog, logger)
	if err != nil {
		logger.Fatalf("realtime source error: %v", err)
	}
	if source != nil {
		go func() {
			if err := hub.Run(ctx, source); err != nil {
				logger.Printf("realtime source %s stopped: %v", source.Name(), err)
			}
		}()
	}

	var adjuster realtimehttp.CounterAdjuster
	if commander, ok := source.(realtimeapp.Commander); ok {
		a, err := realtimeapp.NewCounterAdjuster(hub, commander, cfg.CounterConfirmTimeout, logger)
		if err != nil {
			logger.Fatalf("people counter error: %v", err)
		}
		adjuster = a
	} else {
		logger.Printf("people counter adjustment disabled: source cannot send commands")
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/api/v1/realtime/ingest"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/reports", reportsHandler)
	mux.Handle("/api/v1/reports/", reportsHandler)
	mux.Handle("/api/v1/environments", masterdataHandler)
	mux.Handle("/api/v1/organization", masterdataHandler)
	mux.Handle("/api/v1/organization/logo", masterdataHandler)
	mux.Handle("/api/v1/realtime/snapshot", snapshotHandler)
	mux.Handle("/api/v1/realtime/widgets/", snapshotHandler)
	mux.Handle("/api/v1/realtime/stream", realtimehttp.NewStreamHandler(broker, panel))
	mux.Handle("/api/v1/realtime/ingest", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/realtime/people-counter", realtimehttp.NewCounterHandler(adjuster, auditLogger))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "x-token"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Surface-Generation"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           corsHandler.Handler(loggingMiddleware(authMiddleware.Wrap(mux), logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server error: %v", err)
	}
	logger.Printf("http server stopped")
}

// buildSource returns the push source selected by the catalog, or nil when
// readings arrive only through the ingest endpoint.
func buildSource(catalog realtimeapp.Catalog, logger *log.Logger) (realtimeapp.Source, error) {
	src := catalog.Source
	switch src.Kind {
	case realtimeapp.SourceNone, realtimeapp.SourceHTTP, "":
		return nil, nil
	case realtimeapp.SourceWebsocket:
		return push.NewWebsocketSource(src.URL, nil, logger)
	case realtimeapp.SourceMQTT:
		return push.NewMQTTSource(push.MQTTConfig{
			Brokers:     src.Brokers,
			ClientID:    src.ClientID,
			Username:    src.Username,
			Password:    src.Password,
			TopicPrefix: src.TopicPrefix,
			Channels:    catalog.Channels(),
		}, logger)
	case realtimeapp.SourceKafka:
		return push.NewKafkaSource(push.KafkaConfig{
			Brokers: src.Brokers,
			Topic:   src.Topic,
			GroupID: src.GroupID,
		}, logger)
	default:
		return nil, errors.New("unknown realtime source " + src.Kind)
	}
}

type config struct {
	HTTPAddr              string
	DatabaseURL           string
	BackendURL            string
	BackendFilesURL       string
	BackendToken          string
	BackendTimeout        time.Duration
	JWTSecret             string
	IngestSecret          string
	IngestSkewSeconds     int
	CounterConfirmTimeout time.Duration
	CORSOrigins           []string
	ReportLocation        *time.Location
	ChartWidth            int
	ChartHeight           int
	ShutdownTimeout       time.Duration
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:              getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:           getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		BackendURL:            getenvDefault("BACKEND_URL", ""),
		BackendFilesURL:       getenvDefault("BACKEND_FILES_URL", ""),
		BackendToken:          getenvDefault("BACKEND_TOKEN", ""),
		BackendTimeout:        getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		JWTSecret:             getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:          getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds:     getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		CounterConfirmTimeout: getenvDuration("COUNTER_CONFIRM_TIMEOUT", realtimeapp.DefaultConfirmTimeout),
		CORSOrigins:           splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		ChartWidth:            getenvIntDefault("CHART_WIDTH", 1024),
		ChartHeight:           getenvIntDefault("CHART_HEIGHT", 512),
		ShutdownTimeout:       getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.BackendURL == "" {
		log.Fatal("BACKEND_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	tz := getenvDefault("REPORT_TZ", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Fatalf("REPORT_TZ %q: %v", tz, err)
	}
	cfg.ReportLocation = loc
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the widget stream working behind the access log.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
