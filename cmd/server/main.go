// @title           Quarry Depth Finder API
// @version         1.0
// @description     Backend-for-frontend сервер анализа глубины карьеров: рисование полигона, загрузка высот, анализ глубины, сохраненные участки и история анализов.

// @contact.name   API Support
// @contact.url    https://github.com/akozadaev/go_quarry_depth_finder

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @schemes   http https
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/akozadaev/go_quarry_depth_finder/docs" // swagger docs
	"github.com/akozadaev/go_quarry_depth_finder/internal/backend"
	"github.com/akozadaev/go_quarry_depth_finder/internal/config"
	"github.com/akozadaev/go_quarry_depth_finder/internal/handlers"
	"github.com/akozadaev/go_quarry_depth_finder/internal/observability"
	"github.com/akozadaev/go_quarry_depth_finder/internal/orchestrator"
	"github.com/akozadaev/go_quarry_depth_finder/internal/overpass"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sanitize"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sites"
	"github.com/akozadaev/go_quarry_depth_finder/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	client := backend.NewClient(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		backend.WithMetrics(metrics),
		backend.WithLogger(logger),
	)

	// История анализов
	ctx := context.Background()
	recorder := &storage.Recorder{Logger: logger}
	if cfg.HistoryDBType != "" {
		hs, err := storage.NewHistoryStore(ctx, cfg.HistoryDBType, cfg.HistoryDBURL)
		if err != nil {
			logger.Error("failed to open analysis history", "driver", cfg.HistoryDBType, "error", err)
			os.Exit(1)
		}
		defer hs.Close()
		recorder.History = hs
		logger.Info("analysis history connected", "driver", cfg.HistoryDBType)
	}
	if cfg.ElasticsearchURL != "" {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses:         []string{cfg.ElasticsearchURL},
			DisableMetaHeader: true,
		})
		if err != nil {
			logger.Error("failed to create elasticsearch client", "error", err)
			os.Exit(1)
		}
		index := storage.NewAnalysisIndex(esClient, cfg.ElasticsearchIndex, cfg.ElasticsearchURL)
		if err := index.CreateIndex(ctx); err != nil {
			logger.Warn("could not create index", "index", index.Name(), "error", err)
		} else {
			logger.Info("elasticsearch index created/verified", "index", index.Name())
		}
		recorder.Index = index
	}

	renderer := render.NewRenderer(sanitize.NewFormatter(sanitize.ParseLocale(cfg.Locale)))
	opts := []orchestrator.Option{
		orchestrator.WithScanner(overpass.NewClient(cfg.OverpassURL, nil, logger)),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithLogger(logger),
		orchestrator.WithRenderer(renderer),
	}
	var history handlers.History
	if recorder.History != nil || recorder.Index != nil {
		opts = append(opts, orchestrator.WithRecorder(recorder))
		history = recorder
	}

	orch, err := orchestrator.New(client, cfg.Orchestrator(), opts...)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}
	sitesMgr := sites.NewManager(client, orch.Canvas(), orch.Events(),
		sites.WithLogger(logger),
		sites.WithNotify(orch.Notify),
		sites.WithRenderer(renderer),
		sites.WithLoader(orch),
	)

	h := handlers.NewHandlers(orch, sitesMgr, history, cfg.MapConfig(), logger)

	// Настройка роутера
	router := mux.NewRouter()
	h.Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)

	// Swagger UI
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	// Загрузка DEM может быть долгой, поэтому таймауты чтения и записи больше, чем у JSON API.
	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      handlers.CORS(router),
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "backend", cfg.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Warn("analysis sessions still running at shutdown", "error", err)
	}

	logger.Info("server exited")
}
