// Package config предоставляет загрузку конфигурации приложения из переменных
// окружения, файла .env и необязательного YAML файла.
//
// Приоритет: переменная окружения, затем YAML (QUARRY_CONFIG), затем значение по умолчанию.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/akozadaev/go_quarry_depth_finder/internal/mapview"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/orchestrator"
)

// Config содержит все параметры конфигурации приложения.
type Config struct {
	AppPort    string // Порт HTTP сервера
	BackendURL string // Адрес сервиса анализа глубины
	DEMSource  string // Источник DEM, например COP

	TileURL        string // Спутниковая подложка
	LabelsURL      string // Слой подписей
	GeocoderAPIKey string // Ключ виджета поиска
	OverpassURL    string

	MarkerEnabled         bool
	RequireReferencePoint bool
	VisualizationEnabled  bool

	ElevationSettleDelay time.Duration
	VisualizationDelay   time.Duration
	ReadinessTimeout     time.Duration
	HTTPTimeout          time.Duration

	Locale string // Локаль группировки разрядов

	HistoryDBType      string // sqlite, postgres или пусто
	HistoryDBURL       string
	ElasticsearchURL   string // пусто отключает индекс
	ElasticsearchIndex string

	LogLevel  string
	LogFormat string // text или json
}

// Load загружает .env (если есть), YAML из QUARRY_CONFIG (если задан)
// и переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file := map[string]string{}
	if path := os.Getenv("QUARRY_CONFIG"); path != "" {
		var err error
		if file, err = readYAML(path); err != nil {
			return nil, err
		}
	}
	return load(source{file: file})
}

type source struct {
	file map[string]string
}

// getEnv возвращает переменную окружения, затем значение из файла, затем defaultValue.
func (s source) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[strings.ToLower(key)]; ok && value != "" {
		return value
	}
	return defaultValue
}

func load(s source) (*Config, error) {
	cfg := &Config{
		AppPort:            s.getEnv("APP_PORT", "8080"),
		BackendURL:         s.getEnv("BACKEND_URL", "http://localhost:5000"),
		DEMSource:          s.getEnv("DEM_SOURCE", "COP"),
		TileURL:            s.getEnv("TILE_URL", "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}"),
		LabelsURL:          s.getEnv("LABELS_URL", "https://server.arcgisonline.com/ArcGIS/rest/services/Reference/World_Boundaries_and_Places/MapServer/tile/{z}/{y}/{x}"),
		GeocoderAPIKey:     s.getEnv("GEOCODER_API_KEY", ""),
		OverpassURL:        s.getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		Locale:             s.getEnv("LOCALE", "en-US"),
		HistoryDBType:      strings.ToLower(s.getEnv("HISTORY_DB_TYPE", "")),
		HistoryDBURL:       s.getEnv("HISTORY_DB_URL", "quarry_history.db"),
		ElasticsearchURL:   s.getEnv("ELASTICSEARCH_URL", ""),
		ElasticsearchIndex: s.getEnv("ELASTICSEARCH_INDEX", "quarry_analyses"),
		LogLevel:           s.getEnv("LOG_LEVEL", "info"),
		LogFormat:          s.getEnv("LOG_FORMAT", "text"),
	}

	var errs []error
	parseBool := func(key string, def bool) bool {
		raw := s.getEnv(key, strconv.FormatBool(def))
		v, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
			return def
		}
		return v
	}
	parseDuration := func(key string, def time.Duration) time.Duration {
		raw := s.getEnv(key, def.String())
		v, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", key, raw, err))
			return def
		}
		if v < 0 {
			errs = append(errs, fmt.Errorf("invalid %s %q: must not be negative", key, raw))
			return def
		}
		return v
	}

	cfg.MarkerEnabled = parseBool("MARKER_ENABLED", true)
	cfg.RequireReferencePoint = parseBool("REQUIRE_REFERENCE_POINT", false)
	cfg.VisualizationEnabled = parseBool("VISUALIZATION_ENABLED", true)
	cfg.ElevationSettleDelay = parseDuration("ELEVATION_SETTLE_DELAY", time.Second)
	cfg.VisualizationDelay = parseDuration("VISUALIZATION_DELAY", 1500*time.Millisecond)
	cfg.ReadinessTimeout = parseDuration("READINESS_TIMEOUT", 10*time.Second)
	cfg.HTTPTimeout = parseDuration("HTTP_TIMEOUT", 120*time.Second)

	switch cfg.HistoryDBType {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("invalid HISTORY_DB_TYPE %q: want sqlite, postgres or empty", cfg.HistoryDBType))
	}
	if err := cfg.Orchestrator().Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func readYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out, nil
}

// Orchestrator параметры сценария анализа.
func (c *Config) Orchestrator() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.DEMSource = c.DEMSource
	oc.MarkerEnabled = c.MarkerEnabled
	oc.RequireReferencePoint = c.RequireReferencePoint
	oc.VisualizationEnabled = c.VisualizationEnabled
	oc.ElevationSettleDelay = c.ElevationSettleDelay
	oc.VisualizationDelay = c.VisualizationDelay
	oc.ReadinessTimeout = c.ReadinessTimeout
	return oc
}

// MapConfig параметры карты для браузера.
func (c *Config) MapConfig() models.MapConfig {
	return models.MapConfig{
		TileURL:        c.TileURL,
		LabelsURL:      c.LabelsURL,
		GeocoderAPIKey: c.GeocoderAPIKey,
		Center:         mapview.DefaultCenter,
		Zoom:           mapview.DefaultZoom,
	}
}

// NewLogger создает логгер процесса по LOG_LEVEL и LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
