package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/akozadaev/go_quarry_depth_finder/internal/config"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/storage"
)

// indexer переносит историю анализов из базы (или JSON файла) в поисковый индекс.
func main() {
	file := flag.String("file", "", "JSON file with analysis records instead of the history database")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	if cfg.ElasticsearchURL == "" {
		logger.Error("ELASTICSEARCH_URL is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	records, err := loadRecords(ctx, cfg, *file)
	if err != nil {
		logger.Error("failed to load analysis records", "error", err)
		os.Exit(1)
	}

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
		logger.Error("failed to create index", "index", index.Name(), "error", err)
		os.Exit(1)
	}

	logger.Info("indexing analyses", "count", len(records), "index", index.Name())
	if err := index.BulkIndexAnalyses(ctx, records); err != nil {
		logger.Error("failed to index analyses", "error", err)
		os.Exit(1)
	}
	logger.Info("indexing completed")
}

func loadRecords(ctx context.Context, cfg *config.Config, file string) ([]*models.AnalysisRecord, error) {
	if file != "" {
		return loadRecordsFromFile(file)
	}
	if cfg.HistoryDBType == "" {
		return nil, fmt.Errorf("HISTORY_DB_TYPE is not set and no -file given")
	}
	hs, err := storage.NewHistoryStore(ctx, cfg.HistoryDBType, cfg.HistoryDBURL)
	if err != nil {
		return nil, err
	}
	defer hs.Close()
	return hs.All(ctx)
}

// loadRecordsFromFile загружает записи анализов из JSON файла
func loadRecordsFromFile(filename string) ([]*models.AnalysisRecord, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var records []*models.AnalysisRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return records, nil
}
