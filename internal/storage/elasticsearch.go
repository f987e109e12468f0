// Package storage содержит хранилища истории анализов: SQL база
// (PostgreSQL или SQLite) и поисковый индекс Elasticsearch/OpenSearch.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// AnalysisMapping маппинг индекса анализов. Центроид полигона хранится
// как geo_point для поиска по видимой области карты.
const AnalysisMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "session_id":  {"type": "keyword"},
      "source":      {"type": "keyword"},
      "outcome":     {"type": "keyword"},
      "fallback":    {"type": "boolean"},
      "location":    {"type": "geo_point"},
      "area_m2":     {"type": "double"},
      "max_depth":   {"type": "double"},
      "volume_m3":   {"type": "double"},
      "error":       {"type": "text"},
      "started_at":  {"type": "date"},
      "finished_at": {"type": "date"},
      "polygon":     {"type": "object", "enabled": false},
      "bbox":        {"type": "object", "enabled": false},
      "stats":       {"type": "object", "enabled": false}
    }
  }
}`

// analysisDocument документ индекса: запись истории и поля для поиска.
type analysisDocument struct {
	models.AnalysisRecord
	Location *models.GeoPoint `json:"location,omitempty"`
	MaxDepth *float64         `json:"max_depth,omitempty"`
	VolumeM3 *float64         `json:"volume_m3,omitempty"`
}

func newAnalysisDocument(rec models.AnalysisRecord) analysisDocument {
	doc := analysisDocument{AnalysisRecord: rec}
	if rec.Centroid != nil {
		doc.Location = &models.GeoPoint{Lat: rec.Centroid.Lat, Lon: rec.Centroid.Lng}
	}
	if v, ok := rec.Stats.MaxDepth.Value(); ok {
		doc.MaxDepth = &v
	}
	if v, ok := rec.Stats.VolumeM3.Value(); ok {
		doc.VolumeM3 = &v
	}
	return doc
}

// AnalysisIndex индекс истории анализов в Elasticsearch/OpenSearch.
// Массовая индексация и поиск идут прямыми HTTP запросами для совместимости с OpenSearch.
type AnalysisIndex struct {
	client     *elasticsearch.Client
	index      string
	httpClient *http.Client
	baseURL    string
}

// NewAnalysisIndex создает индекс с базовым URL кластера.
func NewAnalysisIndex(client *elasticsearch.Client, index, baseURL string) *AnalysisIndex {
	return &AnalysisIndex{
		client:     client,
		index:      index,
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// NewAnalysisIndexFromURL создает клиент Elasticsearch и индекс для baseURL.
func NewAnalysisIndexFromURL(baseURL, index string) (*AnalysisIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{baseURL}})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return NewAnalysisIndex(client, index, baseURL), nil
}

// Name имя индекса.
func (ai *AnalysisIndex) Name() string { return ai.index }

// CreateIndex создает индекс с AnalysisMapping. Существующий индекс не трогает.
func (ai *AnalysisIndex) CreateIndex(ctx context.Context) error {
	res, err := ai.client.Indices.Exists([]string{ai.index}, ai.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = ai.client.Indices.Create(
		ai.index,
		ai.client.Indices.Create.WithBody(strings.NewReader(AnalysisMapping)),
		ai.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("error creating index: %s", string(body))
	}
	return nil
}

// Record индексирует запись, реализует orchestrator.Recorder.
func (ai *AnalysisIndex) Record(ctx context.Context, rec models.AnalysisRecord) error {
	return ai.IndexAnalysis(ctx, rec)
}

// IndexAnalysis индексирует одну запись. Запись с тем же ID перезаписывается.
func (ai *AnalysisIndex) IndexAnalysis(ctx context.Context, rec models.AnalysisRecord) error {
	body, err := json.Marshal(newAnalysisDocument(rec))
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      ai.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ai.client)
	if err != nil {
		return fmt.Errorf("failed to index analysis: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("error indexing analysis: %s", string(body))
	}
	return nil
}

// BulkIndexAnalyses индексирует записи одним запросом Bulk API.
func (ai *AnalysisIndex) BulkIndexAnalyses(ctx context.Context, records []*models.AnalysisRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		meta := map[string]any{
			"index": map[string]any{
				"_index": ai.index,
				"_id":    rec.ID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(newAnalysisDocument(*rec)); err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
	}

	url := fmt.Sprintf("%s/_bulk?refresh=true", ai.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	res, err := ai.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("error bulk indexing: status %d, body: %s", res.StatusCode, string(body))
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err == nil && result.Errors {
		return fmt.Errorf("bulk indexing reported item errors")
	}
	return nil
}

// SearchWithin ищет анализы, центроид которых лежит в оболочке. Новые первыми.
func (ai *AnalysisIndex) SearchWithin(ctx context.Context, bbox models.BoundingBox, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildWithinQuery(bbox)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	url := fmt.Sprintf("%s/%s/_search?size=%d", ai.baseURL, ai.index, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := ai.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("error searching: status %d, body: %s", res.StatusCode, string(body))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source models.AnalysisRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	records := make([]*models.AnalysisRecord, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		rec := hit.Source
		records = append(records, &rec)
	}
	return records, nil
}

func buildWithinQuery(b models.BoundingBox) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{
						"geo_bounding_box": map[string]any{
							"location": map[string]any{
								"top_left":     map[string]float64{"lat": b.MaxLat, "lon": b.MinLng},
								"bottom_right": map[string]float64{"lat": b.MinLat, "lon": b.MaxLng},
							},
						},
					},
				},
			},
		},
		"sort": []map[string]any{
			{"finished_at": map[string]any{"order": "desc"}},
		},
	}
}
