// Package overpass ищет карьеры OpenStreetMap через Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// DefaultURL публичный интерпретатор Overpass.
const DefaultURL = "https://overpass-api.de/api/interpreter"

// UnnamedQuarry подпись карьера без operator и name.
const UnnamedQuarry = "Unnamed Quarry"

// Client клиент Overpass API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient создает клиент. Пустой endpoint означает DefaultURL.
func NewClient(endpoint string, httpClient *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoint: endpoint, httpClient: httpClient, logger: logger}
}

// BuildQuery запрос карьеров (landuse=quarry) в оболочке.
func BuildQuery(b models.BoundingBox) string {
	area := fmt.Sprintf("(%s,%s,%s,%s)", coord(b.MinLat), coord(b.MinLng), coord(b.MaxLat), coord(b.MaxLng))
	var q strings.Builder
	q.WriteString("[out:json][timeout:25];\n(\n")
	for _, kind := range []string{"node", "way", "relation"} {
		q.WriteString("  " + kind + `["landuse"="quarry"]` + area + ";\n")
	}
	q.WriteString(");\nout center;")
	return q.String()
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

type response struct {
	Elements []element `json:"elements"`
}

// FindQuarries возвращает карьеры в оболочке. Элементы без координат пропускаются.
func (c *Client) FindQuarries(ctx context.Context, b models.BoundingBox) ([]models.QuarryMarker, error) {
	form := url.Values{"data": {BuildQuery(b)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.NetworkError{Op: "overpass", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &apperr.NetworkError{Op: "overpass", Status: res.StatusCode}
	}

	var parsed response
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &apperr.NetworkError{Op: "overpass", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	markers := make([]models.QuarryMarker, 0, len(parsed.Elements))
	for _, el := range parsed.Elements {
		var lat, lng float64
		switch {
		case el.Lat != nil && el.Lon != nil:
			lat, lng = *el.Lat, *el.Lon
		case el.Center != nil:
			lat, lng = el.Center.Lat, el.Center.Lon
		default:
			continue
		}
		markers = append(markers, models.QuarryMarker{
			OSMType: el.Type,
			OSMID:   el.ID,
			Name:    displayName(el.Tags),
			Landuse: el.Tags["landuse"],
			Lat:     lat,
			Lng:     lng,
		})
	}
	c.logger.Debug("overpass scan", "elements", len(parsed.Elements), "markers", len(markers))
	return markers, nil
}

func displayName(tags map[string]string) string {
	if v := strings.TrimSpace(tags["operator"]); v != "" {
		return v
	}
	if v := strings.TrimSpace(tags["name"]); v != "" {
		return v
	}
	return UnnamedQuarry
}
