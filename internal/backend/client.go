// Package backend реализует HTTP клиент сервиса анализа глубины карьеров.
// Повторов нет: каждая операция это один запрос и один ответ.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/observability"
)

// DefaultRasterPath растр высот, который backend пишет после get_dem.
const DefaultRasterPath = "static/Figure/myplot.png"

// Client клиент backend-сервиса.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Collector
	logger     *slog.Logger
	now        func() time.Time
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задает HTTP клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics подключает метрики запросов.
func WithMetrics(m *observability.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient создает клиент для baseURL, например "http://localhost:5000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL адрес backend.
func (c *Client) BaseURL() string { return c.baseURL }

// GetDEM загружает DEM для полигона и возвращает диапазон высот.
func (c *Client) GetDEM(ctx context.Context, req models.AnalysisRequest) (*models.ElevationResponse, error) {
	var resp models.ElevationResponse
	if err := c.postJSON(ctx, "get_dem", "/api/get_dem", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		c.metrics.ObserveRequest("get_dem", "application_error")
		return nil, &apperr.ApplicationError{Op: "get_dem", Message: resp.Message}
	}
	c.metrics.ObserveRequest("get_dem", "ok")
	return &resp, nil
}

// AnalyzeDepth запускает анализ глубины по последнему DEM.
func (c *Client) AnalyzeDepth(ctx context.Context, req models.AnalysisRequest) (*models.DepthResponse, error) {
	var resp models.DepthResponse
	if err := c.postJSON(ctx, "analyze_depth", "/api/analyze_depth", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		c.metrics.ObserveRequest("analyze_depth", "application_error")
		return nil, &apperr.ApplicationError{Op: "analyze_depth", Message: resp.Message}
	}
	c.metrics.ObserveRequest("analyze_depth", "ok")
	return &resp, nil
}

// UploadDEM отправляет GeoTIFF в поле формы "file".
func (c *Client) UploadDEM(ctx context.Context, filename string, r io.Reader) (*models.UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload_dem", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp models.UploadResponse
	if err := c.do(httpReq, "upload_dem", &resp); err != nil {
		return nil, err
	}
	if resp.Status != models.StatusSuccess {
		c.metrics.ObserveRequest("upload_dem", "application_error")
		return nil, &apperr.ApplicationError{Op: "upload_dem", Message: resp.Message}
	}
	c.metrics.ObserveRequest("upload_dem", "ok")
	return &resp, nil
}

// SaveSite сохраняет участок. Идентификатор и дату назначает backend.
func (c *Client) SaveSite(ctx context.Context, name string, coords models.Polygon) error {
	var resp models.StatusResponse
	req := models.SaveSiteRequest{SiteName: name, Coords: coords}
	if err := c.postJSON(ctx, "save_site", "/api/save_site", req, &resp); err != nil {
		return err
	}
	if resp.Status != models.StatusSuccess {
		c.metrics.ObserveRequest("save_site", "application_error")
		return &apperr.ApplicationError{Op: "save_site", Message: resp.Message}
	}
	c.metrics.ObserveRequest("save_site", "ok")
	return nil
}

// ListSites возвращает сохраненные участки.
func (c *Client) ListSites(ctx context.Context) ([]models.Site, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sites", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var resp models.SitesResponse
	if err := c.do(httpReq, "sites", &resp); err != nil {
		return nil, err
	}
	c.metrics.ObserveRequest("sites", "ok")
	return resp.Sites, nil
}

// DeleteSite удаляет участок.
func (c *Client) DeleteSite(ctx context.Context, id string) error {
	u := c.baseURL + "/api/sites/" + url.PathEscape(id)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.do(httpReq, "delete_site", nil); err != nil {
		return err
	}
	c.metrics.ObserveRequest("delete_site", "ok")
	return nil
}

// ResolveURL делает путь ресурса абсолютным относительно backend.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// CacheBust добавляет к адресу параметр t с текущим временем в миллисекундах.
func (c *Client) CacheBust(u string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "t=" + strconv.FormatInt(c.now().UnixMilli(), 10)
}

// FetchRaster запрашивает статический растр в обход кэша.
// Возвращает адрес с защитой от кэша даже при ошибке: страница все равно
// может показать изображение, когда оно будет готово.
func (c *Client) FetchRaster(ctx context.Context, path string) (string, error) {
	src := c.CacheBust(c.ResolveURL(path))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return src, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Cache-Control", "no-cache")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest("raster", "network_error")
		return src, &apperr.NetworkError{Op: "raster", Err: err}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.metrics.ObserveRequest("raster", "http_error")
		return src, &apperr.NetworkError{Op: "raster", Status: res.StatusCode}
	}
	c.metrics.ObserveRequest("raster", "ok")
	return src, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, op, out)
}

func (c *Client) do(httpReq *http.Request, op string, out any) error {
	start := time.Now()
	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(op, "network_error")
		c.logger.Warn("backend request failed", "op", op, "error", err)
		return &apperr.NetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	c.logger.Debug("backend request", "op", op, "status", res.StatusCode, "duration", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.metrics.ObserveRequest(op, "http_error")
		c.logger.Warn("backend returned error status", "op", op, "status", res.StatusCode, "body", string(body))
		return &apperr.NetworkError{Op: op, Status: res.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		c.metrics.ObserveRequest(op, "decode_error")
		return &apperr.NetworkError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
