// Package models содержит доменные типы анализа карьеров и структуры обмена
// с backend-сервисом расчета глубины.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// StatusSuccess значение поля status в успешном ответе backend.
const StatusSuccess = "success"

// Vertex представляет вершину полигона в градусах
type Vertex struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UnmarshalJSON принимает как объект {"lat":..,"lng":..}, так и пару [lat, lng].
// Элементы пары могут быть строками: сохраненные участки хранят координаты в виде "12.3456".
func (v *Vertex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []json.RawMessage
		if err := json.Unmarshal(data, &pair); err != nil {
			return fmt.Errorf("failed to decode vertex pair: %w", err)
		}
		if len(pair) < 2 {
			return fmt.Errorf("vertex pair must have 2 elements, got %d", len(pair))
		}
		lat, err := parseCoordinate(pair[0])
		if err != nil {
			return err
		}
		lng, err := parseCoordinate(pair[1])
		if err != nil {
			return err
		}
		*v = Vertex{Lat: lat, Lng: lng}
		return nil
	}

	var obj struct {
		Lat json.RawMessage `json:"lat"`
		Lng json.RawMessage `json:"lng"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to decode vertex: %w", err)
	}
	lat, err := parseCoordinate(obj.Lat)
	if err != nil {
		return err
	}
	lng, err := parseCoordinate(obj.Lng)
	if err != nil {
		return err
	}
	*v = Vertex{Lat: lat, Lng: lng}
	return nil
}

func parseCoordinate(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing coordinate")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("invalid coordinate %s", string(raw))
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q: %w", s, err)
	}
	return f, nil
}

// Polygon упорядоченное кольцо вершин. Замыкающая вершина не хранится,
// порядок вставки сохраняется.
type Polygon []Vertex

// Clone возвращает независимую копию полигона.
func (p Polygon) Clone() Polygon {
	if p == nil {
		return nil
	}
	out := make(Polygon, len(p))
	copy(out, p)
	return out
}

// BoundingBox оболочка полигона, выровненная по осям.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains сообщает, лежит ли точка внутри оболочки (границы включительно).
func (b BoundingBox) Contains(v Vertex) bool {
	return v.Lat >= b.MinLat && v.Lat <= b.MaxLat && v.Lng >= b.MinLng && v.Lng <= b.MaxLng
}

// Center возвращает центр оболочки.
func (b BoundingBox) Center() Vertex {
	return Vertex{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

// AnalysisRequest тело запросов /api/get_dem и /api/analyze_depth
type AnalysisRequest struct {
	DEMSource      string      `json:"dem"`
	Coords         Polygon     `json:"coords"`
	BBox           BoundingBox `json:"bbox"`
	ReferencePoint *Vertex     `json:"reference_point,omitempty"`
}

// Measure числовое поле ответа backend. Отсутствующее значение, null,
// нечисловая строка и нечисловой тип декодируются как пустое значение.
type Measure struct {
	value float64
	valid bool
}

// NewMeasure создает заполненное значение.
func NewMeasure(v float64) Measure {
	return Measure{value: v, valid: true}
}

// Value возвращает значение и признак его пригодности.
// NaN и бесконечности считаются непригодными.
func (m Measure) Value() (float64, bool) {
	if !m.valid || math.IsNaN(m.value) || math.IsInf(m.value, 0) {
		return 0, false
	}
	return m.value, true
}

// IsZero сообщает, что значение отсутствует или равно нулю.
func (m Measure) IsZero() bool {
	v, ok := m.Value()
	return !ok || v == 0
}

// UnmarshalJSON никогда не возвращает ошибку: непригодные данные дают пустое значение.
func (m *Measure) UnmarshalJSON(data []byte) error {
	*m = Measure{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		*m = NewMeasure(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*m = NewMeasure(f)
		}
	}
	return nil
}

// MarshalJSON пишет null для непригодного значения.
func (m Measure) MarshalJSON() ([]byte, error) {
	v, ok := m.Value()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// DepthStatistics статистика глубины карьера. Любое поле может отсутствовать.
type DepthStatistics struct {
	MaxDepth                 Measure `json:"max_depth"`
	MeanDepth                Measure `json:"mean_depth"`
	MedianDepth              Measure `json:"median_depth"`
	MinDepth                 Measure `json:"min_depth"`
	OriginalSurfaceElevation Measure `json:"original_surface_elevation"`
	QuarryBottomElevation    Measure `json:"quarry_bottom_elevation"`
	MinElevation             Measure `json:"min_elevation"`
	ExcavatedPixels          Measure `json:"excavated_pixels"`
	QuarryPixels             Measure `json:"quarry_pixels"`
	TotalAreaM2              Measure `json:"total_area_m2"`
	VolumeM3                 Measure `json:"volume_m3"`
	SurfaceOriginalMethod    Measure `json:"surface_original_method"`
	SurfaceGradientDescent   Measure `json:"surface_gradient_descent"`
}

// PixelCount возвращает excavated_pixels, а при его отсутствии или нуле quarry_pixels.
func (s DepthStatistics) PixelCount() Measure {
	if !s.ExcavatedPixels.IsZero() {
		return s.ExcavatedPixels
	}
	return s.QuarryPixels
}

// DepthRange разница между максимальной и минимальной глубиной.
// Отсутствующие значения принимаются за ноль.
func (s DepthStatistics) DepthRange() Measure {
	maxDepth, _ := s.MaxDepth.Value()
	minDepth, _ := s.MinDepth.Value()
	return NewMeasure(maxDepth - minDepth)
}

// FallbackStatistics фиксированный набор, который показывается вместо пустой
// панели при ошибке анализа глубины.
func FallbackStatistics() DepthStatistics {
	return DepthStatistics{
		MaxDepth:                 NewMeasure(25.5),
		MeanDepth:                NewMeasure(12.3),
		MedianDepth:              NewMeasure(10.8),
		OriginalSurfaceElevation: NewMeasure(70.7),
		QuarryBottomElevation:    NewMeasure(45.2),
		MinDepth:                 NewMeasure(0),
		QuarryPixels:             NewMeasure(2856),
	}
}

// ElevationResponse ответ /api/get_dem
type ElevationResponse struct {
	Status       string  `json:"status"`
	Message      string  `json:"message,omitempty"`
	MinElevation Measure `json:"min_elevation"`
	MaxElevation Measure `json:"max_elevation"`
	Depth        Measure `json:"depth"`
	VolumeM3     Measure `json:"volume_m3"`
	AreaM2       Measure `json:"area_m2"`
	MeanDepth    Measure `json:"mean_depth"`
}

// DepthResponse ответ /api/analyze_depth
type DepthResponse struct {
	Status        string          `json:"status"`
	DepthStats    DepthStatistics `json:"depth_stats"`
	Visualization string          `json:"visualization,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// UploadResponse ответ /api/upload_dem
type UploadResponse struct {
	Status     string          `json:"status"`
	DepthStats DepthStatistics `json:"depth_stats"`
	HeatmapURL string          `json:"heatmap_url,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// StatusResponse ответ операций без полезной нагрузки (например, /api/save_site)
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SaveSiteRequest тело /api/save_site
type SaveSiteRequest struct {
	SiteName string  `json:"sitename"`
	Coords   Polygon `json:"coords"`
}

// Site сохраненный участок. Идентификатор и дату назначает backend.
type Site struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Coords Polygon `json:"coords"`
	Date   string  `json:"date"`
}

// SitesResponse ответ GET /api/sites
type SitesResponse struct {
	Sites []Site `json:"sites"`
}

// GeoPoint представляет географические координаты в формате geo_point Elasticsearch
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// QuarryMarker карьер, найденный в OpenStreetMap
type QuarryMarker struct {
	OSMType string  `json:"osm_type"`
	OSMID   int64   `json:"osm_id"`
	Name    string  `json:"name"`
	Landuse string  `json:"landuse"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// AnalysisRecord запись истории анализа для хранилища и поискового индекса
type AnalysisRecord struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Source     string          `json:"source"`
	Polygon    Polygon         `json:"polygon,omitempty"`
	BBox       *BoundingBox    `json:"bbox,omitempty"`
	Centroid   *Vertex         `json:"centroid,omitempty"`
	AreaM2     float64         `json:"area_m2"`
	Stats      DepthStatistics `json:"stats"`
	Fallback   bool            `json:"fallback"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// MapConfig параметры карты для браузерной части
type MapConfig struct {
	TileURL        string `json:"tile_url"`
	LabelsURL      string `json:"labels_url"`
	GeocoderAPIKey string `json:"geocoder_api_key"`
	Center         Vertex `json:"center"`
	Zoom           int    `json:"zoom"`
}
