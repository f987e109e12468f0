// Package mapview хранит состояние карты сессии: нарисованный полигон,
// опорный маркер, найденные карьеры и текущий вид.
package mapview

import (
	"math"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// Начальный вид карты.
var (
	DefaultCenter = models.Vertex{Lat: 20.5937, Lng: 78.9629}
	DefaultZoom   = 5
)

const (
	minZoom = 1
	maxZoom = 18
)

// View видимая область карты.
type View struct {
	Center models.Vertex       `json:"center"`
	Zoom   int                 `json:"zoom"`
	Bounds *models.BoundingBox `json:"bounds,omitempty"`
}

// Marker опорная точка с подписью.
type Marker struct {
	Point models.Vertex `json:"point"`
	Label string        `json:"label"`
}

// Canvas слой нарисованных объектов. Одновременно хранится не более одного
// полигона и одного маркера; слой карьеров независим от них.
type Canvas struct {
	mu      sync.RWMutex
	polygon models.Polygon
	marker  *Marker
	quarry  []models.QuarryMarker
	view    View
}

// NewCanvas создает пустую карту с начальным видом.
func NewCanvas() *Canvas {
	return &Canvas{view: View{Center: DefaultCenter, Zoom: DefaultZoom}}
}

// Clear удаляет полигон и маркер.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polygon = nil
	c.marker = nil
}

// SetPolygon заменяет все нарисованные объекты новым полигоном.
func (c *Canvas) SetPolygon(p models.Polygon) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polygon = p.Clone()
	c.marker = nil
}

// SetMarker ставит опорный маркер, заменяя предыдущий.
func (c *Canvas) SetMarker(v models.Vertex, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marker = &Marker{Point: v, Label: label}
}

// SetQuarries заменяет слой найденных карьеров.
func (c *Canvas) SetQuarries(markers []models.QuarryMarker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quarry = append([]models.QuarryMarker(nil), markers...)
}

// Polygon возвращает копию активного полигона.
func (c *Canvas) Polygon() (models.Polygon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.polygon) == 0 {
		return nil, false
	}
	return c.polygon.Clone(), true
}

// Marker возвращает опорный маркер или nil.
func (c *Canvas) Marker() *Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.marker == nil {
		return nil
	}
	m := *c.marker
	return &m
}

// Quarries возвращает найденные карьеры.
func (c *Canvas) Quarries() []models.QuarryMarker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.QuarryMarker(nil), c.quarry...)
}

// FitBounds подбирает вид под оболочку.
func (c *Canvas) FitBounds(b models.BoundingBox) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bounds := b
	c.view = View{Center: b.Center(), Zoom: zoomFor(b), Bounds: &bounds}
}

// FlyTo переносит центр карты.
func (c *Canvas) FlyTo(v models.Vertex, zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = View{Center: v, Zoom: clampZoom(zoom)}
}

// View текущий вид карты.
func (c *Canvas) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.view
	if v.Bounds != nil {
		b := *v.Bounds
		v.Bounds = &b
	}
	return v
}

// FeatureCollection экспортирует слои карты в GeoJSON.
func (c *Canvas) FeatureCollection() *geojson.FeatureCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	if len(c.polygon) > 0 {
		fc.Append(geo.PolygonFeature(c.polygon, map[string]any{
			"kind":      "boundary",
			"area_m2":   geo.Area(c.polygon),
			"perimeter": geo.Perimeter(c.polygon),
		}))
	}
	if c.marker != nil {
		fc.Append(geo.PointFeature(c.marker.Point, map[string]any{
			"kind":  "reference",
			"label": c.marker.Label,
		}))
	}
	for _, q := range c.quarry {
		fc.Append(geo.PointFeature(models.Vertex{Lat: q.Lat, Lng: q.Lng}, map[string]any{
			"kind":     "quarry",
			"name":     q.Name,
			"osm_type": q.OSMType,
			"osm_id":   q.OSMID,
		}))
	}
	return fc
}

// zoomFor приближенный уровень масштаба веб-меркатора для оболочки.
func zoomFor(b models.BoundingBox) int {
	span := math.Max(b.MaxLat-b.MinLat, b.MaxLng-b.MinLng)
	if span <= 0 {
		return maxZoom
	}
	return clampZoom(int(math.Floor(math.Log2(360 / span))))
}

func clampZoom(z int) int {
	if z < minZoom {
		return minZoom
	}
	if z > maxZoom {
		return maxZoom
	}
	return z
}
