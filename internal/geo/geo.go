// Package geo вычисляет оболочку полигона и его геодезические характеристики,
// а также читает и пишет полигоны в формате GeoJSON.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// MinPolygonVertices минимальное число вершин для анализа.
const MinPolygonVertices = 3

// ErrInvalidPolygon полигон без вершин: минимум и максимум не определены.
var ErrInvalidPolygon = errors.New("invalid polygon: no vertices")

// ComputeBoundingBox возвращает минимумы и максимумы широты и долготы по всем вершинам.
// Результат не зависит от порядка вершин.
func ComputeBoundingBox(p models.Polygon) (models.BoundingBox, error) {
	if len(p) == 0 {
		return models.BoundingBox{}, ErrInvalidPolygon
	}

	bbox := models.BoundingBox{
		MinLat: p[0].Lat,
		MaxLat: p[0].Lat,
		MinLng: p[0].Lng,
		MaxLng: p[0].Lng,
	}
	for _, v := range p[1:] {
		bbox.MinLat = math.Min(bbox.MinLat, v.Lat)
		bbox.MaxLat = math.Max(bbox.MaxLat, v.Lat)
		bbox.MinLng = math.Min(bbox.MinLng, v.Lng)
		bbox.MaxLng = math.Max(bbox.MaxLng, v.Lng)
	}
	return bbox, nil
}

// ValidatePolygon проверяет, что полигон пригоден для анализа.
func ValidatePolygon(p models.Polygon) error {
	if len(p) < MinPolygonVertices {
		return apperr.Validation("coords",
			fmt.Sprintf("Polygon needs at least %d points, got %d", MinPolygonVertices, len(p)))
	}
	for i, v := range p {
		if math.IsNaN(v.Lat) || math.IsNaN(v.Lng) || v.Lat < -90 || v.Lat > 90 || v.Lng < -180 || v.Lng > 180 {
			return apperr.Validation("coords", fmt.Sprintf("Polygon point %d is out of range", i+1))
		}
	}
	return nil
}

// Ring переводит полигон в замкнутое кольцо orb (X долгота, Y широта).
func Ring(p models.Polygon) orb.Ring {
	ring := make(orb.Ring, 0, len(p)+1)
	for _, v := range p {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// Area геодезическая площадь полигона в квадратных метрах.
func Area(p models.Polygon) float64 {
	if len(p) < MinPolygonVertices {
		return 0
	}
	return math.Abs(geo.Area(orb.Polygon{Ring(p)}))
}

// Perimeter геодезическая длина границы в метрах.
func Perimeter(p models.Polygon) float64 {
	if len(p) < 2 {
		return 0
	}
	return geo.Length(orb.LineString(Ring(p)))
}

// Centroid центр масс полигона. Для вырожденного полигона берется центр оболочки.
func Centroid(p models.Polygon) (models.Vertex, error) {
	bbox, err := ComputeBoundingBox(p)
	if err != nil {
		return models.Vertex{}, err
	}
	if len(p) < MinPolygonVertices {
		return bbox.Center(), nil
	}
	c, area := planar.CentroidArea(orb.Polygon{Ring(p)})
	if area == 0 {
		return bbox.Center(), nil
	}
	return models.Vertex{Lat: c.Y(), Lng: c.X()}, nil
}

// ParseGeoJSON читает внешнее кольцо первого полигона из FeatureCollection,
// Feature или голой геометрии. Замыкающая вершина отбрасывается.
func ParseGeoJSON(data []byte) (models.Polygon, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode geojson: %w", err)
	}

	var geometries []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature collection: %w", err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode feature: %w", err)
		}
		geometries = append(geometries, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode geometry: %w", err)
		}
		geometries = append(geometries, g.Geometry())
	}

	for _, g := range geometries {
		var ring orb.Ring
		switch v := g.(type) {
		case orb.Polygon:
			if len(v) > 0 {
				ring = v[0]
			}
		case orb.MultiPolygon:
			if len(v) > 0 && len(v[0]) > 0 {
				ring = v[0][0]
			}
		}
		if len(ring) == 0 {
			continue
		}
		return fromRing(ring), nil
	}
	return nil, errors.New("geojson contains no polygon")
}

func fromRing(ring orb.Ring) models.Polygon {
	if len(ring) > 1 && ring.Closed() {
		ring = ring[:len(ring)-1]
	}
	p := make(models.Polygon, 0, len(ring))
	for _, pt := range ring {
		p = append(p, models.Vertex{Lat: pt.Y(), Lng: pt.X()})
	}
	return p
}

// PolygonFeature строит GeoJSON Feature для полигона.
func PolygonFeature(p models.Polygon, properties map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{Ring(p)})
	for k, v := range properties {
		f.Properties[k] = v
	}
	return f
}

// PointFeature строит GeoJSON Feature для точки.
func PointFeature(v models.Vertex, properties map[string]any) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{v.Lng, v.Lat})
	for k, val := range properties {
		f.Properties[k] = val
	}
	return f
}
