package mapview

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

var square = models.Polygon{{Lat: 10, Lng: 10}, {Lat: 10, Lng: 20}, {Lat: 20, Lng: 20}, {Lat: 20, Lng: 10}}

func TestSetPolygonReplacesShapes(t *testing.T) {
	c := NewCanvas()
	c.SetPolygon(square)
	c.SetMarker(models.Vertex{Lat: 15, Lng: 15}, "Reference")

	c.SetPolygon(models.Polygon{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}, {Lat: 2, Lng: 2}})
	p, ok := c.Polygon()
	if !ok || len(p) != 3 {
		t.Fatalf("polygon = %v", p)
	}
	if c.Marker() != nil {
		t.Error("redraw must clear the previous marker")
	}

	c.Clear()
	if _, ok := c.Polygon(); ok {
		t.Error("Clear left a polygon")
	}
}

func TestFitBounds(t *testing.T) {
	c := NewCanvas()
	if v := c.View(); v.Center != DefaultCenter || v.Zoom != DefaultZoom {
		t.Fatalf("initial view = %+v", v)
	}

	c.FitBounds(models.BoundingBox{MinLat: 10, MaxLat: 20, MinLng: 10, MaxLng: 20})
	v := c.View()
	if v.Center != (models.Vertex{Lat: 15, Lng: 15}) {
		t.Errorf("center = %+v", v.Center)
	}
	if v.Zoom != 5 {
		t.Errorf("zoom = %d", v.Zoom)
	}
	if v.Bounds == nil || v.Bounds.MaxLat != 20 {
		t.Errorf("bounds = %+v", v.Bounds)
	}

	c.FitBounds(models.BoundingBox{MinLat: 1, MaxLat: 1, MinLng: 1, MaxLng: 1})
	if z := c.View().Zoom; z != maxZoom {
		t.Errorf("point bounds zoom = %d", z)
	}
}

func TestFeatureCollection(t *testing.T) {
	c := NewCanvas()
	c.SetPolygon(square)
	c.SetMarker(models.Vertex{Lat: 12, Lng: 14}, "Reference")
	c.SetQuarries([]models.QuarryMarker{{OSMType: "way", OSMID: 42, Name: "Granite Co", Lat: 11, Lng: 11}})

	fc := c.FeatureCollection()
	if len(fc.Features) != 3 {
		t.Fatalf("features = %d", len(fc.Features))
	}
	data, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"Polygon"`, `"boundary"`, `"Granite Co"`, `[14,12]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("geojson missing %s: %s", want, data)
		}
	}
}
