package models

import (
	"encoding/json"
	"testing"
)

func TestMeasureLenientDecode(t *testing.T) {
	cases := []struct {
		in    string
		want  float64
		valid bool
	}{
		{`12.5`, 12.5, true},
		{`"7.25"`, 7.25, true},
		{`null`, 0, false},
		{`"NaN"`, 0, false},
		{`"deep"`, 0, false},
		{`true`, 0, false},
		{`{"v":1}`, 0, false},
	}
	for _, tc := range cases {
		var m Measure
		if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		got, ok := m.Value()
		if ok != tc.valid || got != tc.want {
			t.Errorf("%s: got (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.valid)
		}
	}
}

func TestMeasureMissingField(t *testing.T) {
	var stats DepthStatistics
	if err := json.Unmarshal([]byte(`{"max_depth":30}`), &stats); err != nil {
		t.Fatal(err)
	}
	if _, ok := stats.MeanDepth.Value(); ok {
		t.Error("missing field must be absent")
	}
	out, err := json.Marshal(stats.MeanDepth)
	if err != nil || string(out) != "null" {
		t.Errorf("absent measure marshals as %s (%v)", out, err)
	}
}

func TestVertexDecodeForms(t *testing.T) {
	var p Polygon
	body := `[{"lat":1.5,"lng":2.5},[3,4],["5.25"," 6.75"]]`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Polygon{{1.5, 2.5}, {3, 4}, {5.25, 6.75}}
	if len(p) != len(want) {
		t.Fatalf("len = %d", len(p))
	}
	for i := range want {
		if p[i] != want[i] {
			t.Errorf("vertex %d = %+v, want %+v", i, p[i], want[i])
		}
	}

	var v Vertex
	if err := json.Unmarshal([]byte(`[1]`), &v); err == nil {
		t.Error("short pair must fail")
	}
	if err := json.Unmarshal([]byte(`{"lat":"north","lng":1}`), &v); err == nil {
		t.Error("non-numeric coordinate must fail")
	}
}

func TestPixelCountFallback(t *testing.T) {
	s := DepthStatistics{ExcavatedPixels: NewMeasure(0), QuarryPixels: NewMeasure(2856)}
	if v, _ := s.PixelCount().Value(); v != 2856 {
		t.Errorf("PixelCount = %v", v)
	}
	s.ExcavatedPixels = NewMeasure(120)
	if v, _ := s.PixelCount().Value(); v != 120 {
		t.Errorf("PixelCount = %v", v)
	}
}

func TestBoundingBoxHelpers(t *testing.T) {
	b := BoundingBox{MinLat: 10, MaxLat: 20, MinLng: 30, MaxLng: 40}
	if !b.Contains(Vertex{Lat: 10, Lng: 40}) {
		t.Error("edges are inside")
	}
	if b.Contains(Vertex{Lat: 21, Lng: 35}) {
		t.Error("point outside reported inside")
	}
	if c := b.Center(); c != (Vertex{Lat: 15, Lng: 35}) {
		t.Errorf("Center = %+v", c)
	}
}

func TestPolygonCloneIsIndependent(t *testing.T) {
	p := Polygon{{1, 1}, {2, 2}}
	q := p.Clone()
	q[0].Lat = 9
	if p[0].Lat != 1 {
		t.Error("clone shares storage")
	}
	if Polygon(nil).Clone() != nil {
		t.Error("nil clone must stay nil")
	}
}
