package overpass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

var view = models.BoundingBox{MinLat: 12.5, MaxLat: 13, MinLng: 77.25, MaxLng: 78}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(view)
	for _, want := range []string{
		"[out:json][timeout:25];",
		`node["landuse"="quarry"](12.5,77.25,13,78);`,
		`way["landuse"="quarry"](12.5,77.25,13,78);`,
		`relation["landuse"="quarry"](12.5,77.25,13,78);`,
		"out center;",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestFindQuarries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if !strings.Contains(r.PostForm.Get("data"), "out center;") {
			t.Errorf("data = %q", r.PostForm.Get("data"))
		}
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":12.6,"lon":77.3,"tags":{"landuse":"quarry","operator":"Granite Co","name":"Pit 1"}},
			{"type":"way","id":2,"center":{"lat":12.7,"lon":77.4},"tags":{"landuse":"quarry","name":"Pit 2"}},
			{"type":"relation","id":3,"center":{"lat":12.8,"lon":77.5},"tags":{"landuse":"quarry"}},
			{"type":"way","id":4,"tags":{"landuse":"quarry"}}
		]}`))
	}))
	defer srv.Close()

	markers, err := NewClient(srv.URL, srv.Client(), nil).FindQuarries(context.Background(), view)
	if err != nil {
		t.Fatalf("FindQuarries: %v", err)
	}
	if len(markers) != 3 {
		t.Fatalf("markers = %+v", markers)
	}
	names := []string{markers[0].Name, markers[1].Name, markers[2].Name}
	if names[0] != "Granite Co" || names[1] != "Pit 2" || names[2] != UnnamedQuarry {
		t.Errorf("names = %v", names)
	}
	if markers[1].Lat != 12.7 || markers[1].OSMType != "way" {
		t.Errorf("way marker = %+v", markers[1])
	}
}

func TestFindQuarriesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).FindQuarries(context.Background(), view)
	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) || netErr.Status != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
}
