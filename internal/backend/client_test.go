package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/observability"
)

func testRequest() models.AnalysisRequest {
	return models.AnalysisRequest{
		DEMSource: "COP",
		Coords:    models.Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 1}, {Lat: 2, Lng: 2}},
		BBox:      models.BoundingBox{MinLat: 1, MaxLat: 2, MinLng: 1, MaxLng: 2},
	}
}

func TestGetDEMSendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/get_dem" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if string(body["dem"]) != `"COP"` {
			t.Errorf("dem = %s", body["dem"])
		}
		if !strings.Contains(string(body["bbox"]), `"minLat":1`) {
			t.Errorf("bbox = %s", body["bbox"])
		}
		if _, ok := body["reference_point"]; ok {
			t.Error("reference_point must be omitted when unset")
		}
		_, _ = w.Write([]byte(`{"status":"success","min_elevation":50,"max_elevation":80}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.GetDEM(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetDEM: %v", err)
	}
	if v, _ := resp.MaxElevation.Value(); v != 80 {
		t.Errorf("max elevation = %v", v)
	}
}

func TestApplicationErrorOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"No DEM coverage"}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(srv.URL, WithMetrics(m))
	_, err = c.AnalyzeDepth(context.Background(), testRequest())

	var appErr *apperr.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %T %v", err, err)
	}
	if appErr.Message != "No DEM coverage" {
		t.Errorf("message = %q", appErr.Message)
	}
	if got := testutil.ToFloat64(m.BackendRequests.WithLabelValues("analyze_depth", "application_error")); got != 1 {
		t.Errorf("application_error count = %v", got)
	}
}

func TestNetworkErrorOnHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.GetDEM(context.Background(), testRequest())

	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if netErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", netErr.Status)
	}
	if !strings.Contains(err.Error(), "HTTP error! status: 500") {
		t.Errorf("error text = %q", err.Error())
	}
}

func TestNetworkErrorOnTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ListSites(context.Background())
	var netErr *apperr.NetworkError
	if !errors.As(err, &netErr) || netErr.Status != 0 {
		t.Fatalf("expected transport NetworkError, got %v", err)
	}
}

func TestUploadDEMMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload_dem" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "pit.tif" || string(data) != "TIFFDATA" {
			t.Errorf("got %s %q", hdr.Filename, data)
		}
		_, _ = w.Write([]byte(`{"status":"success","filename":"pit.tif","depth_stats":{"max_depth":12.5}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).UploadDEM(context.Background(), "pit.tif", strings.NewReader("TIFFDATA"))
	if err != nil {
		t.Fatalf("UploadDEM: %v", err)
	}
	if resp.Filename != "pit.tif" {
		t.Errorf("filename = %q", resp.Filename)
	}
}

func TestSitesRoundTrip(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/save_site", func(w http.ResponseWriter, r *http.Request) {
		var req models.SaveSiteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.SiteName != "North Pit" || len(req.Coords) != 3 {
			t.Errorf("save request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	mux.HandleFunc("/api/sites", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sites":[{"id":"s1","name":"North Pit","coords":[[1,1],[2,1],[2,2]],"date":"2024-03-01"}]}`))
	})
	mux.HandleFunc("/api/sites/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		deleted = strings.TrimPrefix(r.URL.Path, "/api/sites/")
		_, _ = w.Write([]byte(`{"status":"success"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.SaveSite(context.Background(), "North Pit", testRequest().Coords); err != nil {
		t.Fatalf("SaveSite: %v", err)
	}
	sites, err := c.ListSites(context.Background())
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(sites) != 1 || sites[0].Coords[2].Lng != 2 {
		t.Fatalf("sites = %+v", sites)
	}
	if err := c.DeleteSite(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSite: %v", err)
	}
	if deleted != "s1" {
		t.Errorf("deleted = %q", deleted)
	}
}

func TestFetchRasterBustsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+DefaultRasterPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("t") != "1700000000000" {
			t.Errorf("t = %q", r.URL.Query().Get("t"))
		}
		if r.Header.Get("Cache-Control") != "no-cache" {
			t.Error("missing no-cache header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	src, err := c.FetchRaster(context.Background(), DefaultRasterPath)
	if err != nil {
		t.Fatalf("FetchRaster: %v", err)
	}
	if !strings.HasSuffix(src, "myplot.png?t=1700000000000") {
		t.Errorf("src = %q", src)
	}
	if got := c.CacheBust("/a.png?x=1"); got != "/a.png?x=1&t=1700000000000" {
		t.Errorf("CacheBust = %q", got)
	}
}
