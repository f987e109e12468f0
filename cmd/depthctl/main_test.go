package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akozadaev/go_quarry_depth_finder/internal/config"
)

func newTestConfig(t *testing.T, handler http.Handler) *config.Config {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &config.Config{BackendURL: srv.URL, Locale: "en-US", MarkerEnabled: true}
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("10, 20, 11, 21")
	if err != nil {
		t.Fatalf("parseBBox: %v", err)
	}
	if b.MinLat != 10 || b.MinLng != 20 || b.MaxLat != 11 || b.MaxLng != 21 {
		t.Errorf("bbox = %+v", b)
	}
	for _, bad := range []string{"", "1,2,3", "11,20,10,21", "a,b,c,d"} {
		if _, err := parseBBox(bad); err == nil {
			t.Errorf("parseBBox(%q) must fail", bad)
		}
	}
}

func TestParseVertex(t *testing.T) {
	v, err := parseVertex("20.5937,78.9629")
	if err != nil || v.Lat != 20.5937 || v.Lng != 78.9629 {
		t.Errorf("vertex = %+v err = %v", v, err)
	}
}

func TestSitesList(t *testing.T) {
	cfg := newTestConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sites" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"sites":[{"id":"7","name":"North","date":"2024-03-01","coords":[[1,1],[1,2],[2,2]]}]}`))
	}))

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(context.Background(), cfg, logger, "sites", []string{"list"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "7\tNorth\t2024-03-01\t3 points") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUploadPrintsReport(t *testing.T) {
	cfg := newTestConfig(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload_dem" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","filename":"pit.tif","depth_stats":{"max_depth":12.5}}`))
	}))
	path := filepath.Join(t.TempDir(), "pit.tif")
	if err := os.WriteFile(path, []byte("II*\x00"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := run(context.Background(), cfg, logger, "upload", []string{path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "12.5") || !strings.Contains(out.String(), "Analysis Complete!") {
		t.Errorf("output = %q", out.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	cfg := &config.Config{Locale: "en-US"}
	if err := run(context.Background(), cfg, slog.Default(), "bogus", nil, io.Discard); err == nil {
		t.Fatal("expected error")
	}
}
