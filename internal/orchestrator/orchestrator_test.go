package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []models.AnalysisRequest

	getDEM  func(req models.AnalysisRequest) (*models.ElevationResponse, error)
	analyze func(req models.AnalysisRequest) (*models.DepthResponse, error)
	upload  func(name string, data []byte) (*models.UploadResponse, error)
	raster  func(path string) (string, error)

	uploads atomic.Int32
	rasters atomic.Int32
}

func (f *fakeBackend) GetDEM(_ context.Context, req models.AnalysisRequest) (*models.ElevationResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.getDEM == nil {
		return &models.ElevationResponse{Status: models.StatusSuccess, MinElevation: models.NewMeasure(50), MaxElevation: models.NewMeasure(80)}, nil
	}
	return f.getDEM(req)
}

func (f *fakeBackend) AnalyzeDepth(_ context.Context, req models.AnalysisRequest) (*models.DepthResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.analyze == nil {
		return &models.DepthResponse{Status: models.StatusSuccess, DepthStats: models.DepthStatistics{MaxDepth: models.NewMeasure(31.2)}}, nil
	}
	return f.analyze(req)
}

func (f *fakeBackend) UploadDEM(_ context.Context, name string, r io.Reader) (*models.UploadResponse, error) {
	f.uploads.Add(1)
	data, _ := io.ReadAll(r)
	if f.upload == nil {
		return &models.UploadResponse{Status: models.StatusSuccess, Filename: name}, nil
	}
	return f.upload(name, data)
}

func (f *fakeBackend) FetchRaster(_ context.Context, path string) (string, error) {
	f.rasters.Add(1)
	if f.raster == nil {
		return "http://backend/" + path + "?t=1", nil
	}
	return f.raster(path)
}

func (f *fakeBackend) recorded() []models.AnalysisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AnalysisRequest(nil), f.requests...)
}

type memRecorder struct {
	mu      sync.Mutex
	records []models.AnalysisRecord
}

func (m *memRecorder) Record(_ context.Context, rec models.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReadinessTimeout = 0
	return cfg
}

func newTestOrchestrator(t *testing.T, b Backend, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(b, cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	o.sleep = func(context.Context, time.Duration) error { return nil }
	return o
}

func waitSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v", err)
	}
}

func logContains(o *Orchestrator, text string) bool {
	for _, e := range o.Events().Entries() {
		if strings.Contains(e.Message, text) {
			return true
		}
	}
	return false
}

var square = models.Polygon{{Lat: 10, Lng: 10}, {Lat: 10, Lng: 20}, {Lat: 20, Lng: 20}, {Lat: 20, Lng: 10}}

func TestElevationThenDepthFailureShowsFallback(t *testing.T) {
	fb := &fakeBackend{
		analyze: func(models.AnalysisRequest) (*models.DepthResponse, error) {
			return nil, &apperr.NetworkError{Op: "analyze_depth", Status: 500}
		},
	}
	rec := &memRecorder{}
	o := newTestOrchestrator(t, fb, testConfig(), WithRecorder(rec))

	sess, err := o.DrawPolygon(context.Background(), square)
	if err != nil {
		t.Fatalf("DrawPolygon: %v", err)
	}
	waitSession(t, sess)

	snap := o.Snapshot()
	html := string(snap.HTML)
	elev := strings.Index(html, "50.0m - 80.0m")
	fallback := strings.Index(html, "25.5m")
	if elev < 0 || fallback < 0 {
		t.Fatalf("surface missing results: %s", html)
	}
	if elev > fallback {
		t.Error("elevation summary must stay above the depth report")
	}
	if snap.Stage != StageFailed || !snap.Fallback {
		t.Errorf("stage = %s fallback = %v", snap.Stage, snap.Fallback)
	}
	if !logContains(o, "Error in Depth Finder analysis: HTTP error! status: 500") {
		t.Error("depth error not logged")
	}

	reqs := fb.recorded()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d", len(reqs))
	}
	want := models.BoundingBox{MinLat: 10, MaxLat: 20, MinLng: 10, MaxLng: 20}
	if reqs[0].BBox != want || reqs[0].DEMSource != "COP" {
		t.Errorf("elevation request = %+v", reqs[0])
	}

	if len(rec.records) != 1 || rec.records[0].Outcome != string(StageFailed) || !rec.records[0].Fallback {
		t.Errorf("records = %+v", rec.records)
	}
}

func TestSuccessfulAnalysisLogsMetrics(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(t, fb, testConfig())

	sess, err := o.DrawPolygon(context.Background(), square)
	if err != nil {
		t.Fatal(err)
	}
	waitSession(t, sess)

	if sess.Stage() != StageComplete {
		t.Fatalf("stage = %s", sess.Stage())
	}
	for _, want := range []string{
		"Polygon created with 4 points",
		"Starting DEM download from satellite...",
		"DEM data downloaded successfully",
		"Depth analysis completed successfully",
		"Max Depth: 31.2m",
	} {
		if !logContains(o, want) {
			t.Errorf("log missing %q", want)
		}
	}
	if !strings.Contains(string(o.Snapshot().HTML), "myplot.png") {
		t.Error("raster figure not shown")
	}
}

func TestElevationFailureSkipsDepth(t *testing.T) {
	fb := &fakeBackend{
		getDEM: func(models.AnalysisRequest) (*models.ElevationResponse, error) {
			return nil, &apperr.ApplicationError{Op: "get_dem", Message: "No coverage"}
		},
	}
	o := newTestOrchestrator(t, fb, testConfig())
	sess, _ := o.DrawPolygon(context.Background(), square)
	waitSession(t, sess)

	if len(fb.recorded()) != 1 {
		t.Error("depth stage must not run after elevation failure")
	}
	if sess.Fallback() {
		t.Error("fallback stats are only for depth failures")
	}
	if !strings.Contains(string(o.Snapshot().HTML), "No coverage") {
		t.Error("error banner missing")
	}
}

func TestMarkerBeforePolygonRejected(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(t, fb, testConfig())

	_, err := o.DropMarker(context.Background(), models.Vertex{Lat: 1, Lng: 1})
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if o.Current() != nil {
		t.Error("rejected marker must not start a session")
	}
	if !logContains(o, "Please draw the Quarry Boundary (Polygon) first!") {
		t.Error("warning missing from log")
	}
}

func TestRequireReferencePointWaitsForMarker(t *testing.T) {
	fb := &fakeBackend{}
	cfg := testConfig()
	cfg.RequireReferencePoint = true
	o := newTestOrchestrator(t, fb, cfg)

	draft, err := o.DrawPolygon(context.Background(), square)
	if err != nil {
		t.Fatal(err)
	}
	if draft.Stage() != StageIdle || len(fb.recorded()) != 0 {
		t.Fatal("analysis must wait for the reference marker")
	}

	sess, err := o.DropMarker(context.Background(), models.Vertex{Lat: 15, Lng: 15})
	if err != nil {
		t.Fatalf("DropMarker: %v", err)
	}
	waitSession(t, sess)

	reqs := fb.recorded()
	if len(reqs) != 2 || reqs[0].ReferencePoint == nil || reqs[1].ReferencePoint.Lat != 15 {
		t.Fatalf("requests = %+v", reqs)
	}
	if o.Canvas().Marker() == nil {
		t.Error("marker not drawn")
	}
}

func TestConfigRejectsReferenceWithoutMarkers(t *testing.T) {
	cfg := testConfig()
	cfg.MarkerEnabled = false
	cfg.RequireReferencePoint = true
	if _, err := New(&fakeBackend{}, cfg); err == nil {
		t.Fatal("expected config error")
	}
}

func TestUploadRejectsNonTiff(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(t, fb, testConfig())

	_, err := o.UploadFile(context.Background(), "scan.pdf", strings.NewReader("%PDF"))
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fb.uploads.Load() != 0 {
		t.Error("backend upload must not be called")
	}
	if !logContains(o, "Only .tif files are allowed!") {
		t.Error("rejection not logged")
	}
}

func TestUploadSuccess(t *testing.T) {
	fb := &fakeBackend{
		upload: func(name string, data []byte) (*models.UploadResponse, error) {
			if string(data) != "TIFF" {
				t.Errorf("data = %q", data)
			}
			return &models.UploadResponse{Status: models.StatusSuccess, Filename: name,
				DepthStats: models.DepthStatistics{VolumeM3: models.NewMeasure(125000)}}, nil
		},
	}
	o := newTestOrchestrator(t, fb, testConfig())

	sess, err := o.UploadFile(context.Background(), "PIT.TIFF", strings.NewReader("TIFF"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	waitSession(t, sess)

	if sess.Stage() != StageComplete {
		t.Fatalf("stage = %s", sess.Stage())
	}
	if !logContains(o, "File selected: PIT.TIFF (0.00 MB)") || !logContains(o, "Analysis Complete!") {
		t.Errorf("log = %+v", o.Events().Entries())
	}
	if !strings.Contains(string(o.Snapshot().HTML), "125,000 m³") {
		t.Error("upload report missing")
	}
}

func TestStaleSessionResultsDropped(t *testing.T) {
	release := make(chan struct{})
	fb := &fakeBackend{
		getDEM: func(req models.AnalysisRequest) (*models.ElevationResponse, error) {
			// Блокируется только первая сессия (квадрат).
			if len(req.Coords) == len(square) {
				<-release
				return &models.ElevationResponse{Status: models.StatusSuccess, MinElevation: models.NewMeasure(1), MaxElevation: models.NewMeasure(2)}, nil
			}
			return &models.ElevationResponse{Status: models.StatusSuccess, MinElevation: models.NewMeasure(50), MaxElevation: models.NewMeasure(80)}, nil
		},
	}
	o := newTestOrchestrator(t, fb, testConfig())

	first, err := o.DrawPolygon(context.Background(), square)
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.DrawPolygon(context.Background(), models.Polygon{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 2}, {Lat: 2, Lng: 2}})
	if err != nil {
		t.Fatal(err)
	}
	waitSession(t, second)
	close(release)
	waitSession(t, first)

	html := string(o.Snapshot().HTML)
	if strings.Contains(html, "1.0m - 2.0m") {
		t.Errorf("abandoned session leaked onto the surface: %s", html)
	}
	if !strings.Contains(html, "50.0m - 80.0m") {
		t.Errorf("current session results missing: %s", html)
	}
	if !logContains(o, "Discarded results from an abandoned analysis session") {
		t.Error("drop not logged")
	}
	if first.Stage() != StageComplete {
		t.Errorf("abandoned session still tracks its own outcome, got %s", first.Stage())
	}
}

func TestLoadSiteThenMarkerAnalysesSite(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(t, fb, testConfig())

	drawn, err := o.DrawPolygon(context.Background(), square)
	if err != nil {
		t.Fatal(err)
	}
	waitSession(t, drawn)

	site := models.Site{ID: "7", Name: "North", Coords: models.Polygon{{Lat: 1, Lng: 1}, {Lat: 1, Lng: 3}, {Lat: 3, Lng: 3}}}
	if err := o.LoadSite(site); err != nil {
		t.Fatalf("LoadSite: %v", err)
	}
	if got := o.Current().Stage(); got != StageIdle {
		t.Errorf("loaded site stage = %s, want idle", got)
	}
	if !logContains(o, "Loaded site: North") {
		t.Error("load not logged")
	}

	sess, err := o.DropMarker(context.Background(), models.Vertex{Lat: 2, Lng: 2})
	if err != nil {
		t.Fatalf("DropMarker: %v", err)
	}
	waitSession(t, sess)

	reqs := fb.recorded()
	last := reqs[len(reqs)-1]
	if len(last.Coords) != 3 || last.Coords[0] != site.Coords[0] {
		t.Errorf("marker analysed %v, want site polygon", last.Coords)
	}
	if poly, ok := o.Canvas().Polygon(); !ok || len(poly) != 3 {
		t.Errorf("canvas polygon = %v", poly)
	}
}

func TestLoadSiteRejectsDegeneratePolygon(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, testConfig())
	if err := o.LoadSite(models.Site{Name: "Line", Coords: models.Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}}); err == nil {
		t.Fatal("expected error")
	}
	if o.Current() != nil {
		t.Error("invalid site must not replace the session")
	}
}

func TestVisualizationAppended(t *testing.T) {
	fb := &fakeBackend{
		analyze: func(models.AnalysisRequest) (*models.DepthResponse, error) {
			return &models.DepthResponse{Status: models.StatusSuccess, Visualization: "static/depth_viz.png"}, nil
		},
	}
	o := newTestOrchestrator(t, fb, testConfig())
	var slept []time.Duration
	var mu sync.Mutex
	o.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}

	sess, _ := o.DrawPolygon(context.Background(), square)
	waitSession(t, sess)

	html := string(o.Snapshot().HTML)
	report := strings.Index(html, "Depth Finder Analysis Complete")
	viz := strings.Index(html, "depth_viz.png")
	if report < 0 || viz < report {
		t.Errorf("visualization must follow the report: %s", html)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(slept) != 2 || slept[1] != 1500*time.Millisecond {
		t.Errorf("delays = %v", slept)
	}
}

func TestVisualizationDisabled(t *testing.T) {
	fb := &fakeBackend{
		analyze: func(models.AnalysisRequest) (*models.DepthResponse, error) {
			return &models.DepthResponse{Status: models.StatusSuccess, Visualization: "static/depth_viz.png"}, nil
		},
	}
	cfg := testConfig()
	cfg.VisualizationEnabled = false
	o := newTestOrchestrator(t, fb, cfg)

	sess, _ := o.DrawPolygon(context.Background(), square)
	waitSession(t, sess)
	if strings.Contains(string(o.Snapshot().HTML), "depth_viz.png") {
		t.Error("visualization shown while disabled")
	}
}

func TestReadinessPollRetries(t *testing.T) {
	var attempts atomic.Int32
	fb := &fakeBackend{
		raster: func(path string) (string, error) {
			src := "http://backend/" + path + "?t=2"
			if attempts.Add(1) < 3 {
				return src, &apperr.NetworkError{Op: "raster", Status: 404}
			}
			return src, nil
		},
	}
	cfg := testConfig()
	cfg.ReadinessTimeout = 5 * time.Second
	o := newTestOrchestrator(t, fb, cfg)
	o.pollInterval = 5 * time.Millisecond

	sess, _ := o.DrawPolygon(context.Background(), square)
	waitSession(t, sess)

	if n := attempts.Load(); n != 3 {
		t.Errorf("poll attempts = %d", n)
	}
	if sess.Stage() != StageComplete {
		t.Errorf("stage = %s", sess.Stage())
	}
}

func TestAnalyzeSiteRunsDepthOnly(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(t, fb, testConfig())

	site := models.Site{ID: "s1", Name: "North Pit", Coords: square}
	sess, err := o.AnalyzeSite(context.Background(), site)
	if err != nil {
		t.Fatal(err)
	}
	waitSession(t, sess)

	if len(fb.recorded()) != 1 {
		t.Errorf("requests = %d, want depth only", len(fb.recorded()))
	}
	if v := o.Canvas().View(); v.Bounds == nil || v.Center.Lat != 15 {
		t.Errorf("view not fitted: %+v", v)
	}
	if !logContains(o, "Loaded site: North Pit") {
		t.Error("site load not logged")
	}
}

func TestDrawPolygonValidation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, testConfig())
	_, err := o.DrawPolygon(context.Background(), models.Polygon{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}})
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

type fakeScanner struct {
	markers []models.QuarryMarker
	err     error
}

func (f fakeScanner) FindQuarries(context.Context, models.BoundingBox) ([]models.QuarryMarker, error) {
	return f.markers, f.err
}

func TestScanQuarries(t *testing.T) {
	bbox := models.BoundingBox{MinLat: 1, MaxLat: 2, MinLng: 1, MaxLng: 2}

	o := newTestOrchestrator(t, &fakeBackend{}, testConfig(), WithScanner(fakeScanner{}))
	if _, err := o.ScanQuarries(context.Background(), bbox); err != nil {
		t.Fatal(err)
	}
	if !logContains(o, "No quarries found in this specific map view. Try moving the map!") {
		t.Error("empty scan warning missing")
	}

	found := fakeScanner{markers: []models.QuarryMarker{{Name: "A", Lat: 1.5, Lng: 1.5}, {Name: "B", Lat: 1.2, Lng: 1.7}}}
	o = newTestOrchestrator(t, &fakeBackend{}, testConfig(), WithScanner(found))
	markers, err := o.ScanQuarries(context.Background(), bbox)
	if err != nil || len(markers) != 2 {
		t.Fatalf("markers = %v err = %v", markers, err)
	}
	if len(o.Canvas().Quarries()) != 2 || !logContains(o, "Found 2 quarry sites in this area!") {
		t.Error("markers not placed")
	}

	o = newTestOrchestrator(t, &fakeBackend{}, testConfig(), WithScanner(fakeScanner{err: errors.New("timeout")}))
	if _, err := o.ScanQuarries(context.Background(), bbox); err == nil {
		t.Fatal("expected error")
	}
	if !logContains(o, "Error scanning for quarries.") {
		t.Error("scan error not logged")
	}
}

func TestSubscribeAndClose(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, testConfig())
	ch, cancel := o.Subscribe()
	o.StartDrawing()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	cancel()

	if err := o.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := o.DrawPolygon(context.Background(), square); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}
