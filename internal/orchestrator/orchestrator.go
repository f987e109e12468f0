// Package orchestrator ведет сессию анализа карьера: загрузка высот,
// затем анализ глубины, вывод промежуточных и итоговых результатов.
//
// Одновременно активна одна сессия. Новая сессия не отменяет запросы
// предыдущей, но их результаты больше не попадают на поверхность.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/backend"
	"github.com/akozadaev/go_quarry_depth_finder/internal/eventlog"
	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/mapview"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/observability"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
)

// Backend операции сервиса анализа, которые использует оркестратор.
type Backend interface {
	GetDEM(ctx context.Context, req models.AnalysisRequest) (*models.ElevationResponse, error)
	AnalyzeDepth(ctx context.Context, req models.AnalysisRequest) (*models.DepthResponse, error)
	UploadDEM(ctx context.Context, filename string, r io.Reader) (*models.UploadResponse, error)
	FetchRaster(ctx context.Context, path string) (string, error)
}

// Recorder сохраняет завершенные сессии.
type Recorder interface {
	Record(ctx context.Context, rec models.AnalysisRecord) error
}

// Scanner ищет карьеры в видимой области.
type Scanner interface {
	FindQuarries(ctx context.Context, bbox models.BoundingBox) ([]models.QuarryMarker, error)
}

// Config параметры сценария анализа.
type Config struct {
	DEMSource             string
	MarkerEnabled         bool
	RequireReferencePoint bool
	VisualizationEnabled  bool
	ElevationSettleDelay  time.Duration
	VisualizationDelay    time.Duration
	ReadinessTimeout      time.Duration
	RasterPath            string
	LogCapacity           int
}

// DefaultConfig значения по умолчанию.
func DefaultConfig() Config {
	return Config{
		DEMSource:            "COP",
		MarkerEnabled:        true,
		VisualizationEnabled: true,
		ElevationSettleDelay: time.Second,
		VisualizationDelay:   1500 * time.Millisecond,
		ReadinessTimeout:     10 * time.Second,
		RasterPath:           backend.DefaultRasterPath,
		LogCapacity:          eventlog.DefaultCapacity,
	}
}

// Validate проверяет согласованность флагов.
func (c Config) Validate() error {
	if c.RequireReferencePoint && !c.MarkerEnabled {
		return errors.New("require reference point needs markers to be enabled")
	}
	if c.ElevationSettleDelay < 0 || c.VisualizationDelay < 0 || c.ReadinessTimeout < 0 {
		return errors.New("delays must not be negative")
	}
	return nil
}

// Orchestrator владеет текущей сессией, журналом событий, поверхностью
// результатов и картой.
type Orchestrator struct {
	cfg      Config
	backend  Backend
	recorder Recorder
	scanner  Scanner
	metrics  *observability.Collector
	logger   *slog.Logger
	renderer *render.Renderer
	surface  *render.Surface
	events   *eventlog.Log
	canvas   *mapview.Canvas

	mu      sync.Mutex
	current *Session
	closed  bool

	subMu     sync.Mutex
	listeners map[int]chan struct{}
	nextSub   int

	wg           sync.WaitGroup
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	pollInterval time.Duration
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithRecorder сохраняет историю анализов.
func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithScanner подключает поиск карьеров.
func WithScanner(s Scanner) Option { return func(o *Orchestrator) { o.scanner = s } }

// WithMetrics подключает метрики.
func WithMetrics(m *observability.Collector) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithLogger задает логгер процесса.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRenderer задает Renderer, например с другой локалью.
func WithRenderer(r *render.Renderer) Option { return func(o *Orchestrator) { o.renderer = r } }

// WithCanvas задает карту.
func WithCanvas(c *mapview.Canvas) Option { return func(o *Orchestrator) { o.canvas = c } }

// New создает оркестратор.
func New(b Backend, cfg Config, opts ...Option) (*Orchestrator, error) {
	if b == nil {
		return nil, errors.New("backend is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestrator config: %w", err)
	}
	if cfg.RasterPath == "" {
		cfg.RasterPath = backend.DefaultRasterPath
	}
	if cfg.DEMSource == "" {
		cfg.DEMSource = "COP"
	}

	o := &Orchestrator{
		cfg:          cfg,
		backend:      b,
		logger:       slog.Default(),
		surface:      render.NewSurface(),
		listeners:    make(map[int]chan struct{}),
		sleep:        sleepContext,
		now:          time.Now,
		pollInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.renderer == nil {
		o.renderer = render.NewRenderer(nil)
	}
	if o.canvas == nil {
		o.canvas = mapview.NewCanvas()
	}
	o.events = eventlog.New(cfg.LogCapacity)
	return o, nil
}

// Config текущая конфигурация.
func (o *Orchestrator) Config() Config { return o.cfg }

// Events журнал событий.
func (o *Orchestrator) Events() *eventlog.Log { return o.events }

// Canvas карта сессии.
func (o *Orchestrator) Canvas() *mapview.Canvas { return o.canvas }

// Surface поверхность результатов.
func (o *Orchestrator) Surface() *render.Surface { return o.surface }

// Renderer генератор фрагментов.
func (o *Orchestrator) Renderer() *render.Renderer { return o.renderer }

// Current текущая сессия или nil.
func (o *Orchestrator) Current() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// StartDrawing отмечает начало рисования полигона.
func (o *Orchestrator) StartDrawing() {
	o.events.Info("Drawing started - click on map to create polygon vertices")
	o.notify()
}

// DrawPolygon заменяет нарисованные объекты полигоном и запускает анализ.
// При RequireReferencePoint анализ начнется после установки маркера.
func (o *Orchestrator) DrawPolygon(ctx context.Context, p models.Polygon) (*Session, error) {
	if err := geo.ValidatePolygon(p); err != nil {
		o.events.Warn(apperr.UserMessage(err))
		o.notify()
		return nil, err
	}
	bbox, err := geo.ComputeBoundingBox(p)
	if err != nil {
		return nil, err
	}

	o.canvas.SetPolygon(p)
	o.events.Info(fmt.Sprintf("Polygon created with %d points", len(p)))

	sess := newSession(SourcePolygon, p, &bbox, nil, o.now())
	if o.cfg.RequireReferencePoint {
		o.mu.Lock()
		o.current = sess
		o.surface.Reset()
		o.surface.Replace(o.renderer.Status("Place a reference marker inside the quarry to start the analysis."))
		o.mu.Unlock()
		o.events.Info("Waiting for a reference marker before analysis")
		o.notify()
		return sess, nil
	}
	return o.begin(ctx, sess, StageAwaitingElevation)
}

// DropMarker ставит опорную точку и перезапускает анализ текущего полигона.
func (o *Orchestrator) DropMarker(ctx context.Context, v models.Vertex) (*Session, error) {
	if !o.cfg.MarkerEnabled {
		return nil, apperr.Validation("marker", "Reference markers are disabled")
	}

	o.mu.Lock()
	prev := o.current
	o.mu.Unlock()
	if prev == nil || len(prev.polygon) < geo.MinPolygonVertices {
		msg := "Please draw the Quarry Boundary (Polygon) first!"
		o.events.Warn(msg)
		o.notify()
		return nil, apperr.Validation("marker", msg)
	}

	o.canvas.SetMarker(v, "Reference Point")
	o.events.Info(fmt.Sprintf("Reference point set at %.6f, %.6f", v.Lat, v.Lng))

	ref := v
	sess := newSession(prev.source, prev.polygon, prev.bbox, &ref, o.now())
	return o.begin(ctx, sess, StageAwaitingElevation)
}

// UploadFile отправляет GeoTIFF на анализ. Файл читается целиком до возврата.
func (o *Orchestrator) UploadFile(ctx context.Context, filename string, r io.Reader) (*Session, error) {
	if !AllowedUpload(filename) {
		msg := "Only .tif files are allowed!"
		o.events.Error(msg)
		o.notify()
		return nil, apperr.Validation("file", msg)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	o.events.Info(fmt.Sprintf("File selected: %s (%.2f MB)", filename, float64(len(data))/1024/1024))
	o.logger.Info("dem upload accepted", "filename", filename, "size", humanize.IBytes(uint64(len(data))))

	sess := newSession(SourceUpload, nil, nil, nil, o.now())
	sess.filename = filename
	return o.beginUpload(ctx, sess, data)
}

// LoadSite рисует сохраненный участок и делает его полигон текущим
// без запуска анализа. Маркер после загрузки относится к этому участку.
func (o *Orchestrator) LoadSite(site models.Site) error {
	_, err := o.loadSite(site)
	return err
}

// AnalyzeSite рисует сохраненный участок и запускает только анализ глубины.
func (o *Orchestrator) AnalyzeSite(ctx context.Context, site models.Site) (*Session, error) {
	sess, err := o.loadSite(site)
	if err != nil {
		return nil, err
	}
	return o.begin(ctx, sess, StageAwaitingDepth)
}

// loadSite рисует участок и устанавливает Idle сессию с его полигоном.
func (o *Orchestrator) loadSite(site models.Site) (*Session, error) {
	if err := geo.ValidatePolygon(site.Coords); err != nil {
		o.events.Warn(apperr.UserMessage(err))
		o.notify()
		return nil, err
	}
	bbox, err := geo.ComputeBoundingBox(site.Coords)
	if err != nil {
		return nil, err
	}
	o.canvas.Clear()
	o.canvas.SetPolygon(site.Coords)
	o.canvas.FitBounds(bbox)
	o.events.Info(fmt.Sprintf("Loaded site: %s", site.Name))

	sess := newSession(SourceSite, site.Coords, &bbox, nil, o.now())
	o.mu.Lock()
	o.current = sess
	o.surface.Reset()
	o.mu.Unlock()
	o.notify()
	return sess, nil
}

// ScanQuarries ищет карьеры в области и выводит их на карту.
func (o *Orchestrator) ScanQuarries(ctx context.Context, bbox models.BoundingBox) ([]models.QuarryMarker, error) {
	if o.scanner == nil {
		return nil, errors.New("quarry scanner is not configured")
	}
	o.events.Info("Scanning for quarries in the current view...")
	o.notify()

	markers, err := o.scanner.FindQuarries(ctx, bbox)
	if err != nil {
		o.logger.Warn("quarry scan failed", "error", err)
		o.events.Error("Error scanning for quarries.")
		o.notify()
		return nil, err
	}
	if len(markers) == 0 {
		o.canvas.SetQuarries(nil)
		o.events.Warn("No quarries found in this specific map view. Try moving the map!")
		o.notify()
		return markers, nil
	}
	o.canvas.SetQuarries(markers)
	o.events.Success(fmt.Sprintf("Found %d quarry sites in this area!", len(markers)))
	o.notify()
	return markers, nil
}

// Snapshot состояние для отображения.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	sess := o.current
	o.mu.Unlock()

	snap := Snapshot{
		Stage:   StageIdle,
		HTML:    o.surface.HTML(),
		Log:     o.events.Entries(),
		Version: o.surface.Version(),
	}
	if sess == nil {
		return snap
	}
	snap.SessionID = sess.id
	snap.Source = sess.source
	snap.Polygon = sess.polygon.Clone()
	snap.BBox = sess.bbox
	snap.ReferencePoint = sess.reference
	snap.Filename = sess.filename
	if len(sess.polygon) >= geo.MinPolygonVertices {
		snap.AreaM2 = geo.Area(sess.polygon)
		snap.PerimeterM = geo.Perimeter(sess.polygon)
	}
	sess.mu.Lock()
	snap.Stage = sess.stage
	snap.Fallback = sess.fallback
	if sess.err != nil {
		snap.Error = apperr.UserMessage(sess.err)
	}
	sess.mu.Unlock()
	return snap
}

// Subscribe возвращает канал, получающий сигнал при каждом изменении
// журнала или поверхности. Сигналы не копятся: канал с буфером 1.
func (o *Orchestrator) Subscribe() (<-chan struct{}, func()) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := o.nextSub
	o.nextSub++
	ch := make(chan struct{}, 1)
	o.listeners[id] = ch
	return ch, func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		if _, ok := o.listeners[id]; ok {
			delete(o.listeners, id)
			close(ch)
		}
	}
}

// Notify сигнализирует подписчикам об изменении состояния вне оркестратора,
// например списка участков.
func (o *Orchestrator) Notify() { o.notify() }

func (o *Orchestrator) notify() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	for _, ch := range o.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close отклоняет новые сессии и ждет завершения начатых.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AllowedUpload проверяет расширение .tif или .tiff без учета регистра.
func AllowedUpload(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	return ext == ".tif" || ext == ".tiff"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
