package orchestrator

import (
	"context"
	"html/template"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akozadaev/go_quarry_depth_finder/internal/eventlog"
	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
)

// Stage этап сессии анализа.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageAwaitingElevation Stage = "awaiting_elevation"
	StageAwaitingDepth     Stage = "awaiting_depth"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

// Terminal сообщает, что сессия завершена.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Source чем запущена сессия.
type Source string

const (
	SourcePolygon Source = "polygon"
	SourceUpload  Source = "upload"
	SourceSite    Source = "site"
)

// Session одна сессия: рисование или загрузка, анализ, вывод результатов.
// Поля меняются только внутри пакета под mu.
type Session struct {
	id        string
	source    Source
	polygon   models.Polygon
	bbox      *models.BoundingBox
	reference *models.Vertex
	filename  string
	startedAt time.Time

	mu         sync.Mutex
	stage      Stage
	err        error
	elevation  *models.ElevationResponse
	depth      *models.DepthResponse
	upload     *models.UploadResponse
	fallback   bool
	finishedAt time.Time
	discarded  bool

	done chan struct{}
}

func newSession(source Source, polygon models.Polygon, bbox *models.BoundingBox, reference *models.Vertex, now time.Time) *Session {
	return &Session{
		id:        uuid.NewString(),
		source:    source,
		polygon:   polygon.Clone(),
		bbox:      bbox,
		reference: reference,
		startedAt: now,
		stage:     StageIdle,
		done:      make(chan struct{}),
	}
}

// ID идентификатор сессии.
func (s *Session) ID() string { return s.id }

// Source источник сессии.
func (s *Session) Source() Source { return s.source }

// Stage текущий этап.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Err ошибка, переведшая сессию в Failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Fallback сообщает, что показан запасной набор статистики.
func (s *Session) Fallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Done закрывается после завершения всей работы сессии.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait ждет завершения сессии.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) update(fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// markDiscarded возвращает true только при первом вызове.
func (s *Session) markDiscarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return false
	}
	s.discarded = true
	return true
}

func (s *Session) record() models.AnalysisRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := models.AnalysisRecord{
		ID:         uuid.NewString(),
		SessionID:  s.id,
		Source:     string(s.source),
		Polygon:    s.polygon.Clone(),
		BBox:       s.bbox,
		Fallback:   s.fallback,
		Outcome:    string(s.stage),
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
	}
	switch {
	case s.depth != nil:
		rec.Stats = s.depth.DepthStats
	case s.upload != nil:
		rec.Stats = s.upload.DepthStats
	case s.fallback:
		rec.Stats = models.FallbackStatistics()
	}
	if len(s.polygon) >= geo.MinPolygonVertices {
		rec.AreaM2 = geo.Area(s.polygon)
		if c, err := geo.Centroid(s.polygon); err == nil {
			rec.Centroid = &c
		}
	} else if v, ok := rec.Stats.TotalAreaM2.Value(); ok {
		rec.AreaM2 = v
	}
	if s.err != nil {
		rec.Error = s.err.Error()
	}
	return rec
}

// Snapshot состояние текущей сессии и поверхности результатов.
type Snapshot struct {
	SessionID      string              `json:"session_id,omitempty"`
	Stage          Stage               `json:"stage"`
	Source         Source              `json:"source,omitempty"`
	Polygon        models.Polygon      `json:"polygon,omitempty"`
	BBox           *models.BoundingBox `json:"bbox,omitempty"`
	ReferencePoint *models.Vertex      `json:"reference_point,omitempty"`
	Filename       string              `json:"filename,omitempty"`
	AreaM2         float64             `json:"area_m2,omitempty"`
	PerimeterM     float64             `json:"perimeter_m,omitempty"`
	Fallback       bool                `json:"fallback"`
	Error          string              `json:"error,omitempty"`
	HTML           template.HTML       `json:"html"`
	Log            []eventlog.Entry    `json:"log"`
	Version        uint64              `json:"version"`
}
