// Package sites управляет сохраненными участками: список, сохранение,
// загрузка на карту и удаление. Повторов запросов нет.
package sites

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"sync"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/eventlog"
	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/mapview"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
)

// Client операции backend над участками.
type Client interface {
	SaveSite(ctx context.Context, name string, coords models.Polygon) error
	ListSites(ctx context.Context) ([]models.Site, error)
	DeleteSite(ctx context.Context, id string) error
}

// Loader делает участок текущим полигоном анализа.
type Loader interface {
	LoadSite(site models.Site) error
}

// Manager кэширует последний список участков и выводит его.
type Manager struct {
	client   Client
	canvas   *mapview.Canvas
	events   *eventlog.Log
	renderer *render.Renderer
	logger   *slog.Logger
	notify   func()
	loader   Loader

	mu    sync.RWMutex
	sites []models.Site
}

// Option настраивает Manager.
type Option func(*Manager)

// WithLogger задает логгер.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithNotify вызывается после каждого изменения журнала или списка.
func WithNotify(fn func()) Option { return func(m *Manager) { m.notify = fn } }

// WithRenderer задает Renderer.
func WithRenderer(r *render.Renderer) Option { return func(m *Manager) { m.renderer = r } }

// WithLoader передает загрузку участка оркестратору, чтобы маркер и анализ
// использовали нарисованный участок.
func WithLoader(l Loader) Option { return func(m *Manager) { m.loader = l } }

// NewManager создает Manager. Журнал и карта обычно общие с оркестратором.
func NewManager(client Client, canvas *mapview.Canvas, events *eventlog.Log, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		canvas: canvas,
		events: events,
		logger: slog.Default(),
		notify: func() {},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.renderer == nil {
		m.renderer = render.NewRenderer(nil)
	}
	return m
}

// Refresh загружает список участков и обновляет кэш.
func (m *Manager) Refresh(ctx context.Context) ([]models.Site, error) {
	list, err := m.client.ListSites(ctx)
	if err != nil {
		m.logger.Warn("failed to list sites", "error", err)
		m.events.Error("Error loading saved sites: " + apperr.UserMessage(err))
		m.notify()
		return nil, err
	}
	m.mu.Lock()
	m.sites = append([]models.Site(nil), list...)
	m.mu.Unlock()
	m.notify()
	return list, nil
}

// Sites последний загруженный список.
func (m *Manager) Sites() []models.Site {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Site(nil), m.sites...)
}

// ListHTML разметка списка участков.
func (m *Manager) ListHTML() template.HTML {
	return m.renderer.Sites(m.Sites())
}

// Lookup ищет участок в последнем списке.
func (m *Manager) Lookup(id string) (models.Site, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sites {
		if s.ID == id {
			return s, true
		}
	}
	return models.Site{}, false
}

// Save сохраняет полигон под именем name и обновляет список.
// Пустое имя отклоняется без запроса.
func (m *Manager) Save(ctx context.Context, name string, p models.Polygon) error {
	name = strings.TrimSpace(name)
	if name == "" {
		msg := "Please enter a site name"
		m.events.Warn(msg)
		m.notify()
		return apperr.Validation("sitename", msg)
	}
	if len(p) < geo.MinPolygonVertices {
		msg := "Please draw the Quarry Boundary (Polygon) first!"
		m.events.Warn(msg)
		m.notify()
		return apperr.Validation("coords", msg)
	}

	if err := m.client.SaveSite(ctx, name, p); err != nil {
		m.logger.Warn("failed to save site", "name", name, "error", err)
		m.events.Error("Error saving site: " + apperr.UserMessage(err))
		m.notify()
		return err
	}
	m.events.Success(fmt.Sprintf("Site %q saved successfully", name))
	m.notify()

	_, err := m.Refresh(ctx)
	return err
}

// Load рисует участок из последнего списка и подгоняет вид.
// Неизвестный id игнорируется. С WithLoader участок рисует загрузчик.
func (m *Manager) Load(id string) (models.Site, bool) {
	site, ok := m.Lookup(id)
	if !ok {
		return models.Site{}, false
	}
	if m.loader != nil {
		if err := m.loader.LoadSite(site); err != nil {
			m.logger.Warn("failed to load site", "id", id, "error", err)
			return models.Site{}, false
		}
		return site, true
	}

	bbox, err := geo.ComputeBoundingBox(site.Coords)
	if err != nil {
		return models.Site{}, false
	}
	m.canvas.Clear()
	m.canvas.SetPolygon(site.Coords)
	m.canvas.FitBounds(bbox)
	m.events.Info("Loaded site: " + site.Name)
	m.notify()
	return site, true
}

// Delete удаляет участок после подтверждения и обновляет список.
func (m *Manager) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return apperr.Validation("confirm", "Delete this site? Confirmation is required.")
	}
	if err := m.client.DeleteSite(ctx, id); err != nil {
		m.logger.Warn("failed to delete site", "id", id, "error", err)
		m.events.Error("Error deleting site: " + apperr.UserMessage(err))
		m.notify()
		return err
	}
	m.events.Success("Site deleted")
	m.notify()

	_, err := m.Refresh(ctx)
	return err
}
