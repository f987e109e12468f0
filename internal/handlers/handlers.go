// Package handlers содержит HTTP обработчики backend-for-frontend сервера
// анализа глубины карьеров.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"

	"github.com/akozadaev/go_quarry_depth_finder/internal/apperr"
	"github.com/akozadaev/go_quarry_depth_finder/internal/geo"
	"github.com/akozadaev/go_quarry_depth_finder/internal/mapview"
	"github.com/akozadaev/go_quarry_depth_finder/internal/models"
	"github.com/akozadaev/go_quarry_depth_finder/internal/orchestrator"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
	"github.com/akozadaev/go_quarry_depth_finder/internal/sites"
)

// MaxUploadBytes предельный размер загружаемого GeoTIFF.
const MaxUploadBytes = 200 << 20

// History история анализов.
type History interface {
	Recent(ctx context.Context, limit int) ([]*models.AnalysisRecord, error)
	SearchWithin(ctx context.Context, bbox models.BoundingBox, limit int) ([]*models.AnalysisRecord, error)
}

// Handlers содержит зависимости для обработки HTTP запросов.
type Handlers struct {
	orch      *orchestrator.Orchestrator
	sites     *sites.Manager
	history   History
	mapConfig models.MapConfig
	markdown  *render.MarkdownExporter
	hub       *Hub
	logger    *slog.Logger

	uploadLimit int64
}

// NewHandlers создает Handlers. history может быть nil.
func NewHandlers(orch *orchestrator.Orchestrator, sitesMgr *sites.Manager, history History, mapConfig models.MapConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	markdown := render.NewMarkdownExporter()
	return &Handlers{
		orch:      orch,
		sites:     sitesMgr,
		history:   history,
		mapConfig: mapConfig,
		markdown:  markdown,
		hub:       NewHub(orch, markdown, logger),
		logger:    logger,

		uploadLimit: MaxUploadBytes,
	}
}

// CORS разрешает запросы браузера с любых адресов и отвечает на preflight
// до маршрутизации, иначе mux вернул бы 405 для OPTIONS.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Register подключает маршруты к роутеру.
func (h *Handlers) Register(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/config/map", h.GetMapConfig).Methods(http.MethodGet)
	router.HandleFunc("/session", h.GetSession).Methods(http.MethodGet)
	router.HandleFunc("/session/ws", h.hub.ServeWS).Methods(http.MethodGet)
	router.HandleFunc("/session/drawing", h.StartDrawing).Methods(http.MethodPost)
	router.HandleFunc("/session/polygon", h.DrawPolygon).Methods(http.MethodPost)
	router.HandleFunc("/session/marker", h.DropMarker).Methods(http.MethodPost)
	router.HandleFunc("/session/upload", h.UploadFile).Methods(http.MethodPost)
	router.HandleFunc("/scan", h.ScanQuarries).Methods(http.MethodPost)
	router.HandleFunc("/sites", h.ListSites).Methods(http.MethodGet)
	router.HandleFunc("/sites", h.SaveSite).Methods(http.MethodPost)
	router.HandleFunc("/sites/{id}/load", h.LoadSite).Methods(http.MethodPost)
	router.HandleFunc("/sites/{id}", h.DeleteSite).Methods(http.MethodDelete)
	router.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
}

// PolygonRequest тело POST /session/polygon
type PolygonRequest struct {
	Coords models.Polygon `json:"coords"`
}

// SessionResponse состояние сессии, поверхности результатов и карты.
type SessionResponse struct {
	orchestrator.Snapshot
	Markdown string                     `json:"markdown"`
	View     mapview.View               `json:"view"`
	Map      *geojson.FeatureCollection `json:"map"`
}

// ScanResponse ответ POST /scan
type ScanResponse struct {
	Markers []models.QuarryMarker `json:"markers"`
	HTML    template.HTML         `json:"html"`
}

// SitesListResponse ответ GET /sites
type SitesListResponse struct {
	Sites []models.Site `json:"sites"`
	HTML  template.HTML `json:"html"`
}

// HistoryResponse ответ GET /history
type HistoryResponse struct {
	Analyses []*models.AnalysisRecord `json:"analyses"`
	Total    int                      `json:"total"`
}

// HealthCheck проверка работоспособности сервиса.
//
// @Summary      Проверка здоровья
// @Description  Возвращает статус сервиса
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetMapConfig параметры карты: подложка, подписи, ключ поиска, начальный вид.
//
// @Summary      Параметры карты
// @Tags         map
// @Produce      json
// @Success      200  {object}  models.MapConfig
// @Router       /config/map [get]
func (h *Handlers) GetMapConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.mapConfig)
}

// GetSession возвращает состояние текущей сессии.
//
// @Summary      Текущая сессия
// @Description  Этап сессии, HTML и Markdown панели результатов, журнал событий и слои карты
// @Tags         session
// @Produce      json
// @Success      200  {object}  SessionResponse
// @Router       /session [get]
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sessionResponse())
}

// StartDrawing отмечает начало рисования полигона.
//
// @Summary      Начать рисование
// @Tags         session
// @Produce      json
// @Success      200  {object}  SessionResponse
// @Router       /session/drawing [post]
func (h *Handlers) StartDrawing(w http.ResponseWriter, r *http.Request) {
	h.orch.StartDrawing()
	h.writeJSON(w, http.StatusOK, h.sessionResponse())
}

// DrawPolygon принимает нарисованный полигон и запускает анализ.
// Принимает PolygonRequest или GeoJSON (Content-Type application/geo+json).
//
// @Summary      Нарисовать полигон
// @Description  Заменяет нарисованные объекты полигоном и запускает загрузку высот и анализ глубины
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      PolygonRequest  true  "Вершины полигона"
// @Success      202      {object}  SessionResponse
// @Failure      400      {object}  map[string]string  "Неверный полигон"
// @Router       /session/polygon [post]
func (h *Handlers) DrawPolygon(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, apperr.Validation("body", "Invalid request body"))
		return
	}

	var polygon models.Polygon
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/geo+json") {
		if polygon, err = geo.ParseGeoJSON(body); err != nil {
			h.writeError(w, apperr.Validation("body", err.Error()))
			return
		}
	} else {
		var req PolygonRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, apperr.Validation("body", "Invalid request body"))
			return
		}
		polygon = req.Coords
	}

	if _, err := h.orch.DrawPolygon(r.Context(), polygon); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.sessionResponse())
}

// DropMarker ставит опорную точку и перезапускает анализ.
//
// @Summary      Поставить маркер
// @Description  Требует нарисованный полигон. Запускает анализ с опорной точкой
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body      models.Vertex  true  "Координаты маркера"
// @Success      202      {object}  SessionResponse
// @Failure      400      {object}  map[string]string  "Нет полигона"
// @Router       /session/marker [post]
func (h *Handlers) DropMarker(w http.ResponseWriter, r *http.Request) {
	var v models.Vertex
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		h.writeError(w, apperr.Validation("body", "Invalid request body"))
		return
	}
	if _, err := h.orch.DropMarker(r.Context(), v); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.sessionResponse())
}

// UploadFile принимает GeoTIFF и запускает его анализ.
//
// @Summary      Загрузить DEM
// @Description  Принимаются только файлы .tif и .tiff
// @Tags         session
// @Accept       mpfd
// @Produce      json
// @Param        file  formData  file  true  "GeoTIFF"
// @Success      202   {object}  SessionResponse
// @Failure      400   {object}  map[string]string  "Неверный файл"
// @Router       /session/upload [post]
func (h *Handlers) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, apperr.Validation("file", "File is too large (max "+humanize.IBytes(uint64(tooLarge.Limit))+")"))
			return
		}
		h.writeError(w, apperr.Validation("file", "Please select a file"))
		return
	}
	defer file.Close()

	if _, err := h.orch.UploadFile(r.Context(), header.Filename, file); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.sessionResponse())
}

// ScanQuarries ищет карьеры OpenStreetMap в видимой области.
//
// @Summary      Найти карьеры
// @Tags         map
// @Accept       json
// @Produce      json
// @Param        request  body      models.BoundingBox  true  "Видимая область"
// @Success      200      {object}  ScanResponse
// @Failure      502      {object}  map[string]string  "Overpass недоступен"
// @Router       /scan [post]
func (h *Handlers) ScanQuarries(w http.ResponseWriter, r *http.Request) {
	var bbox models.BoundingBox
	if err := json.NewDecoder(r.Body).Decode(&bbox); err != nil {
		h.writeError(w, apperr.Validation("body", "Invalid request body"))
		return
	}
	if bbox.MinLat > bbox.MaxLat || bbox.MinLng > bbox.MaxLng {
		h.writeError(w, apperr.Validation("bbox", "Invalid bounding box"))
		return
	}

	markers, err := h.orch.ScanQuarries(r.Context(), bbox)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ScanResponse{
		Markers: markers,
		HTML:    h.orch.Renderer().ScanSummary(markers),
	})
}

// ListSites обновляет и возвращает список сохраненных участков.
//
// @Summary      Сохраненные участки
// @Tags         sites
// @Produce      json
// @Success      200  {object}  SitesListResponse
// @Failure      502  {object}  map[string]string  "Backend недоступен"
// @Router       /sites [get]
func (h *Handlers) ListSites(w http.ResponseWriter, r *http.Request) {
	list, err := h.sites.Refresh(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SitesListResponse{Sites: list, HTML: h.sites.ListHTML()})
}

// SaveSite сохраняет участок. Без coords сохраняется полигон на карте.
//
// @Summary      Сохранить участок
// @Tags         sites
// @Accept       json
// @Produce      json
// @Param        request  body      models.SaveSiteRequest  true  "Имя и вершины"
// @Success      201      {object}  SitesListResponse
// @Failure      400      {object}  map[string]string  "Пустое имя"
// @Router       /sites [post]
func (h *Handlers) SaveSite(w http.ResponseWriter, r *http.Request) {
	var req models.SaveSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperr.Validation("body", "Invalid request body"))
		return
	}
	coords := req.Coords
	if len(coords) == 0 {
		coords, _ = h.orch.Canvas().Polygon()
	}
	if err := h.sites.Save(r.Context(), req.SiteName, coords); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, SitesListResponse{Sites: h.sites.Sites(), HTML: h.sites.ListHTML()})
}

// LoadSite рисует участок из последнего списка. С analyze=true запускает анализ глубины.
// Неизвестный id игнорируется.
//
// @Summary      Загрузить участок
// @Tags         sites
// @Produce      json
// @Param        id       path      string  true   "Идентификатор участка"
// @Param        analyze  query     bool    false  "Запустить анализ глубины"
// @Success      200      {object}  SessionResponse
// @Router       /sites/{id}/load [post]
func (h *Handlers) LoadSite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	analyze, _ := strconv.ParseBool(r.URL.Query().Get("analyze"))

	if analyze {
		if site, ok := h.sites.Lookup(id); ok {
			if _, err := h.orch.AnalyzeSite(r.Context(), site); err != nil {
				h.writeError(w, err)
				return
			}
		}
	} else {
		h.sites.Load(id)
	}
	h.writeJSON(w, http.StatusOK, h.sessionResponse())
}

// DeleteSite удаляет участок. Требует confirm=true.
//
// @Summary      Удалить участок
// @Tags         sites
// @Produce      json
// @Param        id       path      string  true  "Идентификатор участка"
// @Param        confirm  query     bool    true  "Подтверждение"
// @Success      200      {object}  SitesListResponse
// @Failure      400      {object}  map[string]string  "Нет подтверждения"
// @Router       /sites/{id} [delete]
func (h *Handlers) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := h.sites.Delete(r.Context(), id, confirmed); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SitesListResponse{Sites: h.sites.Sites(), HTML: h.sites.ListHTML()})
}

// GetHistory последние анализы или анализы в области (minLat, maxLat, minLng, maxLng).
//
// @Summary      История анализов
// @Tags         history
// @Produce      json
// @Param        limit   query     int     false  "Количество записей"
// @Param        minLat  query     number  false  "Южная граница"
// @Param        maxLat  query     number  false  "Северная граница"
// @Param        minLng  query     number  false  "Западная граница"
// @Param        maxLng  query     number  false  "Восточная граница"
// @Success      200     {object}  HistoryResponse
// @Failure      503     {object}  map[string]string  "История отключена"
// @Router       /history [get]
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Analysis history is disabled"})
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var (
		records []*models.AnalysisRecord
		err     error
	)
	if q.Has("minLat") || q.Has("maxLat") || q.Has("minLng") || q.Has("maxLng") {
		bbox, perr := parseBBox(q.Get("minLat"), q.Get("maxLat"), q.Get("minLng"), q.Get("maxLng"))
		if perr != nil {
			h.writeError(w, perr)
			return
		}
		records, err = h.history.SearchWithin(r.Context(), bbox, limit)
	} else {
		records, err = h.history.Recent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to load history", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	if records == nil {
		records = []*models.AnalysisRecord{}
	}
	h.writeJSON(w, http.StatusOK, HistoryResponse{Analyses: records, Total: len(records)})
}

func parseBBox(minLat, maxLat, minLng, maxLng string) (models.BoundingBox, error) {
	var vals [4]float64
	for i, raw := range []string{minLat, maxLat, minLng, maxLng} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.BoundingBox{}, apperr.Validation("bbox", "minLat, maxLat, minLng and maxLng must all be numbers")
		}
		vals[i] = v
	}
	b := models.BoundingBox{MinLat: vals[0], MaxLat: vals[1], MinLng: vals[2], MaxLng: vals[3]}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return models.BoundingBox{}, apperr.Validation("bbox", "Invalid bounding box")
	}
	return b, nil
}

func (h *Handlers) sessionResponse() SessionResponse {
	snap := h.orch.Snapshot()
	md, err := h.markdown.Convert(snap.HTML)
	if err != nil {
		h.logger.Warn("markdown export failed", "error", err)
	}
	return SessionResponse{
		Snapshot: snap,
		Markdown: md,
		View:     h.orch.Canvas().View(),
		Map:      h.orch.Canvas().FeatureCollection(),
	}
}

// statusFor код ответа для ошибки.
func statusFor(err error) int {
	var vErr *apperr.ValidationError
	var appErr *apperr.ApplicationError
	var netErr *apperr.NetworkError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.As(err, &appErr), errors.As(err, &netErr):
		return http.StatusBadGateway
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := apperr.UserMessage(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		msg = "Internal server error"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("error encoding response", "error", err)
	}
}
