package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akozadaev/go_quarry_depth_finder/internal/orchestrator"
	"github.com/akozadaev/go_quarry_depth_finder/internal/render"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Hub рассылает состояние сессии по websocket при каждом изменении
// журнала или поверхности результатов.
type Hub struct {
	orch     *orchestrator.Orchestrator
	markdown *render.MarkdownExporter
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients int
}

// NewHub создает Hub.
func NewHub(orch *orchestrator.Orchestrator, markdown *render.MarkdownExporter, logger *slog.Logger) *Hub {
	return &Hub{
		orch:     orch,
		markdown: markdown,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients число подключенных клиентов.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// ServeWS обновляет соединение до websocket и отправляет снимки состояния.
//
// @Summary      Поток обновлений сессии
// @Description  После подключения отправляет текущий снимок, затем снимок после каждого изменения
// @Tags         session
// @Success      101
// @Router       /session/ws [get]
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients++
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.clients--
		h.mu.Unlock()
	}()

	updates, unsubscribe := h.orch.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := h.send(conn); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(conn); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn) error {
	snap := h.orch.Snapshot()
	md, err := h.markdown.Convert(snap.HTML)
	if err != nil {
		h.logger.Warn("markdown export failed", "error", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(SessionResponse{
		Snapshot: snap,
		Markdown: md,
		View:     h.orch.Canvas().View(),
		Map:      h.orch.Canvas().FeatureCollection(),
	})
}

// readLoop обрабатывает pong и закрытие соединения клиентом.
func (h *Hub) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
