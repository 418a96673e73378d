// Package api serves the optional admin endpoints: pool status, request
// metrics, a Prometheus scrape endpoint and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"hello-server/internal/events"
	"hello-server/internal/logger"
	"hello-server/internal/metrics"
	"hello-server/internal/worker"
)

// Server は管理APIサーバー
type Server struct {
	addr    string
	pool    metrics.StatsSource
	metrics *metrics.Metrics
	bus     *events.Bus

	registry       *prometheus.Registry
	statusInterval time.Duration

	mu        sync.Mutex
	wsClients int
	server    *http.Server
}

// NewServer は新しい管理APIサーバーを作成する。m と bus は nil を許す
func NewServer(addr string, pool metrics.StatsSource, m *metrics.Metrics, bus *events.Bus) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(pool, m))

	return &Server{
		addr:           addr,
		pool:           pool,
		metrics:        m,
		bus:            bus,
		registry:       registry,
		statusInterval: time.Second,
	}
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	return mux
}

// Start はサーバーを開始し、ctx がキャンセルされると停止する
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	logger.Info("", "Admin API starting on http://%s", s.addr)

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Pool      worker.Stats `json:"pool"`
	WSClients int          `json:"ws_clients"`
}

func (s *Server) status() StatusResponse {
	s.mu.Lock()
	clients := s.wsClients
	s.mu.Unlock()

	resp := StatusResponse{WSClients: clients}
	if s.pool != nil {
		resp.Pool = s.pool.Stats()
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.metrics == nil {
		s.writeJSON(w, metrics.Snapshot{})
		return
	}
	s.writeJSON(w, s.metrics.Snapshot())
}

// wsMessage は WebSocket で送るメッセージ
type wsMessage struct {
	Type   string          `json:"type"`
	Event  *events.Event   `json:"event,omitempty"`
	Status *StatusResponse `json:"status,omitempty"`
}

// handleWebSocket はイベントと定期的なステータスを送り続ける
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients++
	s.mu.Unlock()

	var sub <-chan events.Event
	if s.bus != nil {
		sub = s.bus.Subscribe()
	}

	defer func() {
		if sub != nil {
			s.bus.Unsubscribe(sub)
		}
		s.mu.Lock()
		s.wsClients--
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアントの切断を検知する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		var msg wsMessage
		select {
		case <-closed:
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			msg = wsMessage{Type: "event", Event: &e}
		case <-ticker.C:
			status := s.status()
			msg = wsMessage{Type: "status", Status: &status}
		}
		if err := websocket.JSON.Send(ws, msg); err != nil {
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
