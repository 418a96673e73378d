package server

import (
	"context"
	"fmt"
	"time"
)

const (
	StatusOK          = "HTTP/1.1 200 OK"
	StatusNotFound    = "HTTP/1.1 404 NOT FOUND"
	StatusUnavailable = "HTTP/1.1 503 SERVICE UNAVAILABLE"
)

// Route はリクエスト行に対する応答
type Route struct {
	Status string
	Page   string
	Delay  time.Duration
}

// Router はリクエスト行を Route に対応付ける
type Router struct {
	routes   map[string]Route
	fallback Route
}

// NewRouter は既定のルートを持つ Router を作成する
func NewRouter(sleepDelay time.Duration) *Router {
	return &Router{
		routes: map[string]Route{
			"GET / HTTP/1.1":      {Status: StatusOK, Page: PageHello},
			"GET /sleep HTTP/1.1": {Status: StatusOK, Page: PageHello, Delay: sleepDelay},
		},
		fallback: Route{Status: StatusNotFound, Page: PageNotFound},
	}
}

// Match はリクエスト行に一致する Route を返す。一致しなければ 404
func (r *Router) Match(requestLine string) Route {
	if route, ok := r.routes[requestLine]; ok {
		return route
	}
	return r.fallback
}

// wait は Route の遅延を適用する
func (rt Route) wait(ctx context.Context) error {
	if rt.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(rt.Delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// formatResponse はステータス行と本文から応答を組み立てる
func formatResponse(status string, body []byte) []byte {
	head := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", status, len(body))
	return append([]byte(head), body...)
}
