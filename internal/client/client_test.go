package client

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hello-server/internal/worker"
)

// startFakeServer は1行読んで固定の応答を返すサーバーを起動する
func startFakeServer(t *testing.T, respond func(line string) string) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var served atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err != nil {
					return
				}
				served.Add(1)
				_, _ = conn.Write([]byte(respond(strings.TrimRight(line, "\r\n"))))
			}(conn)
		}
	}()
	return ln.Addr().String(), &served
}

func okOrNotFound(line string) string {
	if line == "GET / HTTP/1.1" {
		return "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	}
	return "HTTP/1.1 404 NOT FOUND\r\nContent-Length: 4\r\n\r\nnope"
}

func TestClientGet(t *testing.T) {
	addr, served := startFakeServer(t, okOrNotFound)
	c := New(addr)

	resp, err := c.Get(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "HTTP/1.1 200 OK", resp.StatusLine)
	assert.Equal(t, 5, resp.ContentLength)
	assert.Equal(t, "hello", string(resp.Body))

	resp, err = c.Get(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "nope", string(resp.Body))
	assert.Equal(t, int32(2), served.Load())
}

func TestClientDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(addr).Get(context.Background(), "/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestClientTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(500 * time.Millisecond)
	}()

	c := New(ln.Addr().String()).WithTimeout(50 * time.Millisecond)
	start := time.Now()
	_, err = c.Get(context.Background(), "/")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestReadResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		code     int
		body     string
		hasError bool
	}{
		{"with length", "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi", 200, "hi", false},
		{"lowercase header", "HTTP/1.1 200 OK\r\ncontent-length: 3\r\n\r\nabcdef", 200, "abc", false},
		{"no length reads to EOF", "HTTP/1.1 503 SERVICE UNAVAILABLE\r\n\r\nbusy", 503, "busy", false},
		{"empty", "", 0, "", true},
		{"bad status line", "HELLO\r\n\r\n", 0, "", true},
		{"bad code", "HTTP/1.1 abc OK\r\n\r\n", 0, "", true},
		{"bad header", "HTTP/1.1 200 OK\r\nbroken\r\n\r\n", 0, "", true},
		{"short body", "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nabc", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ReadResponse(bufio.NewReader(strings.NewReader(tt.input)))
			if tt.hasError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}

	_, err := ReadResponse(bufio.NewReader(strings.NewReader("HELLO\r\n")))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientLoad(t *testing.T) {
	addr, served := startFakeServer(t, okOrNotFound)
	c := New(addr)

	result, err := c.Load(context.Background(), LoadConfig{
		Concurrency: 4,
		Requests:    40,
		Paths:       []string{"/", "/missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(40), result.Snapshot.TotalRequests)
	assert.Equal(t, uint64(0), result.Snapshot.FailedRequests)
	assert.Equal(t, map[int]int{200: 20, 404: 20}, result.Statuses)
	assert.Equal(t, int32(40), served.Load())
}

func TestClientLoadInvalidConcurrency(t *testing.T) {
	_, err := New("127.0.0.1:1").Load(context.Background(), LoadConfig{Concurrency: 0, Requests: 1})
	assert.ErrorIs(t, err, worker.ErrInvalidSize)

	_, err = New("127.0.0.1:1").Load(context.Background(), LoadConfig{Concurrency: 1, Requests: -1})
	assert.Error(t, err)
}

func TestDefaultLoadConfig(t *testing.T) {
	cfg := DefaultLoadConfig()
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, []string{"/"}, cfg.Paths)
}
