package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedResponse は応答が解釈できない場合に返される
var ErrMalformedResponse = errors.New("client: malformed response")

// Response はサーバーからの応答
type Response struct {
	StatusLine    string
	StatusCode    int
	ContentLength int
	Body          []byte
}

// Client はリクエストを1接続ずつ送る
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// New は新しい Client を作成する
func New(addr string) *Client {
	return &Client{
		addr:    addr,
		timeout: 10 * time.Second,
	}
}

// WithTimeout は1リクエストあたりの期限を設定する
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Get は "GET {path} HTTP/1.1" を送る
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, fmt.Sprintf("GET %s HTTP/1.1", path))
}

// Do は任意のリクエスト行を送り、応答を読む
func (c *Client) Do(ctx context.Context, requestLine string) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, requestLine+"\r\n"); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := ReadResponse(bufio.NewReader(conn))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return resp, nil
}

// ReadResponse はステータス行・ヘッダ・本文を読む
// Content-Length がなければ接続が閉じるまでを本文とする
func ReadResponse(r *bufio.Reader) (*Response, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read status line: %w", err)
	}

	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, parts[1])
	}

	resp := &Response{StatusLine: statusLine, StatusCode: code, ContentLength: -1}
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header %q", ErrMalformedResponse, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: content length %q", ErrMalformedResponse, value)
			}
			resp.ContentLength = n
		}
	}

	if resp.ContentLength >= 0 {
		resp.Body = make([]byte, resp.ContentLength)
		if _, err := io.ReadFull(r, resp.Body); err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return resp, nil
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	resp.Body = body
	resp.ContentLength = len(body)
	return resp, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
