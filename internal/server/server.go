package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"hello-server/internal/events"
	"hello-server/internal/logger"
	"hello-server/internal/metrics"
	"hello-server/internal/worker"
)

// rejectReadTimeout は拒否する接続からリクエスト行を読み捨てる期限
const rejectReadTimeout = 100 * time.Millisecond

// ErrRequestLineTooLong はリクエスト行が上限を超えた場合に返される
var ErrRequestLineTooLong = errors.New("server: request line too long")

// Submitter はジョブの投入先（通常は *worker.Pool）
type Submitter interface {
	Submit(job worker.Job) error
}

// Config はサーバーの設定
type Config struct {
	Addr           string        // 待ち受けアドレス
	ReadTimeout    time.Duration // リクエスト行の読み込み期限（0で無制限）
	WriteTimeout   time.Duration // 応答の書き込み期限（0で無制限）
	SleepDelay     time.Duration // GET /sleep の遅延
	MaxRequestLine int           // リクエスト行の最大バイト数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:7878",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		SleepDelay:     5 * time.Second,
		MaxRequestLine: 8 * 1024,
	}
}

// Option はサーバーのオプション
type Option func(*Server)

// WithLogger はロガーを指定する
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetrics はリクエストメトリクスの記録先を指定する
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithEvents はイベントの送信先を指定する
func WithEvents(p events.Publisher) Option {
	return func(s *Server) { s.events = p }
}

// Server は接続を受け付けてプールに渡す
type Server struct {
	config  Config
	pool    Submitter
	pages   Pages
	router  *Router
	log     *logger.Logger
	metrics *metrics.Metrics
	events  events.Publisher

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	// rejects は拒否応答中の接続数。Serve は全て終わるまで戻らない
	rejects sync.WaitGroup
}

// New は新しいサーバーを作成する
func New(config Config, pool Submitter, pages Pages, opts ...Option) *Server {
	if config.MaxRequestLine <= 0 {
		config.MaxRequestLine = DefaultConfig().MaxRequestLine
	}
	if pages == nil {
		pages = EmbeddedPages()
	}
	s := &Server{
		config: config,
		pool:   pool,
		pages:  pages,
		router: NewRouter(config.SleepDelay),
		log:    logger.Default,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe は Config.Addr で待ち受けて Serve を実行する
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ctx がキャンセルされるまで接続を受け付ける
// 受け付けた接続はそれぞれ1つのジョブとしてプールに投入する
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("server: already serving")
	}
	s.listener = ln
	close(s.ready)
	s.mu.Unlock()

	defer s.rejects.Wait()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer func() { _ = ln.Close() }()

	s.log.Info("", "Listening on %s", ln.Addr())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("", "Listener on %s closed", ln.Addr())
				return nil
			}
			backoff = nextBackoff(backoff)
			s.log.Warn("", "Accept failed: %v; retrying in %v", err, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0
		s.dispatch(conn)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// Addr は待ち受け中のアドレスを返す。Serve 開始前は nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready は Serve が待ち受けを開始すると閉じられる
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// dispatch は接続をジョブに包んでプールに投入する
func (s *Server) dispatch(conn net.Conn) {
	accepted := time.Now()
	job := worker.JobFunc(func(ctx context.Context) error {
		err := s.handle(ctx, conn)
		if s.metrics != nil {
			if err != nil {
				s.metrics.RecordFailure(time.Since(accepted))
			} else {
				s.metrics.RecordSuccess(time.Since(accepted))
			}
		}
		return err
	})

	if err := s.pool.Submit(job); err != nil {
		// 拒否応答は読み捨てと書き込みを伴うので accept ループを止めない
		s.rejects.Add(1)
		go func() {
			defer s.rejects.Done()
			s.reject(conn, err)
		}()
	}
}

// reject はプールが受け付けなかった接続に 503 を返して閉じる
func (s *Server) reject(conn net.Conn, cause error) {
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr().String()
	s.log.Warn(connSource(remote), "Rejecting connection: %v", cause)
	if s.metrics != nil {
		s.metrics.RecordRejected()
	}
	if s.events != nil {
		s.events.Publish(events.NewConnRejectedEvent(remote, cause))
	}

	// 未読データを残したまま閉じると RST になり、503 が届かないことがある
	_ = conn.SetReadDeadline(time.Now().Add(rejectReadTimeout))
	_, _ = readRequestLine(bufio.NewReader(conn), s.config.MaxRequestLine)

	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	_, _ = conn.Write(formatResponse(StatusUnavailable, []byte("Service Unavailable")))
}

// handle は1接続分の処理。ワーカー上で実行され、接続は必ず閉じる
func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	remote := conn.RemoteAddr().String()
	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	line, err := readRequestLine(bufio.NewReader(conn), s.config.MaxRequestLine)
	if err != nil {
		return fmt.Errorf("failed to read request from %s: %w", remote, err)
	}

	route := s.router.Match(line)
	if err := route.wait(ctx); err != nil {
		return fmt.Errorf("request %q from %s interrupted: %w", line, remote, err)
	}

	body, err := s.pages.Load(route.Page)
	if err != nil {
		return err
	}

	if s.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if _, err := conn.Write(formatResponse(route.Status, body)); err != nil {
		return fmt.Errorf("failed to write response to %s: %w", remote, err)
	}

	s.log.Debug(connSource(remote), "%q -> %s (worker %d)", line, route.Status, worker.WorkerID(ctx))
	return nil
}

// readRequestLine は改行までの1行を読む。末尾の \r\n は含まない
func readRequestLine(r *bufio.Reader, limit int) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if len(line) > limit {
			return "", ErrRequestLineTooLong
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

func connSource(remote string) string {
	return "conn-" + remote
}
