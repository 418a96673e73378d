package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"hello-server/internal/events"
	"hello-server/internal/logger"
)

// ShutdownMode は停止時にキューに残ったジョブの扱いを表す
type ShutdownMode int

const (
	// ShutdownDrain は残ったジョブを全て実行してからワーカーを終了する
	ShutdownDrain ShutdownMode = iota
	// ShutdownDiscard は残ったジョブを実行せずに破棄する
	ShutdownDiscard
)

func (m ShutdownMode) String() string {
	switch m {
	case ShutdownDrain:
		return "drain"
	case ShutdownDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// ParseShutdownMode は設定値の文字列を ShutdownMode に変換する
func ParseShutdownMode(s string) (ShutdownMode, error) {
	switch strings.ToLower(s) {
	case "", "drain":
		return ShutdownDrain, nil
	case "discard":
		return ShutdownDiscard, nil
	default:
		return ShutdownDrain, fmt.Errorf("unknown shutdown mode: %q", s)
	}
}

// State はプールのライフサイクル状態
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers  int          // ワーカー数（1以上）
	QueueFactor int          // キューサイズ = NumWorkers * QueueFactor
	QueueSize   int          // 0より大きければ QueueFactor より優先
	Shutdown    ShutdownMode // 停止時の残ジョブの扱い

	// OnError はジョブが失敗するたびに実行ワーカー上で呼ばれる
	OnError func(err *JobError)
	// Events はライフサイクルイベントの送信先（nil可）
	Events events.Publisher
	// Logger は nil の場合 logger.Default を使う
	Logger *logger.Logger
	// Context はジョブに渡される基底コンテキスト。停止処理で cancel されることはない
	Context context.Context
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:  4,
		QueueFactor: 100,
		Shutdown:    ShutdownDrain,
	}
}

// Pool は固定数のワーカーと共有キューを管理する
type Pool struct {
	config  PoolConfig
	log     *logger.Logger
	jobs    chan Job
	workers []*worker

	// mu は投入（RLock）とキューのクローズ（Lock）を排他する
	mu    sync.RWMutex
	state atomic.Int32

	discard  atomic.Bool
	joined   atomic.Int32
	stopOnce sync.Once
	// closing は停止開始時に閉じられ、送信待ちの Submit を解放する
	closing chan struct{}
	closed  chan struct{}
}

// New は指定サイズのワーカープールを作成し、ワーカーを起動する
func New(numWorkers int) (*Pool, error) {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewWithConfig(config)
}

// NewWithConfig は設定を指定してワーカープールを作成し、ワーカーを起動する
// NumWorkers が1未満の場合は ErrInvalidSize を返し、ワーカーは起動しない
func NewWithConfig(config PoolConfig) (*Pool, error) {
	if config.NumWorkers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, config.NumWorkers)
	}
	if config.QueueFactor <= 0 {
		config.QueueFactor = 100
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = config.NumWorkers * config.QueueFactor
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	log := config.Logger
	if log == nil {
		log = logger.Default
	}

	p := &Pool{
		config:  config,
		log:     log,
		jobs:    make(chan Job, queueSize),
		workers: make([]*worker, config.NumWorkers),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	p.state.Store(int32(StateOpen))

	for id := range config.NumWorkers {
		w := newWorker(id, p)
		p.workers[id] = w
		go w.loop(p.jobs)
	}

	log.Info("", "WorkerPool started with %d workers (queue: %d, shutdown: %s)",
		config.NumWorkers, queueSize, config.Shutdown)
	return p, nil
}

// Submit はジョブをキューに投入する。キューが満杯の場合は空くまでブロックする
// 停止処理開始後は ErrPoolClosed を返す。空き待ちの間に停止が始まった場合も同様
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != StateOpen {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.closing:
		return ErrPoolClosed
	}
}

// TrySubmit はジョブを投入する。キューに空きがなければ ErrQueueFull を返す
func (p *Pool) TrySubmit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != StateOpen {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop はプールを停止する
// 新規投入を拒否してキューを閉じ、全ワーカーを ID 順に join する
// 複数回・並行に呼び出してもよく、どの呼び出しも Closed になるまで待つ
func (p *Pool) Stop() {
	p.stopOnce.Do(p.shutdown)
	<-p.closed
}

// Close は io.Closer 向けの Stop
func (p *Pool) Close() error {
	p.Stop()
	return nil
}

func (p *Pool) shutdown() {
	// 先に Closing を公開し、空き待ちの Submit を抜けさせてからキューを閉じる
	p.state.Store(int32(StateClosing))
	close(p.closing)

	p.mu.Lock()
	if p.config.Shutdown == ShutdownDiscard {
		p.discard.Store(true)
	}
	pending := len(p.jobs)
	close(p.jobs)
	p.mu.Unlock()

	p.log.Info("", "WorkerPool stopping (%d queued jobs, mode: %s)", pending, p.config.Shutdown)
	p.publish(events.NewPoolClosingEvent(len(p.workers)))

	for _, w := range p.workers {
		w.join()
		p.joined.Add(1)
		p.log.Debug(logger.WorkerSource(w.id), "joined")
	}

	p.state.Store(int32(StateClosed))
	p.publish(events.NewPoolClosedEvent(len(p.workers)))
	p.log.Info("", "WorkerPool stopped")
	close(p.closed)
}

func (p *Pool) publish(e events.Event) {
	if p.config.Events != nil {
		p.config.Events.Publish(e)
	}
}

// State は現在の状態を返す
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Done は全ワーカーの join 完了時に閉じられるチャネルを返す
func (p *Pool) Done() <-chan struct{} {
	return p.closed
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// QueueSize は現在キューに溜まっているジョブ数を返す
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// QueueCapacity はキューの容量を返す
func (p *Pool) QueueCapacity() int {
	return cap(p.jobs)
}

// WorkerStats は単一ワーカーの統計
type WorkerStats struct {
	ID        int         `json:"id"`
	State     WorkerState `json:"-"`
	StateName string      `json:"state"`
	Executed  uint64      `json:"executed"`
	Failed    uint64      `json:"failed"`
	Discarded uint64      `json:"discarded"`
}

// Stats はプール全体の統計
type Stats struct {
	Workers       int           `json:"workers"`
	State         State         `json:"-"`
	StateName     string        `json:"state"`
	QueueLength   int           `json:"queue_length"`
	QueueCapacity int           `json:"queue_capacity"`
	Joined        int           `json:"joined"`
	Executed      uint64        `json:"executed"`
	Failed        uint64        `json:"failed"`
	Discarded     uint64        `json:"discarded"`
	PerWorker     []WorkerStats `json:"per_worker"`
}

// Stats は現在の統計のスナップショットを返す
func (p *Pool) Stats() Stats {
	state := p.State()
	s := Stats{
		Workers:       len(p.workers),
		State:         state,
		StateName:     state.String(),
		QueueLength:   len(p.jobs),
		QueueCapacity: cap(p.jobs),
		Joined:        int(p.joined.Load()),
		PerWorker:     make([]WorkerStats, 0, len(p.workers)),
	}
	for _, w := range p.workers {
		ws := w.stats()
		s.Executed += ws.Executed
		s.Failed += ws.Failed
		s.Discarded += ws.Discarded
		s.PerWorker = append(s.PerWorker, ws)
	}
	return s
}
