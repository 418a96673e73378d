package worker

import (
	"errors"
	"sync/atomic"

	"hello-server/internal/events"
	"hello-server/internal/logger"
)

// WorkerState はワーカーの状態
type WorkerState int32

const (
	WorkerRunning WorkerState = iota
	WorkerTerminating
	WorkerJoined
)

func (s WorkerState) String() string {
	switch s {
	case WorkerRunning:
		return "running"
	case WorkerTerminating:
		return "terminating"
	case WorkerJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// worker は単一のワーカーゴルーチン
// カウンタは所有するゴルーチンだけが書き込む
type worker struct {
	id     int
	source string
	pool   *Pool
	done   chan struct{}
	state  atomic.Int32

	executed  atomic.Uint64
	failed    atomic.Uint64
	discarded atomic.Uint64
}

func newWorker(id int, p *Pool) *worker {
	return &worker{
		id:     id,
		source: logger.WorkerSource(id),
		pool:   p,
		done:   make(chan struct{}),
	}
}

// loop はキューが閉じられるまでジョブを1件ずつ実行する
func (w *worker) loop(jobs <-chan Job) {
	defer close(w.done)

	ctx := withWorkerID(w.pool.config.Context, w.id)
	w.pool.publish(events.NewWorkerStartedEvent(w.id))
	w.pool.log.Debug(w.source, "started")

	for job := range jobs {
		if w.pool.discard.Load() {
			w.discarded.Add(1)
			continue
		}

		err := runJob(ctx, w.id, job)
		w.executed.Add(1)
		if err != nil {
			w.failed.Add(1)
			w.report(err)
		}
	}

	w.state.Store(int32(WorkerTerminating))
	w.pool.publish(events.NewWorkerStoppedEvent(w.id, w.executed.Load(), w.discarded.Load()))
	w.pool.log.Debug(w.source, "shutting down (executed: %d, discarded: %d)",
		w.executed.Load(), w.discarded.Load())
}

func (w *worker) report(err *JobError) {
	if err.Panic {
		w.pool.log.Error(w.source, "%v", err)
	} else {
		w.pool.log.Warn(w.source, "%v", err)
	}
	w.pool.publish(events.NewJobFailedEvent(w.id, errors.Unwrap(err), err.Panic))
	if w.pool.config.OnError != nil {
		w.pool.config.OnError(err)
	}
}

// join はワーカーゴルーチンの終了を待つ。Pool.shutdown からのみ一度だけ呼ばれる
func (w *worker) join() {
	<-w.done
	w.state.Store(int32(WorkerJoined))
}

func (w *worker) stats() WorkerStats {
	state := WorkerState(w.state.Load())
	return WorkerStats{
		ID:        w.id,
		State:     state,
		StateName: state.String(),
		Executed:  w.executed.Load(),
		Failed:    w.failed.Load(),
		Discarded: w.discarded.Load(),
	}
}
