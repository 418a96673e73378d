package worker

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize はプールサイズが1未満の場合に返される
	ErrInvalidSize = errors.New("worker: pool size must be at least 1")
	// ErrPoolClosed は停止処理開始後の投入で返される
	ErrPoolClosed = errors.New("worker: pool is closed")
	// ErrQueueFull は TrySubmit でキューに空きがない場合に返される
	ErrQueueFull = errors.New("worker: queue is full")
	// ErrNilJob は nil ジョブの投入で返される
	ErrNilJob = errors.New("worker: nil job")
)

// Job はワーカーが一度だけ実行する処理単位
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc は関数を Job として扱うためのアダプタ
type JobFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Func は戻り値のない関数を Job に変換する
func Func(fn func()) Job {
	return JobFunc(func(context.Context) error {
		fn()
		return nil
	})
}

// JobError はジョブ実行中の失敗（エラー返却または panic）を表す
type JobError struct {
	WorkerID int
	Panic    bool
	Err      error
}

func (e *JobError) Error() string {
	if e.Panic {
		return fmt.Sprintf("worker %d: job panicked: %v", e.WorkerID, e.Err)
	}
	return fmt.Sprintf("worker %d: job failed: %v", e.WorkerID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

type contextKey string

const workerIDKey contextKey = "worker-id"

// WorkerID はジョブのコンテキストから実行中のワーカーIDを取り出す
// ワーカー外のコンテキストでは -1 を返す
func WorkerID(ctx context.Context) int {
	id, ok := ctx.Value(workerIDKey).(int)
	if !ok {
		return -1
	}
	return id
}

func withWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, workerIDKey, id)
}

// runJob はジョブを実行し、エラーと panic を JobError に変換する
func runJob(ctx context.Context, id int, job Job) (jobErr *JobError) {
	defer func() {
		if r := recover(); r != nil {
			var err error
			switch rt := r.(type) {
			case error:
				err = fmt.Errorf("panic recovered: %w", rt)
			default:
				err = fmt.Errorf("panic recovered: %v", rt)
			}
			jobErr = &JobError{WorkerID: id, Panic: true, Err: err}
		}
	}()

	if err := job.Run(ctx); err != nil {
		return &JobError{WorkerID: id, Err: err}
	}
	return nil
}
