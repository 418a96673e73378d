package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"hello-server/internal/logger"
	"hello-server/internal/metrics"
	"hello-server/internal/worker"
)

// LoadConfig は負荷生成の設定
type LoadConfig struct {
	Concurrency int      // 並列数（1以上）
	Requests    int      // 総リクエスト数
	Paths       []string // リクエストパス（順番に使う）
}

// DefaultLoadConfig はデフォルト設定を返す
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		Concurrency: 4,
		Requests:    100,
		Paths:       []string{"/"},
	}
}

// LoadResult は負荷生成の結果
type LoadResult struct {
	Snapshot metrics.Snapshot
	Statuses map[int]int // ステータスコードごとの件数
}

// Load は Requests 件のリクエストを Concurrency 並列で送る
// 接続に失敗したリクエストは失敗として記録する
func (c *Client) Load(ctx context.Context, cfg LoadConfig) (*LoadResult, error) {
	if cfg.Requests < 0 {
		return nil, errors.New("client: requests must be non-negative")
	}
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = []string{"/"}
	}

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.NumWorkers = cfg.Concurrency
	poolConfig.Context = ctx
	poolConfig.Logger = logger.New(&bytes.Buffer{}, logger.LevelError)
	pool, err := worker.NewWithConfig(poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create load pool: %w", err)
	}

	m := metrics.New()
	codes := make([]atomic.Int64, 600)

	logger.Info("", "Load started (requests: %d, concurrency: %d)", cfg.Requests, cfg.Concurrency)

	for i := range cfg.Requests {
		if ctx.Err() != nil {
			break
		}
		path := paths[i%len(paths)]
		job := worker.JobFunc(func(ctx context.Context) error {
			start := time.Now()
			resp, err := c.Get(ctx, path)
			if err != nil {
				m.RecordFailure(time.Since(start))
				return err
			}
			m.RecordSuccess(time.Since(start))
			if resp.StatusCode >= 0 && resp.StatusCode < len(codes) {
				codes[resp.StatusCode].Add(1)
			}
			return nil
		})
		if err := pool.Submit(job); err != nil {
			break
		}
	}
	pool.Stop()

	result := &LoadResult{
		Snapshot: m.Snapshot(),
		Statuses: make(map[int]int),
	}
	for code := range codes {
		if n := codes[code].Load(); n > 0 {
			result.Statuses[code] = int(n)
		}
	}

	logger.Info("", "Load finished: %d requests, %d failed, p99 %v",
		result.Snapshot.TotalRequests, result.Snapshot.FailedRequests, result.Snapshot.P99Latency)
	return result, ctx.Err()
}
