package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// initialPingBackoff は接続確認リトライの初回遅延。
	initialPingBackoff = 500 * time.Millisecond
	// maxPingBackoff は接続確認リトライの最大遅延。
	maxPingBackoff = 8 * time.Second
)

// Pinger は接続確認が可能なDB接続。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ms、2倍ずつ増加、最大8秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialPingBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxPingBackoff {
			return maxPingBackoff
		}
	}
	return delay
}

// WaitForReady はDBが応答するまで指数バックオフでPingを繰り返す。
// ctxの期限切れまでに応答がなければ最後のエラーを返す。
func WaitForReady(ctx context.Context, db Pinger) error {
	for failures := 0; ; failures++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}

		delay := CalculateBackoff(failures)
		slog.Warn("database not ready, retrying",
			slog.Int("attempt", failures+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("database not ready: %w", err)
		case <-timer.C:
		}
	}
}
