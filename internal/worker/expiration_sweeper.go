package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/metrics"
)

// Sweeper は期限切れ予約の失効処理を実行するインターフェース
type Sweeper interface {
	RunExpirationSweep(ctx context.Context, now time.Time) (*application.SweepResult, error)
}

// ExpirationSweeper は支払期限切れ予約を定期的に失効させるワーカー
type ExpirationSweeper struct {
	sweepService Sweeper
	interval     time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// NewExpirationSweeper は新しいスイーパーを作成
func NewExpirationSweeper(s Sweeper, interval time.Duration) *ExpirationSweeper {
	return &ExpirationSweeper{
		sweepService: s,
		interval:     interval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (w *ExpirationSweeper) Start(ctx context.Context) {
	logger.Info("自動失効スイーパー開始", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("自動失効スイーパー停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("自動失効スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (w *ExpirationSweeper) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// sweep はスイープを1回実行
func (w *ExpirationSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("自動失効スイープ開始")

	started := time.Now()
	result, err := w.sweepService.RunExpirationSweep(ctx, time.Now())
	if err != nil {
		// 手動実行と重なった場合は次のティックに回す
		if errors.Is(err, application.ErrSweepInProgress) {
			log.Debug("別のスイープが実行中のためスキップ")
			return
		}
		log.Error("自動失効スイープ失敗", zap.Error(err))
		return
	}

	if m := metrics.Get(); m != nil {
		m.SweepDuration.Observe(time.Since(started).Seconds())
		m.SweepItemsTotal.WithLabelValues("expired").Add(float64(result.Expired))
		m.SweepItemsTotal.WithLabelValues("promoted").Add(float64(result.Promoted))
		m.SweepItemsTotal.WithLabelValues("cancelled_waitlist").Add(float64(result.CancelledWaitlist))
		m.WaitlistPromotionsTotal.Add(float64(result.Promoted))
	}

	if result.Expired > 0 {
		log.Info("期限切れ予約を失効",
			zap.Int("expired", result.Expired),
			zap.Int("promoted", result.Promoted),
			zap.Int("cancelled_waitlist", result.CancelledWaitlist),
		)
	} else {
		log.Debug("期限切れ予約なし")
	}
}
