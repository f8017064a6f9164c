package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/metrics"
)

// Reconciling は整合性検査と修復を実行するインターフェース
type Reconciling interface {
	RunReconciliation(ctx context.Context) (*application.ReconcileResult, error)
}

// Reconciler は整合性検査を定期実行するワーカー
type Reconciler struct {
	reconcileService Reconciling
	interval         time.Duration
	stopCh           chan struct{}
	doneCh           chan struct{}
}

// NewReconciler は新しいリコンサイラーを作成
func NewReconciler(s Reconciling, interval time.Duration) *Reconciler {
	return &Reconciler{
		reconcileService: s,
		interval:         interval,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start はリコンサイラーを開始
func (w *Reconciler) Start(ctx context.Context) {
	logger.Info("整合性リコンサイラー開始", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("整合性リコンサイラー停止（コンテキストキャンセル）")
			return
		case <-w.stopCh:
			logger.Info("整合性リコンサイラー停止（シグナル受信）")
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// Stop はリコンサイラーを停止
func (w *Reconciler) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// reconcile は整合性検査を1回実行
func (w *Reconciler) reconcile(ctx context.Context) {
	log := logger.Get()
	log.Debug("整合性検査開始")

	result, err := w.reconcileService.RunReconciliation(ctx)
	if err != nil {
		log.Error("整合性検査失敗", zap.Error(err))
		return
	}

	if m := metrics.Get(); m != nil {
		m.ReconcileItemsTotal.WithLabelValues("repaired").Add(float64(result.Repaired))
		m.ReconcileItemsTotal.WithLabelValues("flagged").Add(float64(result.Flagged))
	}

	if result.Repaired > 0 || result.Flagged > 0 {
		log.Warn("整合性違反を処理",
			zap.Int("repaired", result.Repaired),
			zap.Int("flagged", result.Flagged),
		)
	} else {
		log.Debug("整合性違反なし")
	}
}
