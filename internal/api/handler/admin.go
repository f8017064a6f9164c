package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-court-reservation/internal/application"
)

// AdminHandler は運用操作のハンドラー
// スイープとリコンサイルはワーカーが定期実行するが、
// 障害対応などで手動実行できるようエンドポイントも用意する
type AdminHandler struct {
	sweep     SweepServiceInterface
	reconcile ReconcileServiceInterface
}

func NewAdminHandler(sweep SweepServiceInterface, reconcile ReconcileServiceInterface) *AdminHandler {
	return &AdminHandler{sweep: sweep, reconcile: reconcile}
}

type SweepResponse struct {
	Expired           int `json:"expired"`
	Promoted          int `json:"promoted"`
	CancelledWaitlist int `json:"cancelled_waitlist"`
}

type ReconcileResponse struct {
	Repaired int `json:"repaired"`
	Flagged  int `json:"flagged"`
}

// RunSweep godoc
// @Summary 自動失効スイープを手動実行
// @Tags admin
// @Produce json
// @Success 200 {object} SweepResponse
// @Router /admin/sweep [post]
func (h *AdminHandler) RunSweep(c echo.Context) error {
	result, err := h.sweep.RunExpirationSweep(c.Request().Context(), time.Now())
	if err != nil {
		if errors.Is(err, application.ErrSweepInProgress) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SweepResponse{
		Expired:           result.Expired,
		Promoted:          result.Promoted,
		CancelledWaitlist: result.CancelledWaitlist,
	})
}

// RunReconcile godoc
// @Summary 整合性検査を手動実行
// @Tags admin
// @Produce json
// @Success 200 {object} ReconcileResponse
// @Router /admin/reconcile [post]
func (h *AdminHandler) RunReconcile(c echo.Context) error {
	result, err := h.reconcile.RunReconciliation(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ReconcileResponse{
		Repaired: result.Repaired,
		Flagged:  result.Flagged,
	})
}
