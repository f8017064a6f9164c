package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-court-reservation/internal/domain/waitlist"
	"github.com/sanosuguru/go-court-reservation/internal/pkg/metrics"
)

type BookingHandler struct {
	service AdmissionServiceInterface
}

func NewBookingHandler(s AdmissionServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type AttemptBookingRequest struct {
	CourtID string    `json:"court_id" validate:"required" example:"court-1"`
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
	GroupID *string   `json:"group_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
}

type ReservationResponse struct {
	ID              string     `json:"id"`
	RequesterID     string     `json:"requester_id"`
	CourtID         string     `json:"court_id"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	GroupID         *string    `json:"group_id,omitempty"`
	ApprovalStatus  string     `json:"approval_status"`
	PaymentStatus   string     `json:"payment_status"`
	LifecycleStatus string     `json:"lifecycle_status"`
	PaymentDeadline *time.Time `json:"payment_deadline,omitempty"`
	Amount          int        `json:"amount"`
	CreatedAt       time.Time  `json:"created_at"`
}

type WaitlistEntryResponse struct {
	ID                    string     `json:"id"`
	RequesterID           string     `json:"requester_id"`
	CourtID               string     `json:"court_id"`
	StartAt               time.Time  `json:"start_at"`
	EndAt                 time.Time  `json:"end_at"`
	Position              int        `json:"position"`
	Status                string     `json:"status"`
	NotifiedAt            *time.Time `json:"notified_at,omitempty"`
	PaymentDeadline       *time.Time `json:"payment_deadline,omitempty"`
	PromotedReservationID *string    `json:"promoted_reservation_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

type BookingOutcomeResponse struct {
	Outcome       string                 `json:"outcome"`
	Reservation   *ReservationResponse   `json:"reservation,omitempty"`
	WaitlistEntry *WaitlistEntryResponse `json:"waitlist_entry,omitempty"`
}

func toReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID: r.ID, RequesterID: r.RequesterID,
		CourtID: r.Interval.CourtID, StartAt: r.Interval.StartAt, EndAt: r.Interval.EndAt,
		GroupID:        r.GroupID,
		ApprovalStatus: string(r.ApprovalStatus), PaymentStatus: string(r.PaymentStatus),
		LifecycleStatus: string(r.LifecycleStatus),
		PaymentDeadline: r.PaymentDeadline, Amount: r.Amount, CreatedAt: r.CreatedAt,
	}
}

func toWaitlistEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID: e.ID, RequesterID: e.RequesterID,
		CourtID: e.Interval.CourtID, StartAt: e.Interval.StartAt, EndAt: e.Interval.EndAt,
		Position: e.Position, Status: string(e.Status),
		NotifiedAt: e.NotifiedAt, PaymentDeadline: e.PaymentDeadline,
		PromotedReservationID: e.PromotedReservationID, CreatedAt: e.CreatedAt,
	}
}

// Attempt godoc
// @Summary 予約を申し込む
// @Description 空きがあれば予約を作成し、仮予約と競合する場合はウェイトリストに登録します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "申込者ID"
// @Param request body AttemptBookingRequest true "申込み内容"
// @Success 201 {object} BookingOutcomeResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} BookingOutcomeResponse "確定済み予約と競合"
// @Failure 503 {object} map[string]string "コートが混雑中"
// @Router /bookings [post]
func (h *BookingHandler) Attempt(c echo.Context) error {
	requesterID := c.Request().Header.Get("X-User-ID")
	if requesterID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "申込者IDが必要です")
	}
	var req AttemptBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	outcome, err := h.service.AttemptBooking(c.Request().Context(), application.AttemptBookingInput{
		RequesterID: requesterID,
		CourtID:     req.CourtID,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		GroupID:     req.GroupID,
	})
	if err != nil {
		recordBookingOutcome(outcomeLabel(err))
		return domainHTTPError(c, err)
	}
	recordBookingOutcome(string(outcome.Kind))

	resp := BookingOutcomeResponse{Outcome: string(outcome.Kind)}
	if outcome.Reservation != nil {
		r := toReservationResponse(outcome.Reservation)
		resp.Reservation = &r
	}
	if outcome.WaitlistEntry != nil {
		e := toWaitlistEntryResponse(outcome.WaitlistEntry)
		resp.WaitlistEntry = &e
	}

	// 確定済み予約に押さえられた時間帯は 409 で返す
	if outcome.Kind == application.OutcomeSlotConfirmed {
		return c.JSON(http.StatusConflict, resp)
	}
	return c.JSON(http.StatusCreated, resp)
}

// GetReservation godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 404 {object} map[string]string
// @Router /reservations/{id} [get]
func (h *BookingHandler) GetReservation(c echo.Context) error {
	r, err := h.service.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// CheckIn godoc
// @Summary 予約をチェックインする
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /reservations/{id}/check-in [post]
func (h *BookingHandler) CheckIn(c echo.Context) error {
	r, err := h.service.CheckInReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// Complete godoc
// @Summary 予約を完了にする
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} ReservationResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /reservations/{id}/complete [post]
func (h *BookingHandler) Complete(c echo.Context) error {
	r, err := h.service.CompleteReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResponse(r))
}

// GetWaitlist godoc
// @Summary 指定時間帯のウェイトリストを取得
// @Tags waitlist
// @Produce json
// @Param id path string true "コートID"
// @Param start_at query string true "開始時刻（RFC3339）"
// @Param end_at query string true "終了時刻（RFC3339）"
// @Success 200 {array} WaitlistEntryResponse
// @Failure 400 {object} map[string]string
// @Router /courts/{id}/waitlist [get]
func (h *BookingHandler) GetWaitlist(c echo.Context) error {
	startAt, err := time.Parse(time.RFC3339, c.QueryParam("start_at"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start_at はRFC3339形式で指定してください")
	}
	endAt, err := time.Parse(time.RFC3339, c.QueryParam("end_at"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end_at はRFC3339形式で指定してください")
	}

	entries, err := h.service.GetWaitlistForInterval(c.Request().Context(), c.Param("id"), startAt, endAt)
	if err != nil {
		return domainHTTPError(c, err)
	}
	resp := make([]WaitlistEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = toWaitlistEntryResponse(e)
	}
	return c.JSON(http.StatusOK, resp)
}

// domainHTTPError はドメインエラーをHTTPステータスに対応づける
func domainHTTPError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, reservation.ErrReservationNotFound),
		errors.Is(err, reservation.ErrGroupNotFound),
		errors.Is(err, waitlist.ErrEntryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, reservation.ErrBusy):
		c.Response().Header().Set("Retry-After", "1")
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, reservation.ErrInvalidInterval),
		errors.Is(err, reservation.ErrCourtIDRequired),
		errors.Is(err, reservation.ErrRequesterIDRequired),
		errors.Is(err, reservation.ErrAlreadyTerminal),
		errors.Is(err, reservation.ErrNotConfirmed),
		errors.Is(err, reservation.ErrNotCheckedIn):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func outcomeLabel(err error) string {
	if errors.Is(err, reservation.ErrBusy) {
		return "busy"
	}
	return "error"
}

func recordBookingOutcome(outcome string) {
	if m := metrics.Get(); m != nil {
		m.BookingAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}
