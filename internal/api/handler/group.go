package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
)

type GroupHandler struct {
	service GroupServiceInterface
}

func NewGroupHandler(s GroupServiceInterface) *GroupHandler {
	return &GroupHandler{service: s}
}

type RejectGroupRequest struct {
	Reason string `json:"reason" validate:"required" example:"規約違反のため"`
}

type AttachPaymentProofRequest struct {
	Ref string `json:"ref" validate:"required" example:"bank-transfer-20260829-001"`
}

type GroupResponse struct {
	ID              string                `json:"id"`
	RequesterID     string                `json:"requester_id"`
	ApprovalStatus  string                `json:"approval_status"`
	PaymentStatus   string                `json:"payment_status"`
	NoExpiry        bool                  `json:"no_expiry"`
	PaymentProofRef *string               `json:"payment_proof_ref,omitempty"`
	RejectReason    *string               `json:"reject_reason,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	LineItems       []ReservationResponse `json:"line_items"`
	CreatedAt       time.Time             `json:"created_at"`
}

type GroupTransitionResponse struct {
	AlreadyTerminal bool                    `json:"already_terminal"`
	Group           GroupResponse           `json:"group"`
	Promoted        []ReservationResponse   `json:"promoted,omitempty"`
	Rejected        []ReservationResponse   `json:"rejected,omitempty"`
	ClosedEntries   []WaitlistEntryResponse `json:"closed_entries,omitempty"`
}

func toGroupResponse(g *reservation.Group) GroupResponse {
	items := make([]ReservationResponse, len(g.LineItems))
	for i, item := range g.LineItems {
		items[i] = toReservationResponse(item)
	}
	return GroupResponse{
		ID: g.ID, RequesterID: g.RequesterID,
		ApprovalStatus: string(g.ApprovalStatus), PaymentStatus: string(g.PaymentStatus),
		NoExpiry: g.NoExpiry, PaymentProofRef: g.PaymentProofRef,
		RejectReason: g.RejectReason, CancelledAt: g.CancelledAt,
		LineItems: items, CreatedAt: g.CreatedAt,
	}
}

func toGroupTransitionResponse(r *application.GroupTransitionResult) GroupTransitionResponse {
	resp := GroupTransitionResponse{
		AlreadyTerminal: r.AlreadyTerminal,
		Group:           toGroupResponse(r.Group),
	}
	for _, p := range r.Promoted {
		resp.Promoted = append(resp.Promoted, toReservationResponse(p))
	}
	for _, rej := range r.RejectedReservations {
		resp.Rejected = append(resp.Rejected, toReservationResponse(rej))
	}
	for _, e := range r.ClosedEntries {
		resp.ClosedEntries = append(resp.ClosedEntries, toWaitlistEntryResponse(e))
	}
	return resp
}

// GetByID godoc
// @Summary グループを明細込みで取得
// @Tags groups
// @Produce json
// @Param id path string true "グループID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string
// @Router /groups/{id} [get]
func (h *GroupHandler) GetByID(c echo.Context) error {
	g, err := h.service.GetGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupResponse(g))
}

// Approve godoc
// @Summary グループを承認
// @Description グループと全明細を承認済みにし、確定した場合はウェイトリスト連鎖を駆動します
// @Tags groups
// @Produce json
// @Param id path string true "グループID"
// @Success 200 {object} GroupTransitionResponse
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string "コートが混雑中"
// @Router /groups/{id}/approve [post]
func (h *GroupHandler) Approve(c echo.Context) error {
	result, err := h.service.ApproveGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupTransitionResponse(result))
}

// Reject godoc
// @Summary グループを却下
// @Tags groups
// @Accept json
// @Produce json
// @Param id path string true "グループID"
// @Param request body RejectGroupRequest true "却下理由"
// @Success 200 {object} GroupTransitionResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /groups/{id}/reject [post]
func (h *GroupHandler) Reject(c echo.Context) error {
	var req RejectGroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	result, err := h.service.RejectGroup(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupTransitionResponse(result))
}

// Pay godoc
// @Summary グループの支払いを記録
// @Description 支払済みにし、確定した場合は競合ウェイトリストの解決を駆動します
// @Tags groups
// @Produce json
// @Param id path string true "グループID"
// @Success 200 {object} GroupTransitionResponse
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string "コートが混雑中"
// @Router /groups/{id}/pay [post]
func (h *GroupHandler) Pay(c echo.Context) error {
	result, err := h.service.RecordPayment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupTransitionResponse(result))
}

// Cancel godoc
// @Summary グループを取り消す
// @Description 全明細を取り消し、解放された時間帯の繰り上げを駆動します
// @Tags groups
// @Produce json
// @Param id path string true "グループID"
// @Success 200 {object} GroupTransitionResponse
// @Failure 404 {object} map[string]string
// @Router /groups/{id}/cancel [post]
func (h *GroupHandler) Cancel(c echo.Context) error {
	result, err := h.service.CancelGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupTransitionResponse(result))
}

// AttachPaymentProof godoc
// @Summary 支払証憑への参照を添付
// @Description 添付されたグループは自動失効の免除対象になります
// @Tags groups
// @Accept json
// @Produce json
// @Param id path string true "グループID"
// @Param request body AttachPaymentProofRequest true "証憑参照"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /groups/{id}/payment-proof [post]
func (h *GroupHandler) AttachPaymentProof(c echo.Context) error {
	var req AttachPaymentProofRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	g, err := h.service.AttachPaymentProof(c.Request().Context(), c.Param("id"), req.Ref)
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupResponse(g))
}

// GrantNoExpiry godoc
// @Summary 無期限フラグを付与
// @Description 運営者操作。付与されたグループは自動失効しません
// @Tags groups
// @Produce json
// @Param id path string true "グループID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string
// @Router /groups/{id}/no-expiry [post]
func (h *GroupHandler) GrantNoExpiry(c echo.Context) error {
	g, err := h.service.GrantNoExpiry(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, toGroupResponse(g))
}
