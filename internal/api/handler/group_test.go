package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-court-reservation/internal/application"
	"github.com/sanosuguru/go-court-reservation/internal/domain/reservation"
)

// MockGroupService はGroupServiceInterfaceのモック
type MockGroupService struct {
	mock.Mock
}

func (m *MockGroupService) ApproveGroup(ctx context.Context, groupID string) (*application.GroupTransitionResult, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.GroupTransitionResult), args.Error(1)
}

func (m *MockGroupService) RejectGroup(ctx context.Context, groupID, reason string) (*application.GroupTransitionResult, error) {
	args := m.Called(ctx, groupID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.GroupTransitionResult), args.Error(1)
}

func (m *MockGroupService) RecordPayment(ctx context.Context, groupID string) (*application.GroupTransitionResult, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.GroupTransitionResult), args.Error(1)
}

func (m *MockGroupService) CancelGroup(ctx context.Context, groupID string) (*application.GroupTransitionResult, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.GroupTransitionResult), args.Error(1)
}

func (m *MockGroupService) AttachPaymentProof(ctx context.Context, groupID, ref string) (*reservation.Group, error) {
	args := m.Called(ctx, groupID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Group), args.Error(1)
}

func (m *MockGroupService) GrantNoExpiry(ctx context.Context, groupID string) (*reservation.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Group), args.Error(1)
}

func (m *MockGroupService) GetGroup(ctx context.Context, groupID string) (*reservation.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Group), args.Error(1)
}

func testGroup(id string) *reservation.Group {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	g := reservation.NewGroup("user-123", now)
	g.ID = id
	g.LineItems = []*reservation.Reservation{testReservation("res-123")}
	return g
}

func TestGroupHandler_GetByID(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常にグループを取得できる", func(t *testing.T) {
		mockService := new(MockGroupService)
		mockService.On("GetGroup", mock.Anything, "group-123").Return(testGroup("group-123"), nil)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/groups/group-123", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.GetByID(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "group-123", resp.ID)
		assert.Len(t, resp.LineItems, 1)

		mockService.AssertExpectations(t)
	})

	t.Run("グループが見つからない場合404", func(t *testing.T) {
		mockService := new(MockGroupService)
		mockService.On("GetGroup", mock.Anything, "nonexistent").
			Return(nil, reservation.ErrGroupNotFound)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodGet, "/groups/nonexistent", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("nonexistent")

		err := handler.GetByID(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, he.Code)
	})
}

func TestGroupHandler_Approve(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に承認できる", func(t *testing.T) {
		mockService := new(MockGroupService)
		g := testGroup("group-123")
		g.ApprovalStatus = reservation.ApprovalApproved
		mockService.On("ApproveGroup", mock.Anything, "group-123").
			Return(&application.GroupTransitionResult{Group: g}, nil)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/approve", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Approve(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupTransitionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.False(t, resp.AlreadyTerminal)
		assert.Equal(t, "approved", resp.Group.ApprovalStatus)
	})

	t.Run("既に終端状態の場合もno-opとして200", func(t *testing.T) {
		mockService := new(MockGroupService)
		mockService.On("ApproveGroup", mock.Anything, "group-123").
			Return(&application.GroupTransitionResult{
				AlreadyTerminal: true,
				Group:           testGroup("group-123"),
			}, nil)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/approve", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Approve(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupTransitionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.AlreadyTerminal)
	})

	t.Run("コートが混雑中の場合503", func(t *testing.T) {
		mockService := new(MockGroupService)
		mockService.On("ApproveGroup", mock.Anything, "group-123").
			Return(nil, reservation.ErrBusy)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/approve", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Approve(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, he.Code)
	})
}

func TestGroupHandler_Reject(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に却下できる", func(t *testing.T) {
		mockService := new(MockGroupService)
		g := testGroup("group-123")
		g.ApprovalStatus = reservation.ApprovalRejected
		mockService.On("RejectGroup", mock.Anything, "group-123", "規約違反のため").
			Return(&application.GroupTransitionResult{Group: g}, nil)

		handler := NewGroupHandler(mockService)

		reqBody := `{"reason": "規約違反のため"}`
		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/reject", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Reject(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		mockService.AssertExpectations(t)
	})

	t.Run("理由がない場合はバリデーションエラー", func(t *testing.T) {
		mockService := new(MockGroupService)
		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/reject", strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Reject(c)

		require.Error(t, err)
		mockService.AssertNotCalled(t, "RejectGroup", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGroupHandler_Pay(t *testing.T) {
	e := NewTestEcho()

	t.Run("支払いで確定した場合は競合エントリの取り消しも返す", func(t *testing.T) {
		mockService := new(MockGroupService)
		g := testGroup("group-123")
		g.ApprovalStatus = reservation.ApprovalApproved
		g.PaymentStatus = reservation.PaymentPaid
		mockService.On("RecordPayment", mock.Anything, "group-123").
			Return(&application.GroupTransitionResult{
				Group:                g,
				RejectedReservations: []*reservation.Reservation{testReservation("res-loser")},
			}, nil)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/pay", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.Pay(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupTransitionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "paid", resp.Group.PaymentStatus)
		assert.Len(t, resp.Rejected, 1)
	})
}

func TestGroupHandler_AttachPaymentProof(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に証憑を添付できる", func(t *testing.T) {
		mockService := new(MockGroupService)
		g := testGroup("group-123")
		ref := "bank-transfer-001"
		g.PaymentProofRef = &ref
		mockService.On("AttachPaymentProof", mock.Anything, "group-123", "bank-transfer-001").
			Return(g, nil)

		handler := NewGroupHandler(mockService)

		reqBody := `{"ref": "bank-transfer-001"}`
		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/payment-proof", strings.NewReader(reqBody))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.AttachPaymentProof(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.PaymentProofRef)
		assert.Equal(t, "bank-transfer-001", *resp.PaymentProofRef)
	})
}

func TestGroupHandler_GrantNoExpiry(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に無期限フラグを付与できる", func(t *testing.T) {
		mockService := new(MockGroupService)
		g := testGroup("group-123")
		g.NoExpiry = true
		mockService.On("GrantNoExpiry", mock.Anything, "group-123").Return(g, nil)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/no-expiry", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.GrantNoExpiry(c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp GroupResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.NoExpiry)
	})

	t.Run("既に終端状態のグループは400", func(t *testing.T) {
		mockService := new(MockGroupService)
		mockService.On("GrantNoExpiry", mock.Anything, "group-123").
			Return(nil, reservation.ErrAlreadyTerminal)

		handler := NewGroupHandler(mockService)

		req := httptest.NewRequest(http.MethodPost, "/groups/group-123/no-expiry", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("group-123")

		err := handler.GrantNoExpiry(c)

		require.Error(t, err)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadRequest, he.Code)
	})
}
