package handler

import (
	"net/http"
	"strconv"

	"cashier/internal/domain/payment/model"
	"cashier/internal/domain/payment/payerr"
	"cashier/internal/domain/payment/repository"
	"cashier/internal/domain/payment/service"
	"cashier/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	sessions *service.SessionManager
	journal  repository.JournalRepository
}

// NewPaymentHandler journal 为 nil 时不提供流水查询
func NewPaymentHandler(sessions *service.SessionManager, journal repository.JournalRepository) *PaymentHandler {
	return &PaymentHandler{sessions: sessions, journal: journal}
}

type PayInput struct {
	Strategy string          `json:"strategy" binding:"required"`
	Params   model.PayParams `json:"params" binding:"required"`
}

type PollingInput struct {
	Strategy string `json:"strategy" binding:"required"`
	OrderID  string `json:"orderId" binding:"required"`
}

// StateView PaymentState 的接口表示
type StateView struct {
	Status    model.Status     `json:"status"`
	Loading   bool             `json:"loading"`
	Result    *model.PayResult `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorCode payerr.Code      `json:"errorCode,omitempty"`
	Polling   bool             `json:"polling"`
}

func newStateView(st model.PaymentState, polling bool) StateView {
	v := StateView{
		Status:  st.Status,
		Loading: st.Loading,
		Result:  st.Result,
		Polling: polling,
	}
	if st.Error != nil {
		v.Error = st.ErrorMessage()
		v.ErrorCode = payerr.CodeOf(st.Error)
	}
	return v
}

// CreateSession 创建收银会话
// @Summary 创建收银会话
// @Tags Payment
// @Produce json
// @Success 200 {object} response.Response{data=map[string]string}
// @Router /api/v1/payment/sessions [post]
func (h *PaymentHandler) CreateSession(c *gin.Context) {
	s := h.sessions.Create()
	response.Success(c, gin.H{"sessionId": s.ID})
}

// Pay 发起支付
// @Summary 发起支付
// @Tags Payment
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param input body PayInput true "Strategy and params"
// @Success 200 {object} response.Response{data=model.PayResult}
// @Router /api/v1/payment/sessions/{id}/pay [post]
func (h *PaymentHandler) Pay(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var input PayInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := s.Context.Execute(c.Request.Context(), input.Strategy, input.Params)
	if err != nil {
		respondPayError(c, err)
		return
	}
	response.Success(c, result)
}

// GetState 查询会话状态
// @Summary 查询会话状态
// @Tags Payment
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=StateView}
// @Router /api/v1/payment/sessions/{id} [get]
func (h *PaymentHandler) GetState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, newStateView(s.Context.State(), s.Context.Polling()))
}

// StartPolling 开始查单轮询
// @Summary 开始查单轮询
// @Tags Payment
// @Accept json
// @Param id path string true "Session ID"
// @Param input body PollingInput true "Strategy and order"
// @Router /api/v1/payment/sessions/{id}/polling [post]
func (h *PaymentHandler) StartPolling(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var input PollingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}
	if err := s.Context.StartPolling(input.Strategy, input.OrderID); err != nil {
		respondPayError(c, err)
		return
	}
	response.Success(c, newStateView(s.Context.State(), true))
}

// StopPolling 停止查单轮询
// @Summary 停止查单轮询
// @Tags Payment
// @Param id path string true "Session ID"
// @Router /api/v1/payment/sessions/{id}/polling [delete]
func (h *PaymentHandler) StopPolling(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Context.StopPolling()
	response.Success(c, newStateView(s.Context.State(), false))
}

// Reset 重置会话状态
// @Summary 重置会话状态
// @Tags Payment
// @Param id path string true "Session ID"
// @Router /api/v1/payment/sessions/{id}/reset [post]
func (h *PaymentHandler) Reset(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Context.Reset()
	response.Success(c, newStateView(s.Context.State(), s.Context.Polling()))
}

// DestroySession 销毁会话
// @Summary 销毁会话
// @Tags Payment
// @Param id path string true "Session ID"
// @Router /api/v1/payment/sessions/{id} [delete]
func (h *PaymentHandler) DestroySession(c *gin.Context) {
	if !h.sessions.Remove(c.Param("id")) {
		response.Error(c, http.StatusNotFound, response.ErrSessionNotFound, "session not found")
		return
	}
	response.Success(c, nil)
}

// ListJournal 查询订单支付流水
// @Summary 查询订单支付流水
// @Tags Payment
// @Param order_id path string true "Order ID"
// @Param limit query int false "Max entries"
// @Router /api/v1/payment/journal/{order_id} [get]
func (h *PaymentHandler) ListJournal(c *gin.Context) {
	if h.journal == nil {
		response.Error(c, http.StatusNotFound, response.ErrInvalidParam, "journal is disabled")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "limit must be between 1 and 500")
		return
	}

	entries, err := h.journal.ListByOrder(c.Request.Context(), c.Param("order_id"), limit)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "query journal failed")
		return
	}
	response.Success(c, entries)
}

func (h *PaymentHandler) session(c *gin.Context) (*service.Session, bool) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		response.Error(c, http.StatusNotFound, response.ErrSessionNotFound, "session not found")
		return nil, false
	}
	return s, true
}
