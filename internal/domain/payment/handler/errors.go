package handler

import (
	"net/http"

	"cashier/internal/domain/payment/payerr"
	"cashier/internal/pkg/middleware"
	"cashier/pkg/response"

	"github.com/gin-gonic/gin"
)

type errorMapping struct {
	status int
	code   int
}

var payErrorMappings = map[payerr.Code]errorMapping{
	payerr.ParamInvalid:          {http.StatusBadRequest, response.ErrPayParamInvalid},
	payerr.InvalidConfig:         {http.StatusBadRequest, response.ErrPayInvalidConfig},
	payerr.NotSupported:          {http.StatusUnprocessableEntity, response.ErrPayNotSupported},
	payerr.NoInvokerFound:        {http.StatusUnprocessableEntity, response.ErrPayNoInvokerFound},
	payerr.PluginInterrupt:       {http.StatusConflict, response.ErrPayPluginInterrupt},
	payerr.ProviderInternalError: {http.StatusBadGateway, response.ErrPayProviderInternal},
	payerr.InvokeFailed:          {http.StatusBadGateway, response.ErrPayInvokeFailed},
	payerr.PluginError:           {http.StatusInternalServerError, response.ErrPayPluginError},
	payerr.Unknown:               {http.StatusInternalServerError, response.ErrPayUnknown},
}

// respondPayError 将支付错误分类映射为 HTTP 状态和业务码
func respondPayError(c *gin.Context, err error) {
	pe := payerr.Normalize(err)
	m, ok := payErrorMappings[pe.Code]
	if !ok {
		m = payErrorMappings[payerr.Unknown]
	}
	_ = c.Error(err)
	response.ErrorWithData(c, m.status, m.code, pe.Error(), ErrorDetail{
		ErrorCode: pe.Code,
		Plugin:    pe.Plugin,
		Hook:      pe.Hook,
		TraceID:   middleware.TraceID(c.Request.Context()),
	})
}

// ErrorDetail 支付失败时的排查信息
type ErrorDetail struct {
	ErrorCode payerr.Code `json:"errorCode"`
	Plugin    string      `json:"plugin,omitempty"`
	Hook      string      `json:"hook,omitempty"`
	TraceID   string      `json:"traceId,omitempty"`
}
