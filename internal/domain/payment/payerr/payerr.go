package payerr

import (
	"errors"
	"fmt"
)

// Code 支付错误分类
type Code string

const (
	ParamInvalid          Code = "PARAM_INVALID"
	InvalidConfig         Code = "INVALID_CONFIG"
	NotSupported          Code = "NOT_SUPPORTED"
	ProviderInternalError Code = "PROVIDER_INTERNAL_ERROR"
	InvokeFailed          Code = "INVOKE_FAILED"
	PluginError           Code = "PLUGIN_ERROR"
	PluginInterrupt       Code = "PLUGIN_INTERRUPT"
	NoInvokerFound        Code = "NO_INVOKER_FOUND"
	Unknown               Code = "UNKNOWN"
)

// PayError 支付流程中对外暴露的错误
type PayError struct {
	Code    Code
	Message string
	// Plugin / Hook 仅在插件相关错误中填写
	Plugin string
	Hook   string
	Err    error
}

func (e *PayError) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Plugin != "" {
		msg += fmt.Sprintf(" (plugin=%s hook=%s)", e.Plugin, e.Hook)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PayError) Unwrap() error {
	return e.Err
}

// New 创建错误
func New(code Code, format string, args ...any) *PayError {
	return &PayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(code Code, err error, format string, args ...any) *PayError {
	return &PayError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Normalize 将任意错误归一到错误分类，非 PayError 包装为 Unknown 并保留原始信息
func Normalize(err error) *PayError {
	if err == nil {
		return nil
	}
	var pe *PayError
	if errors.As(err, &pe) {
		return pe
	}
	return &PayError{Code: Unknown, Message: err.Error(), Err: err}
}

// CodeOf 返回错误分类，非 PayError 返回 Unknown
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// Is 判断错误是否属于某个分类
func Is(err error, code Code) bool {
	var pe *PayError
	return errors.As(err, &pe) && pe.Code == code
}
