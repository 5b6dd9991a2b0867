package xerr

import (
	"errors"
	"fmt"
)

// 错误码定义（HTTP 侧按码映射状态）
const (
	OK                 = 200
	RequestParamsError = 400 // 参数缺失/非法
	AuthError          = 401 // 会话无效或过期
	RecordNotFound     = 404 // 用户/记录不存在
	ServerCommonError  = 500
	DbError            = 501 // 数据库繁忙/事务失败
	RateError          = 502 // 汇率源不可用
	BridgeError        = 503 // 跨链兑换失败
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Code 取错误码；非 CodeError 一律按 500 处理
func Code(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case RequestParamsError:
		return "参数错误"
	case AuthError:
		return "会话无效"
	case RecordNotFound:
		return "记录不存在"
	case DbError:
		return "数据库繁忙"
	case RateError:
		return "汇率源不可用"
	case BridgeError:
		return "跨链兑换失败"
	default:
		return "服务器开小差了"
	}
}
