// internal/service/payment/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotFound 支付单不存在
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrInvalidStatusTransition 当前状态下不允许该操作，属于不变量约束
	ErrInvalidStatusTransition = errors.New("invalid payment status transition")
	// ErrRefundExceedsCaptured 退款总额不得超过已捕获金额
	ErrRefundExceedsCaptured = errors.New("refund amount exceeds captured amount")
	// ErrInvalidAmount 金额必须为正
	ErrInvalidAmount = errors.New("amount must be positive")
)

// GatewayError 外部支付网关返回的错误。
// Transient 为 true 时（网络抖动、网关过载）可以有界重试，
// 否则是终态拒绝（余额不足、卡被冻结），重试没有意义。
type GatewayError struct {
	Transient bool
	Reason    string
}

func (e *GatewayError) Error() string {
	if e.Transient {
		return fmt.Sprintf("gateway transient failure: %s", e.Reason)
	}
	return fmt.Sprintf("gateway declined: %s", e.Reason)
}

// IsTransientGatewayError 判断错误是否值得重试
func IsTransientGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Transient
}
