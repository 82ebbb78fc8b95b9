// internal/service/order/domain/errors.go
package domain

import "errors"

var (
	// ErrOrderNotFound 订单（Saga 实例）不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrPrecheckRejected 下单前的同步预检查未通过
	ErrPrecheckRejected = errors.New("order precheck rejected")
	// ErrInvalidOrder 订单请求缺少必要字段
	ErrInvalidOrder = errors.New("order must have a user and at least one line item")
)
