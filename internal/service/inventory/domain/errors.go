// internal/service/inventory/domain/errors.go
package domain

import "errors"

var (
	// ErrProductNotFound 商品不存在
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock 可用库存不足，属于不变量约束，不可重试
	ErrInsufficientStock = errors.New("insufficient available stock")
	// ErrReservationNotFound 不存在可操作的预占记录
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrInvalidQuantity 数量必须为正
	ErrInvalidQuantity = errors.New("quantity must be positive")
)
