// internal/service/inventory/domain/events.go
package domain

// 库存服务的消息主题
const (
	TopicInventoryCommands = "inventory-commands"
	TopicInventoryEvents   = "inventory-events"
)

// 命令与事件的类型标识，随消息头 event-type 传递
const (
	CmdReserveInventory = "inventory.reserve"
	CmdConfirmInventory = "inventory.confirm"
	CmdReleaseInventory = "inventory.release"

	EventItemsReserved   = "inventory.items_reserved"
	EventStockRejected   = "inventory.stock_rejected"
	EventInventoryUpdate = "inventory.updated"
	EventInventoryFailed = "inventory.failed"
)

// ItemLine 一条订单行
type ItemLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ReserveInventoryCommand 由编排器发出的预占命令
type ReserveInventoryCommand struct {
	OrderID string     `json:"orderId"`
	Items   []ItemLine `json:"items"`
}

// ConfirmInventoryCommand 把预占转为永久扣减
type ConfirmInventoryCommand struct {
	OrderID string     `json:"orderId"`
	Items   []ItemLine `json:"items"`
}

// ReleaseInventoryCommand 补偿命令，归还预占
type ReleaseInventoryCommand struct {
	OrderID string     `json:"orderId"`
	Items   []ItemLine `json:"items"`
}

// ItemsReservedEvent 预占成功的结果事件
type ItemsReservedEvent struct {
	OrderID string     `json:"orderId"`
	Items   []ItemLine `json:"items"`
}

// StockRejectedEvent 预占被拒绝的结果事件
type StockRejectedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// InventoryUpdatedEvent 永久扣减完成的结果事件
type InventoryUpdatedEvent struct {
	OrderID string `json:"orderId"`
}

// InventoryFailedEvent 确认失败的结果事件
type InventoryFailedEvent struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}
