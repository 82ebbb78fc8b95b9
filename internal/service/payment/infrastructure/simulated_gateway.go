// internal/service/payment/infrastructure/simulated_gateway.go
package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/payment/domain"
)

// SimulatedGateway 是 domain.Gateway 的本地模拟实现，确定性规则：
// 金额超过 DeclineAbove 的授权被终态拒绝（模拟余额不足），
// 其余全部成功。FailNext 可以注入若干次瞬时失败来演练重试路径。
type SimulatedGateway struct {
	DeclineAbove float64

	mu       sync.Mutex
	failNext int
	holds    map[string]float64
}

func NewSimulatedGateway(declineAbove float64) *SimulatedGateway {
	if declineAbove <= 0 {
		declineAbove = 100000
	}
	return &SimulatedGateway{DeclineAbove: declineAbove, holds: make(map[string]float64)}
}

// FailNext 让接下来的 n 次网关调用返回瞬时失败
func (g *SimulatedGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
}

func (g *SimulatedGateway) transientInjected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext > 0 {
		g.failNext--
		return true
	}
	return false
}

func (g *SimulatedGateway) Authorize(_ context.Context, orderID, userID string, amount float64) (string, error) {
	if g.transientInjected() {
		return "", &domain.GatewayError{Transient: true, Reason: "processor timeout"}
	}
	if amount > g.DeclineAbove {
		return "", &domain.GatewayError{Reason: fmt.Sprintf("insufficient funds for user %s", userID)}
	}
	txID := "txn-" + uuid.NewString()
	g.mu.Lock()
	g.holds[txID] = amount
	g.mu.Unlock()
	return txID, nil
}

func (g *SimulatedGateway) Capture(_ context.Context, transactionID string) error {
	if g.transientInjected() {
		return &domain.GatewayError{Transient: true, Reason: "processor timeout"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.holds[transactionID]; !ok {
		return &domain.GatewayError{Reason: "unknown transaction " + transactionID}
	}
	return nil
}

func (g *SimulatedGateway) Void(_ context.Context, transactionID string) error {
	if g.transientInjected() {
		return &domain.GatewayError{Transient: true, Reason: "processor timeout"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.holds, transactionID)
	return nil
}

func (g *SimulatedGateway) Refund(_ context.Context, transactionID string, amount float64) error {
	if g.transientInjected() {
		return &domain.GatewayError{Transient: true, Reason: "processor timeout"}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.holds[transactionID]; !ok {
		return &domain.GatewayError{Reason: "unknown transaction " + transactionID}
	}
	return nil
}
