// internal/service/order/infrastructure/adapter/inventory_http_adapter.go
package adapter

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/httpclient"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/pkg/nacos"
	"github.com/trvannhanh/elaris-marketplace-sub000/internal/service/order/domain/port"
)

const inventoryServiceName = "inventory-service"

// InventoryHTTPAdapter 通过 Nacos 发现库存服务并调用其同步预检查接口。
// 这是咨询性的只读调用，带超时，从不作为正确性的唯一闸门。
type InventoryHTTPAdapter struct {
	client  *httpclient.Client
	nacos   *nacos.Client
	timeout time.Duration
}

func NewInventoryHTTPAdapter(client *httpclient.Client, nacosClient *nacos.Client, timeout time.Duration) *InventoryHTTPAdapter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &InventoryHTTPAdapter{client: client, nacos: nacosClient, timeout: timeout}
}

func (a *InventoryHTTPAdapter) CheckStock(ctx context.Context, productID string, quantity int) (*port.StockCheckResult, error) {
	baseURL, err := a.nacos.DiscoverServiceURL(inventoryServiceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover inventory service")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("productId", productID)
	params.Set("quantity", strconv.Itoa(quantity))

	var result port.StockCheckResult
	if err := a.client.GetJSON(ctx, baseURL+"/check_stock", params, &result); err != nil {
		return nil, errors.Wrap(err, "stock check call failed")
	}
	return &result, nil
}
