// internal/service/order/infrastructure/adapter/payment_http_adapter.go
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

const paymentServiceName = "payment-service"

// PaymentHTTPAdapter 通过 Nacos 发现支付服务并调用其预授权接口。
// 预授权是咨询性探测，支付侧不落任何持久化状态。
type PaymentHTTPAdapter struct {
	client  *httpclient.Client
	nacos   *nacos.Client
	timeout time.Duration
}

func NewPaymentHTTPAdapter(client *httpclient.Client, nacosClient *nacos.Client, timeout time.Duration) *PaymentHTTPAdapter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PaymentHTTPAdapter{client: client, nacos: nacosClient, timeout: timeout}
}

func (a *PaymentHTTPAdapter) PreAuthorize(ctx context.Context, orderID, userID string, amount float64) (*port.PreAuthResult, error) {
	baseURL, err := a.nacos.DiscoverServiceURL(paymentServiceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to discover payment service")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("orderId", orderID)
	params.Set("userId", userID)
	params.Set("amount", strconv.FormatFloat(amount, 'f', 2, 64))

	var result port.PreAuthResult
	if err := a.client.GetJSON(ctx, baseURL+"/pre_authorize", params, &result); err != nil {
		return nil, errors.Wrap(err, "pre-authorization call failed")
	}
	return &result, nil
}
