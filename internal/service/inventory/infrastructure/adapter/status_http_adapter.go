package adapter

import (
	"context"
	"net/url"
	"strconv"

	"stockpile/internal/pkg/httpclient"
)

// StatusHTTPAdapter implements port.StatusNotifier over the order-tracking
// service's PUT endpoint. Fire and forget: the caller decides whether to
// log the error, and nothing escalates past it.
type StatusHTTPAdapter struct {
	client   *httpclient.Client
	endpoint string
}

func NewStatusHTTPAdapter(client *httpclient.Client, endpoint string) *StatusHTTPAdapter {
	return &StatusHTTPAdapter{client: client, endpoint: endpoint}
}

func (a *StatusHTTPAdapter) Notify(ctx context.Context, orderID int64, status, message string) error {
	params := url.Values{}
	params.Set("order_id", strconv.FormatInt(orderID, 10))
	params.Set("status", status)
	params.Set("status_message", message)
	return a.client.Put(ctx, a.endpoint, params)
}
