package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmynk/groupcart/internal/models"
)

// OrderClient creates orders in the order service. The service dedupes
// creates by the Idempotency-Key header.
type OrderClient struct {
	c httpClient
}

func NewOrderClient(baseURL string, timeout time.Duration) *OrderClient {
	return &OrderClient{c: newHTTPClient(baseURL, timeout)}
}

type orderResponse struct {
	OrderID string `json:"order_id"`
}

// CreateOrder posts the order with key as its idempotency key.
func (c *OrderClient) CreateOrder(ctx context.Context, key string, req models.OrderRequest) (string, error) {
	var resp orderResponse
	headers := map[string]string{"Idempotency-Key": key}
	if err := c.c.do(ctx, http.MethodPost, "/orders", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("order service returned no order id for %s", key)
	}
	return resp.OrderID, nil
}

// LookupOrder asks whether an order was created under key. A 404 means it
// was not.
func (c *OrderClient) LookupOrder(ctx context.Context, key string) (string, bool, error) {
	var resp orderResponse
	err := c.c.do(ctx, http.MethodGet, "/orders/by-key/"+url.PathEscape(key), nil, nil, &resp)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return resp.OrderID, resp.OrderID != "", nil
}
