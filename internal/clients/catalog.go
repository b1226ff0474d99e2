package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CatalogClient reads item prices from the menu catalog service.
type CatalogClient struct {
	c httpClient
}

func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{c: newHTTPClient(baseURL, timeout)}
}

type catalogItem struct {
	Ref       string `json:"ref"`
	Price     int64  `json:"price"`
	Available *bool  `json:"available,omitempty"`
}

// Price returns the unit price of an item in minor units. Items the catalog
// marks unavailable are reported as errors.
func (c *CatalogClient) Price(ctx context.Context, catalogRef string) (int64, error) {
	var item catalogItem
	if err := c.c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(catalogRef), nil, nil, &item); err != nil {
		return 0, err
	}
	if item.Available != nil && !*item.Available {
		return 0, fmt.Errorf("catalog item %s is unavailable", catalogRef)
	}
	return item.Price, nil
}
