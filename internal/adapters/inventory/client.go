package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-agent/internal/core/domain"
	"github.com/manthysbr/aule-agent/internal/core/ports"
)

// Client talks to the inventory REST backend:
//
//	GET {base}/items/{sku}
//	GET {base}/items?q=...&limit=...
//
// Parameters are encoded the way oapi-codegen generated clients do.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ ports.InventoryClient = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type itemWire struct {
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Location  string    `json:"location"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w itemWire) toDomain() domain.InventoryItem {
	return domain.InventoryItem{
		SKU:       w.SKU,
		Name:      w.Name,
		Quantity:  w.Quantity,
		Location:  w.Location,
		UpdatedAt: w.UpdatedAt,
	}
}

// GetItem fetches one item. A 404 maps to domain.ErrItemNotFound.
func (c *Client) GetItem(ctx context.Context, sku string) (domain.InventoryItem, error) {
	pathParam, err := runtime.StyleParamWithLocation("simple", false, "sku", runtime.ParamLocationPath, sku)
	if err != nil {
		return domain.InventoryItem{}, fmt.Errorf("encode sku: %w", err)
	}

	var item itemWire
	status, err := c.get(ctx, "/items/"+pathParam, &item)
	if status == http.StatusNotFound {
		return domain.InventoryItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, sku)
	}
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return item.toDomain(), nil
}

// SearchItems searches item names.
func (c *Client) SearchItems(ctx context.Context, query string, limit int) ([]domain.InventoryItem, error) {
	params := []string{}
	q, err := runtime.StyleParamWithLocation("form", true, "q", runtime.ParamLocationQuery, query)
	if err != nil {
		return nil, fmt.Errorf("encode q: %w", err)
	}
	params = append(params, q)
	if limit > 0 {
		l, err := runtime.StyleParamWithLocation("form", true, "limit", runtime.ParamLocationQuery, limit)
		if err != nil {
			return nil, fmt.Errorf("encode limit: %w", err)
		}
		params = append(params, l)
	}

	var body struct {
		Items []itemWire `json:"items"`
	}
	if _, err := c.get(ctx, "/items?"+strings.Join(params, "&"), &body); err != nil {
		return nil, err
	}

	items := make([]domain.InventoryItem, 0, len(body.Items))
	for _, it := range body.Items {
		items = append(items, it.toDomain())
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) (int, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return 0, fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("inventory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("inventory returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode inventory response: %w", err)
	}
	return resp.StatusCode, nil
}
