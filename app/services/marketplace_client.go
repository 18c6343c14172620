package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/models"
	"github.com/shopspring/decimal"
)

// MarketplaceClient reads seller orders from a Mercado Libre style orders API
type MarketplaceClient struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

func NewMarketplaceClient(baseURL, accessToken string, timeout time.Duration) *MarketplaceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MarketplaceClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
		Timeout:     timeout,
	}
}

func (c *MarketplaceClient) Name() string { return "mercadolibre" }

type marketplaceOrdersResp struct {
	Results []marketplaceOrder `json:"results"`
}

type marketplaceOrder struct {
	ID          json.Number     `json:"id"`
	Status      string          `json:"status"`
	DateCreated string          `json:"date_created"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderItems  []struct {
		Item struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"item"`
	} `json:"order_items"`
	Buyer struct {
		ID        json.Number `json:"id"`
		Nickname  string      `json:"nickname"`
		FirstName string      `json:"first_name"`
		LastName  string      `json:"last_name"`
	} `json:"buyer"`
	Shipping struct {
		ReceiverAddress struct {
			City struct {
				Name string `json:"name"`
			} `json:"city"`
		} `json:"receiver_address"`
	} `json:"shipping"`
}

// RecentOrders returns up to limit orders for the seller, newest first
func (c *MarketplaceClient) RecentOrders(ctx context.Context, sellerID string, limit int) ([]models.MarketplaceOrder, error) {
	q := url.Values{}
	q.Set("seller", sellerID)
	q.Set("sort", "date_desc")
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.BaseURL + "/orders/search?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("marketplace orders: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out marketplaceOrdersResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("marketplace orders: decode: %w", err)
	}

	orders := make([]models.MarketplaceOrder, 0, len(out.Results))
	for _, r := range out.Results {
		created, err := time.Parse(time.RFC3339, r.DateCreated)
		if err != nil {
			return nil, fmt.Errorf("marketplace orders: order %s has invalid date_created %q", r.ID, r.DateCreated)
		}
		o := models.MarketplaceOrder{
			OrderID:        r.ID.String(),
			SellerID:       sellerID,
			Status:         r.Status,
			CreatedAt:      created.UTC(),
			TotalAmount:    r.TotalAmount,
			BuyerID:        r.Buyer.ID.String(),
			BuyerNickname:  r.Buyer.Nickname,
			BuyerFirstName: r.Buyer.FirstName,
			BuyerLastName:  r.Buyer.LastName,
			ShippingCity:   r.Shipping.ReceiverAddress.City.Name,
		}
		if len(r.OrderItems) > 0 {
			o.ItemID = r.OrderItems[0].Item.ID
			o.ItemTitle = r.OrderItems[0].Item.Title
		}
		orders = append(orders, o)
	}
	return orders, nil
}
