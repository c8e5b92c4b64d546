package kite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wonny/talos/internal/contracts"
	"github.com/wonny/talos/internal/execution"
)

// compile-time check: the client is a full executor
var _ execution.Executor = (*Client)(nil)

// venueOrder is one order state row from GET /orders/{id}
type venueOrder struct {
	OrderID           string  `json:"order_id"`
	Status            string  `json:"status"`
	StatusMessage     string  `json:"status_message"`
	FilledQuantity    int     `json:"filled_quantity"`
	PendingQuantity   int     `json:"pending_quantity"`
	AveragePrice      float64 `json:"average_price"`
	OrderTimestamp    string  `json:"order_timestamp"`
	ExchangeTimestamp string  `json:"exchange_timestamp"`
}

type orderIDData struct {
	OrderID string `json:"order_id"`
}

// PlaceOrder submits the order and returns the venue order id
func (c *Client) PlaceOrder(ctx context.Context, order *contracts.Order) (string, error) {
	exchange, symbol, err := splitInstrument(order.Instrument)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("exchange", exchange)
	form.Set("tradingsymbol", symbol)
	form.Set("transaction_type", string(order.Side))
	form.Set("quantity", strconv.Itoa(order.Quantity))
	form.Set("order_type", string(order.Kind))
	form.Set("product", c.product)
	form.Set("validity", "DAY")
	if order.Price > 0 {
		form.Set("price", formatPrice(order.Price))
	}
	if order.TriggerPrice > 0 {
		form.Set("trigger_price", formatPrice(order.TriggerPrice))
	}
	if order.StrategyID != "" {
		form.Set("tag", order.StrategyID)
	}

	data, _, err := c.request(ctx, c.trade, http.MethodPost, "/orders/"+orderVariety, form)
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}

	var out orderIDData
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("place order: decode response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument":  order.Instrument,
		"side":        order.Side,
		"quantity":    order.Quantity,
		"venue_order": out.OrderID,
	}).Info("Order placed at Kite")

	return out.OrderID, nil
}

// ModifyOrder updates price, quantity, trigger, or type on a working
// order. Returns true only on a confirmed success.
func (c *Client) ModifyOrder(ctx context.Context, exchangeOrderID string, mod contracts.OrderModification) (bool, error) {
	if mod.IsEmpty() {
		return false, fmt.Errorf("no modifications specified")
	}

	form := url.Values{}
	if mod.Quantity != nil {
		form.Set("quantity", strconv.Itoa(*mod.Quantity))
	}
	if mod.Price != nil {
		form.Set("price", formatPrice(*mod.Price))
	}
	if mod.TriggerPrice != nil {
		form.Set("trigger_price", formatPrice(*mod.TriggerPrice))
	}
	if mod.Kind != nil {
		form.Set("order_type", string(*mod.Kind))
	}

	_, status, err := c.request(ctx, c.trade, http.MethodPut, "/orders/"+orderVariety+"/"+exchangeOrderID, form)
	if err != nil {
		if status == http.StatusNotFound {
			return false, execution.ErrOrderNotFound
		}
		return false, fmt.Errorf("modify order %s: %w", exchangeOrderID, err)
	}
	return true, nil
}

// CancelOrder cancels a working order. Returns true only on a confirmed
// success.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) (bool, error) {
	_, status, err := c.request(ctx, c.trade, http.MethodDelete, "/orders/"+orderVariety+"/"+exchangeOrderID, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return false, execution.ErrOrderNotFound
		}
		return false, fmt.Errorf("cancel order %s: %w", exchangeOrderID, err)
	}
	return true, nil
}

// GetOrderStatus returns the mapped venue status
func (c *Client) GetOrderStatus(ctx context.Context, exchangeOrderID string) (contracts.Status, error) {
	detail, err := c.GetOrderDetail(ctx, exchangeOrderID)
	if err != nil {
		return "", err
	}
	return detail.Status, nil
}

// GetOrderDetail fetches the order history and projects the latest state
func (c *Client) GetOrderDetail(ctx context.Context, exchangeOrderID string) (*execution.OrderDetail, error) {
	data, status, err := c.request(ctx, c.query, http.MethodGet, "/orders/"+exchangeOrderID, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, execution.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", exchangeOrderID, err)
	}

	var history []venueOrder
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("get order %s: decode response: %w", exchangeOrderID, err)
	}
	if len(history) == 0 {
		return nil, execution.ErrOrderNotFound
	}

	// 마지막 행이 최신 상태
	latest := history[len(history)-1]
	detail := &execution.OrderDetail{
		ExchangeOrderID: latest.OrderID,
		Status:          mapStatus(latest.Status),
		FilledQuantity:  latest.FilledQuantity,
		AveragePrice:    latest.AveragePrice,
		UpdatedAt:       parseVenueTime(latest.ExchangeTimestamp, latest.OrderTimestamp),
	}
	return detail, nil
}

// mapStatus translates venue status strings into the internal lifecycle
func mapStatus(venue string) contracts.Status {
	switch venue {
	case "COMPLETE":
		return contracts.StatusComplete
	case "CANCELLED", "CANCELLED AMO":
		return contracts.StatusCancelled
	case "REJECTED":
		return contracts.StatusRejected
	case "OPEN", "TRIGGER PENDING", "MODIFY PENDING", "CANCEL PENDING":
		return contracts.StatusOpen
	default:
		// PUT ORDER REQ RECEIVED, VALIDATION PENDING, OPEN PENDING, ...
		return contracts.StatusPending
	}
}

func parseVenueTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			return t
		}
	}
	return time.Now()
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
