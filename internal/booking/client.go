// Package booking reads display context for bookings from the marketplace
// booking directory.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/mbeoliero/trato/internal/config"
	"github.com/mbeoliero/trato/internal/entity"
)

// Client looks bookings up over HTTP at GET {base_url}/bookings/{id}
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *client.Client
}

// NewClient creates a booking directory client, nil when no base url is configured
func NewClient(cfg *config.BookingConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, nil
	}
	httpClient, err := client.NewClient(
		client.WithDialTimeout(cfg.Timeout),
		client.WithClientReadTimeout(cfg.Timeout),
		client.WithWriteTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		httpClient: httpClient,
	}, nil
}

type bookingResponse struct {
	Title    string `json:"title"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

// LookupBooking fetches the display context of bookingId
func (c *Client) LookupBooking(ctx context.Context, bookingId string) (*entity.BookingContext, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(c.baseURL + "/bookings/" + url.PathEscape(bookingId))
	req.Header.Set("Accept", "application/json")

	if err := c.httpClient.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode() != consts.StatusOK {
		return nil, fmt.Errorf("booking directory returned status %d", resp.StatusCode())
	}

	var out bookingResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &entity.BookingContext{Title: out.Title, Price: out.Price, Currency: out.Currency}, nil
}
