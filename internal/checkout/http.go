package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/marketplace/pkg/errors"
	"github.com/utafrali/marketplace/pkg/httpclient"
)

const (
	orderServiceName  = "order"
	ordersPath        = "/api/v1/orders"
	idempotencyHeader = "Idempotency-Key"
)

// HTTPDoer is satisfied by httpclient.Client and httpclient.CircuitBreakerClient.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback answers requests rejected by an open breaker with a
// 503-mapped error so checkout fails fast and the cart stays intact.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("order service is temporarily unavailable")
}

// HTTPPlacer forwards orders to the order backend.
type HTTPPlacer struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewHTTPPlacer creates a placer posting to baseURL + /api/v1/orders.
func NewHTTPPlacer(client HTTPDoer, baseURL string, logger *slog.Logger) *HTTPPlacer {
	return &HTTPPlacer{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type placeOrderResponse struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// PlaceOrder POSTs the order. The order id doubles as the idempotency key so
// transport retries cannot create duplicates. On success the status reported
// by the backend, if any, is copied onto order.
func (p *HTTPPlacer) PlaceOrder(ctx context.Context, order *Order) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, order.ID)

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return p.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, orderServiceName)
	}
	defer resp.Body.Close()

	var decoded placeOrderResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(raw) > 0 && json.Unmarshal(raw, &decoded) == nil {
		if decoded.Data.ID != "" && decoded.Data.ID != order.ID {
			p.logger.WarnContext(ctx, "order backend assigned a different id",
				slog.String("order_id", order.ID),
				slog.String("backend_id", decoded.Data.ID),
			)
		}
		if decoded.Data.Status != "" {
			order.Status = decoded.Data.Status
		}
	}
	return nil
}

func (p *HTTPPlacer) transportError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	var serverErr *httpclient.ServerError
	if errors.As(err, &serverErr) {
		return fmt.Errorf("order service returned %d: %w", serverErr.Status,
			apperrors.ServiceUnavailable("order service failed"))
	}
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return apperrors.ServiceUnavailable("order service is temporarily unavailable")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("call order service: %w", err)
	}
	return fmt.Errorf("call order service: %w: %w", apperrors.ErrServiceUnavail, err)
}
