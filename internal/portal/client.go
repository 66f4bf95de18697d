package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

const (
	PathGetUser = "/growthapi/api/supplier/getUser"
	PathOrders  = "/fulfillmentapi/api/orders"
	PathReturns = "/fulfillmentapi/api/returnRto/fetchReturnClaims"
	PathPayouts = "/payoutsapi/api/payments/all-ui-data"
)

// Client speaks the portal's JSON endpoints over any Executor. It does not
// retry; callers wrap calls in a backoff executor.
type Client struct {
	exec Executor
	log  *zap.Logger
}

func NewClient(exec Executor, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{exec: exec, log: log}
}

// GetUser resolves the supplier behind the session. An empty supplier list
// is reported as ErrNoSupplier.
func (c *Client) GetUser(ctx context.Context) (Supplier, error) {
	var out userResponse
	if err := c.post(ctx, Request{Path: PathGetUser, Body: struct{}{}}, &out); err != nil {
		return Supplier{}, err
	}
	if len(out.Suppliers) == 0 {
		return Supplier{}, ErrNoSupplier
	}
	return out.Suppliers[0], nil
}

type OrdersQuery struct {
	Supplier Supplier
	Status   int
	Type     string
	Limit    int
	Cursor   Cursor
}

func (c *Client) Orders(ctx context.Context, q OrdersQuery) (OrdersPage, error) {
	body := ordersRequest{
		EnableHold: true,
		SupplierDetails: supplierDetails{
			ID:         q.Supplier.ID,
			Identifier: q.Supplier.Identifier,
			Name:       q.Supplier.Name,
		},
		Cursor:     q.Cursor,
		Limit:      q.Limit,
		Status:     q.Status,
		Type:       q.Type,
		Identifier: q.Supplier.Identifier,
	}
	var out OrdersPage
	err := c.post(ctx, Request{Path: PathOrders, Identifier: q.Supplier.Identifier, Body: body}, &out)
	return out, err
}

type ReturnsQuery struct {
	Supplier       Supplier
	ShipmentStatus string
	Size           int
	// PagePointer is nil on the first page and 1 afterwards.
	PagePointer  *int
	Cursor       Cursor
	FilterCursor Cursor
}

func (c *Client) ReturnClaims(ctx context.Context, q ReturnsQuery) (ReturnsPage, error) {
	body := returnsRequest{
		Size:         q.Size,
		PagePointer:  q.PagePointer,
		Cursor:       q.Cursor,
		FilterCursor: q.FilterCursor,
		SupplierDetails: supplierDetails{
			ID:         q.Supplier.ID,
			Identifier: q.Supplier.Identifier,
		},
		Identifier: q.Supplier.Identifier,
		ScreenType: "returns",
	}
	// The portal rejects the filter once it has handed out a filter cursor.
	if q.FilterCursor.IsEmpty() {
		body.Filters = &returnsFilter{ShipmentStatus: q.ShipmentStatus}
	}

	var out ReturnsPage
	err := c.post(ctx, Request{Path: PathReturns, Identifier: q.Supplier.Identifier, Body: body}, &out)
	return out, err
}

type PayoutsQuery struct {
	Supplier Supplier
	Date     string
	Status   string
	Offset   int
	Limit    int
}

func (c *Client) Payouts(ctx context.Context, q PayoutsQuery) (PayoutsPage, error) {
	body := payoutsRequest{
		SupplierID:         q.Supplier.ID,
		SupplierIdentifier: q.Supplier.Identifier,
		Date:               q.Date,
		PaymentRequest: paymentRequest{
			Offset: q.Offset,
			Limit:  q.Limit,
			Status: q.Status,
		},
		Offset: q.Offset,
	}
	var out PayoutsPage
	err := c.post(ctx, Request{Path: PathPayouts, Identifier: q.Supplier.Identifier, Body: body}, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, req Request, out any) error {
	raw, err := c.exec.Do(ctx, req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("portal %s: %w", req.Path, ErrEmptyBody)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Debug("undecodable portal response",
			zap.String("path", req.Path),
			zap.Int("bytes", len(raw)),
		)
		return fmt.Errorf("portal %s: decode: %w", req.Path, err)
	}
	return nil
}
