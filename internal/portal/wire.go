package portal

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Cursor is an opaque continuation token. It is echoed back exactly as the
// portal sent it; the zero value encodes as null.
type Cursor json.RawMessage

func (c Cursor) IsEmpty() bool {
	t := bytes.TrimSpace(c)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	if c.IsEmpty() {
		return []byte("null"), nil
	}
	return c, nil
}

func (c *Cursor) UnmarshalJSON(b []byte) error {
	*c = append((*c)[:0], b...)
	return nil
}

func (c Cursor) String() string {
	if c.IsEmpty() {
		return ""
	}
	var s string
	if err := json.Unmarshal(c, &s); err == nil {
		return s
	}
	return string(c)
}

// Text accepts a JSON string, number or bool. The portal is not consistent
// about which one it sends for ids and counts.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(b)
	}
	return nil
}

func (t Text) String() string { return string(t) }

func (t Text) Int() (int, bool) {
	n, err := strconv.Atoi(string(t))
	if err != nil {
		f, ferr := strconv.ParseFloat(string(t), 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// Supplier is the identity the portal reports for a logged in account.
type Supplier struct {
	ID         json.Number `json:"supplier_id"`
	Identifier string      `json:"identifier"`
	Name       string      `json:"name"`
}

type userResponse struct {
	Suppliers []Supplier `json:"suppliers"`
}

type supplierDetails struct {
	ID         json.Number `json:"id"`
	Identifier string      `json:"identifier"`
	Name       string      `json:"name,omitempty"`
}

// Orders

type ordersRequest struct {
	EnableHold      bool            `json:"enable_hold"`
	SupplierDetails supplierDetails `json:"supplier_details"`
	Cursor          Cursor          `json:"cursor"`
	Limit           int             `json:"limit"`
	Status          int             `json:"status"`
	Type            string          `json:"type,omitempty"`
	Identifier      string          `json:"identifier"`
}

type OrdersPage struct {
	Data struct {
		Groups []OrderGroup `json:"groups"`
	} `json:"data"`
	Cursor Cursor `json:"cursor"`
}

type OrderGroup struct {
	Orders []Order `json:"orders"`
}

type Order struct {
	OrderNum   Text       `json:"order_num"`
	CreatedISO string     `json:"created_iso"`
	SubOrders  []SubOrder `json:"sub_orders"`
}

type SubOrder struct {
	SubOrderNum             Text   `json:"sub_order_num"`
	Name                    string `json:"name"`
	ProductSKU              Text   `json:"product_sku"`
	ProductID               Text   `json:"product_id"`
	Variation               Text   `json:"variation"`
	Quantity                Text   `json:"quantity"`
	ExpectedDispatchDateISO string `json:"expected_dispatch_date_iso"`
	SLAStatus               Text   `json:"sla_status"`
}

// Returns

type returnsRequest struct {
	Size            int             `json:"size"`
	PagePointer     *int            `json:"page_pointer"`
	Cursor          Cursor          `json:"cursor"`
	FilterCursor    Cursor          `json:"filter_cursor"`
	Filters         *returnsFilter  `json:"filters,omitempty"`
	SupplierDetails supplierDetails `json:"supplier_details"`
	Identifier      string          `json:"identifier"`
	ScreenType      string          `json:"screenType"`
}

type returnsFilter struct {
	ShipmentStatus string `json:"shipment_status"`
}

type ReturnsPage struct {
	Data         []ReturnClaim `json:"data"`
	Cursor       Cursor        `json:"cursor"`
	FilterCursor Cursor        `json:"filter_cursor"`
	TotalPages   int           `json:"total_pages"`
}

type ReturnClaim struct {
	OrderNum                Text   `json:"order_num"`
	SubOrderNum             Text   `json:"sub_order_num"`
	SubOrderIdentifier      Text   `json:"sub_order_identifier"`
	CreatedDateISO          string `json:"created_date_iso"`
	Type                    Text   `json:"type"`
	SubType                 Text   `json:"sub_type"`
	ShipmentStatus          Text   `json:"shipment_status"`
	ExpectedDeliveryDateISO string `json:"expected_delivery_date_iso"`
	LastAttemptedDateISO    string `json:"last_attempted_date_iso"`
	CarrierName             Text   `json:"carrier_name"`
	CarrierIdentifier       Text   `json:"carrier_identifier"`
	CarrierAccountType      Text   `json:"carrier_account_type"`
	TrackingURL             Text   `json:"tracking_url"`
	AWB                     Text   `json:"awb"`
	ReturnPriceType         Text   `json:"return_price_type"`
	OrderDispatchDateISO    string `json:"order_dispatch_date_iso"`
	OrderDeliveredDateISO   string `json:"order_delivered_date_iso"`

	Product             *ClaimProduct      `json:"product"`
	ReturnReasonDetails *ReturnReason      `json:"return_reason_details"`
	OFDReverseAttempt   *OFDReverseAttempt `json:"ofd_reverse_attempt"`
	ProofOfDelivery     *ProofOfDelivery   `json:"proof_of_delivery"`
}

type ClaimProduct struct {
	Name      string `json:"name"`
	SKU       Text   `json:"sku"`
	MeeshoPID Text   `json:"meesho_pid"`
	Variation Text   `json:"variation"`
	Quantity  Text   `json:"quantity"`
}

type ReturnReason struct {
	DetailedReason Text `json:"detailed_reason"`
	ReturnReason   Text `json:"return_reason"`
}

type OFDReverseAttempt struct {
	CountValue        Text   `json:"reverse_ofd_attempt_count_value"`
	CountLabel        Text   `json:"reverse_ofd_attempt_count_label"`
	FirstAttemptedISO string `json:"first_attempted_date_iso"`
}

type ProofOfDelivery struct {
	Label            Text  `json:"label"`
	DisplayMsg       Text  `json:"display_msg"`
	OTPVerifiedFlag  *bool `json:"otp_verified_flag"`
	OTPVerifiedTime  Text  `json:"otp_verified_time"`
	DigitalPodURL    Text  `json:"digital_pod_url"`
	DigitalPodExpiry Text  `json:"digital_pod_expiry_time"`
}

// Payouts

type payoutsRequest struct {
	SupplierID         json.Number    `json:"supplier_id"`
	SupplierIdentifier string         `json:"supplier_identifier"`
	Date               string         `json:"date"`
	PaymentRequest     paymentRequest `json:"payment_request"`
	Offset             int            `json:"offset"`
}

type paymentRequest struct {
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
	Status string `json:"status"`
}

type PayoutsPage struct {
	Response struct {
		Count int      `json:"count"`
		Items []Payout `json:"payoutUIList"`
	} `json:"supplier_payout_response"`
}

type Payout struct {
	OrderNum             Text            `json:"orderNum"`
	SubOrderNum          Text            `json:"subOrderNum"`
	SupplierSKU          Text            `json:"supplierSKU"`
	LiveOrderStatus      Text            `json:"liveOrderStatus"`
	PaymentDate          Text            `json:"paymentDate"`
	DispatchDate         Text            `json:"dispatchDate"`
	Amount               decimal.Decimal `json:"amount"`
	Penalty              decimal.Decimal `json:"penalty"`
	NetAmount            decimal.Decimal `json:"netAmount"`
	ReturnShippingCharge decimal.Decimal `json:"returnShippingCharge"`
}
