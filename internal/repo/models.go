package repo

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusReadyToShip Status = "ready to ship"
	StatusShipped     Status = "shipped"
	StatusCancelled   Status = "cancelled"

	StatusInTransit          Status = "intransit"
	StatusOFDReverse         Status = "ofd_reverse"
	StatusCompletedDelivered Status = "completed_delivered"
	StatusCompletedLost      Status = "completed_lost"
	StatusReverseDisposed    Status = "reverse_disposed"

	StatusPaid           Status = "paid"
	StatusPendingPayment Status = "pending_payment"
)

const OrderTypeReturn = "return"

// OrderRecord is one row of oms."meeshoOrders", keyed by
// (OrderNumber, SubOrderNumber). Return and Payment are filled only by their
// own passes.
type OrderRecord struct {
	UserID         int64
	OrderNumber    string
	SubOrderNumber string

	ProductName          string
	ProductSKU           string
	ProductID            string
	Variation            string
	Quantity             *int
	ExpectedDispatchDate *time.Time
	SLAStatus            string
	Status               Status
	OrderedDate          *time.Time
	OrderType            string

	Return  *ReturnDetails
	Payment *PaymentDetails
}

type ReturnDetails struct {
	SubOrderIdentifier string
	ReturnType         string
	ReturnSubType      string
	ShipmentStatus     string

	ExpectedDeliveryDate *time.Time
	LastAttemptedDate    *time.Time

	CarrierName        string
	CarrierIdentifier  string
	CarrierAccountType string
	TrackingURL        string
	AWB                string
	ReturnPriceType    string

	DetailedReason string
	Reason         string

	ReverseOFDAttemptCountValue string
	ReverseOFDAttemptCountLabel string
	FirstAttemptedDate          *time.Time

	ProofOfDeliveryLabel string
	DisplayMsg           string
	OTPVerifiedFlag      *bool
	OTPVerifiedTime      string
	DigitalPodURL        string
	DigitalPodExpiryTime string

	OrderDispatchDate  *time.Time
	OrderDeliveredDate *time.Time
}

type PaymentDetails struct {
	PaymentDate          string
	DispatchDate         *time.Time
	Amount               decimal.Decimal
	Penalty              decimal.Decimal
	NetAmount            decimal.Decimal
	ReturnShippingCharge decimal.Decimal
}

// PaymentRecord is one row of oms."meeshoOrdersPayment", keyed by
// (OrderNumber, SubOrderNumber, PaymentDate).
type PaymentRecord struct {
	UserID               int64
	OrderNumber          string
	SubOrderNumber       string
	ProductSKU           string
	Status               string
	PaymentDate          string
	Amount               decimal.Decimal
	Penalty              decimal.Decimal
	NetAmount            decimal.Decimal
	ReturnShippingCharge decimal.Decimal
}

type Credential struct {
	UserID   int64
	Email    string
	Password string
}

// Result holds affected-row counts; they are reported, never branched on.
type Result struct {
	Orders   int64
	Payments int64
}
