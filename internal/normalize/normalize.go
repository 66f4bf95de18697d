// Package normalize maps portal page items onto repo records.
//
// Every function is pure: items that cannot form a natural key are skipped
// and counted, never rejected with an error.
package normalize

import (
	"strings"
	"time"

	"github.com/mrussa/meeshosync/internal/portal"
	"github.com/mrussa/meeshosync/internal/repo"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads the portal's ISO timestamps. Blank or unparseable input
// yields nil.
func ParseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func quantity(t portal.Text) *int {
	n, ok := t.Int()
	if !ok {
		return nil
	}
	return &n
}

// Orders takes groups[].orders[0].sub_orders[0] from each group.
func Orders(userID int64, status repo.Status, groups []portal.OrderGroup) (recs []repo.OrderRecord, skipped int) {
	recs = make([]repo.OrderRecord, 0, len(groups))
	for _, g := range groups {
		if len(g.Orders) == 0 || len(g.Orders[0].SubOrders) == 0 {
			skipped++
			continue
		}
		o := g.Orders[0]
		s := o.SubOrders[0]
		if o.OrderNum == "" || s.SubOrderNum == "" {
			skipped++
			continue
		}
		recs = append(recs, repo.OrderRecord{
			UserID:               userID,
			OrderNumber:          o.OrderNum.String(),
			SubOrderNumber:       s.SubOrderNum.String(),
			ProductName:          s.Name,
			ProductSKU:           s.ProductSKU.String(),
			ProductID:            s.ProductID.String(),
			Variation:            s.Variation.String(),
			Quantity:             quantity(s.Quantity),
			ExpectedDispatchDate: ParseTime(s.ExpectedDispatchDateISO),
			SLAStatus:            s.SLAStatus.String(),
			Status:               status,
			OrderedDate:          ParseTime(o.CreatedISO),
		})
	}
	return recs, skipped
}

// Returns maps flat return claims. Missing nested objects leave their
// fields empty.
func Returns(userID int64, status repo.Status, claims []portal.ReturnClaim) (recs []repo.OrderRecord, skipped int) {
	recs = make([]repo.OrderRecord, 0, len(claims))
	for _, c := range claims {
		if c.OrderNum == "" || c.SubOrderNum == "" {
			skipped++
			continue
		}
		rec := repo.OrderRecord{
			UserID:         userID,
			OrderNumber:    c.OrderNum.String(),
			SubOrderNumber: c.SubOrderNum.String(),
			Status:         status,
			OrderedDate:    ParseTime(c.CreatedDateISO),
			OrderType:      repo.OrderTypeReturn,
		}
		if p := c.Product; p != nil {
			rec.ProductName = p.Name
			rec.ProductSKU = p.SKU.String()
			rec.ProductID = p.MeeshoPID.String()
			rec.Variation = p.Variation.String()
			rec.Quantity = quantity(p.Quantity)
		}

		d := &repo.ReturnDetails{
			SubOrderIdentifier:   c.SubOrderIdentifier.String(),
			ReturnType:           c.Type.String(),
			ReturnSubType:        c.SubType.String(),
			ShipmentStatus:       c.ShipmentStatus.String(),
			ExpectedDeliveryDate: ParseTime(c.ExpectedDeliveryDateISO),
			LastAttemptedDate:    ParseTime(c.LastAttemptedDateISO),
			CarrierName:          c.CarrierName.String(),
			CarrierIdentifier:    c.CarrierIdentifier.String(),
			CarrierAccountType:   c.CarrierAccountType.String(),
			TrackingURL:          c.TrackingURL.String(),
			AWB:                  c.AWB.String(),
			ReturnPriceType:      c.ReturnPriceType.String(),
			OrderDispatchDate:    ParseTime(c.OrderDispatchDateISO),
			OrderDeliveredDate:   ParseTime(c.OrderDeliveredDateISO),
		}
		if r := c.ReturnReasonDetails; r != nil {
			d.DetailedReason = r.DetailedReason.String()
			d.Reason = r.ReturnReason.String()
		}
		if a := c.OFDReverseAttempt; a != nil {
			d.ReverseOFDAttemptCountValue = a.CountValue.String()
			d.ReverseOFDAttemptCountLabel = a.CountLabel.String()
			d.FirstAttemptedDate = ParseTime(a.FirstAttemptedISO)
		}
		if pod := c.ProofOfDelivery; pod != nil {
			d.ProofOfDeliveryLabel = pod.Label.String()
			d.DisplayMsg = pod.DisplayMsg.String()
			d.OTPVerifiedFlag = pod.OTPVerifiedFlag
			d.OTPVerifiedTime = pod.OTPVerifiedTime.String()
			d.DigitalPodURL = pod.DigitalPodURL.String()
			d.DigitalPodExpiryTime = pod.DigitalPodExpiry.String()
		}
		rec.Return = d
		recs = append(recs, rec)
	}
	return recs, skipped
}

// Payouts returns the order row update and the payment row for each payout
// line; recs[i] and pays[i] describe the same line. status is written to the
// order row only when the row is new. Lines without a paymentDate take date,
// the day the payouts were queried for.
func Payouts(userID int64, status repo.Status, date string, items []portal.Payout) (recs []repo.OrderRecord, pays []repo.PaymentRecord, skipped int) {
	recs = make([]repo.OrderRecord, 0, len(items))
	pays = make([]repo.PaymentRecord, 0, len(items))
	for _, it := range items {
		payDate := it.PaymentDate.String()
		if payDate == "" {
			payDate = date
		}
		if it.OrderNum == "" || it.SubOrderNum == "" || payDate == "" {
			skipped++
			continue
		}
		recs = append(recs, repo.OrderRecord{
			UserID:         userID,
			OrderNumber:    it.OrderNum.String(),
			SubOrderNumber: it.SubOrderNum.String(),
			ProductSKU:     it.SupplierSKU.String(),
			Status:         status,
			Payment: &repo.PaymentDetails{
				PaymentDate:          payDate,
				DispatchDate:         ParseTime(it.DispatchDate.String()),
				Amount:               it.Amount,
				Penalty:              it.Penalty,
				NetAmount:            it.NetAmount,
				ReturnShippingCharge: it.ReturnShippingCharge,
			},
		})
		pays = append(pays, repo.PaymentRecord{
			UserID:               userID,
			OrderNumber:          it.OrderNum.String(),
			SubOrderNumber:       it.SubOrderNum.String(),
			ProductSKU:           it.SupplierSKU.String(),
			Status:               it.LiveOrderStatus.String(),
			PaymentDate:          payDate,
			Amount:               it.Amount,
			Penalty:              it.Penalty,
			NetAmount:            it.NetAmount,
			ReturnShippingCharge: it.ReturnShippingCharge,
		})
	}
	return recs, pays, skipped
}
