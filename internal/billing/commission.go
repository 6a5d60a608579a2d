package billing

import "studiodesk/internal/models"

// CommissionRecord is derived on demand and never stored.
type CommissionRecord struct {
	StaffID     int64   `json:"staff_id"`
	StaffName   string  `json:"staff_name"`
	Rate        float64 `json:"rate"`
	RateSet     bool    `json:"rate_set"`
	Bookings    int     `json:"bookings"`
	NetRevenue  int64   `json:"net_revenue"`
	Earned      int64   `json:"earned"`
	Paid        int64   `json:"paid"`
	Outstanding int64   `json:"outstanding"`
}

// NetRevenue is the booking's discounted subtotal minus recorded costs,
// floored at zero.
func NetRevenue(b *models.Booking) int64 {
	subtotal := PricingOf(b).Subtotal()
	net := subtotal - DiscountAmount(subtotal, b.Discount)
	for _, c := range b.CostBreakdown {
		net -= c.Amount
	}
	for _, li := range b.Items {
		net -= li.Cost
	}
	if net < 0 {
		return 0
	}
	return net
}

// EstimateCommission totals net revenue over the completed bookings the staff
// member shot or edited, applies their rate, and reconciles against payouts
// already recorded for them. An unset rate earns nothing.
func EstimateCommission(staff models.Staff, bookings []models.Booking, transactions []models.Transaction) CommissionRecord {
	rec := CommissionRecord{StaffID: staff.ID, StaffName: staff.Name}
	if staff.CommissionRate != nil {
		rec.Rate = *staff.CommissionRate
		rec.RateSet = true
	}

	for i := range bookings {
		b := &bookings[i]
		if b.Status != models.StatusCompleted || !b.AttributedTo(staff.ID) {
			continue
		}
		rec.Bookings++
		rec.NetRevenue += NetRevenue(b)
	}

	rec.Earned = percentOf(rec.NetRevenue, rec.Rate)
	rec.Paid = PaidTo(staff.ID, transactions)

	rec.Outstanding = rec.Earned - rec.Paid
	if rec.Outstanding < 0 {
		rec.Outstanding = 0
	}
	return rec
}

// PaidTo sums the expense rows whose recipient is staffID.
func PaidTo(staffID int64, transactions []models.Transaction) int64 {
	var paid int64
	for _, tx := range transactions {
		if tx.Type != models.TransactionExpense || tx.RecipientID == nil || *tx.RecipientID != staffID {
			continue
		}
		paid += tx.Amount
	}
	return paid
}
