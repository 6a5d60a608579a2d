package billing

import "studiodesk/internal/models"

// Policy holds the studio-wide values the calculator falls back to.
type Policy struct {
	// TaxRate is the current studio tax percentage, used only when a booking
	// has no snapshot of its own.
	TaxRate float64
	// Tolerance is the rounding slack within which a due amount is settled.
	Tolerance int64
}

func (p Policy) tolerance() int64 {
	if p.Tolerance <= 0 {
		return models.DefaultSettleTolerance
	}
	return p.Tolerance
}

type pricingKind int

const (
	flatPrice pricingKind = iota
	lineItems
)

// Pricing is either a list of line items or a single flat price.
type Pricing struct {
	kind  pricingKind
	items []models.LineItem
	flat  int64
}

// PricingOf resolves which pricing shape a booking uses. Line items win when present.
func PricingOf(b *models.Booking) Pricing {
	if len(b.Items) > 0 {
		return Pricing{kind: lineItems, items: b.Items}
	}
	return Pricing{kind: flatPrice, flat: b.Price}
}

// Itemized reports whether the subtotal comes from line items.
func (p Pricing) Itemized() bool {
	return p.kind == lineItems
}

func (p Pricing) Subtotal() int64 {
	if p.kind == flatPrice {
		return p.flat
	}
	var sum int64
	for _, li := range p.items {
		sum += li.LineTotal()
	}
	return sum
}

// Totals is the derived monetary state of a booking.
type Totals struct {
	Itemized       bool    `json:"itemized"`
	Subtotal       int64   `json:"subtotal"`
	DiscountAmount int64   `json:"discount_amount"`
	AfterDiscount  int64   `json:"after_discount"`
	TaxRate        float64 `json:"tax_rate"`
	TaxAmount      int64   `json:"tax_amount"`
	GrandTotal     int64   `json:"grand_total"`
	PaidAmount     int64   `json:"paid_amount"`
	DueAmount      int64   `json:"due_amount"`
	Settled        bool    `json:"settled"`
}

// ComputeTotals derives subtotal, discount, tax, grand total and due amount.
// It reads nothing but its arguments.
func ComputeTotals(b *models.Booking, policy Policy) Totals {
	pricing := PricingOf(b)
	subtotal := pricing.Subtotal()
	discount := DiscountAmount(subtotal, b.Discount)

	afterDiscount := subtotal - discount
	if afterDiscount < 0 {
		afterDiscount = 0
	}

	rate := EffectiveTaxRate(b, policy)
	tax := percentOf(afterDiscount, rate)
	grand := afterDiscount + tax
	due := grand - b.PaidAmount

	return Totals{
		Itemized:       pricing.Itemized(),
		Subtotal:       subtotal,
		DiscountAmount: discount,
		AfterDiscount:  afterDiscount,
		TaxRate:        rate,
		TaxAmount:      tax,
		GrandTotal:     grand,
		PaidAmount:     b.PaidAmount,
		DueAmount:      due,
		Settled:        withinTolerance(due, policy.tolerance()),
	}
}

// DiscountAmount applies a discount once to subtotal. Negative discount values
// are treated as no discount.
func DiscountAmount(subtotal int64, d *models.Discount) int64 {
	if d == nil || d.Value <= 0 {
		return 0
	}
	switch d.Kind {
	case models.DiscountPercent:
		return percentOf(subtotal, float64(d.Value))
	case models.DiscountFixed:
		return d.Value
	default:
		return 0
	}
}

// EffectiveTaxRate prefers the booking's snapshot over the current studio rate.
func EffectiveTaxRate(b *models.Booking, policy Policy) float64 {
	if b.TaxSnapshot != nil {
		return *b.TaxSnapshot
	}
	return policy.TaxRate
}

// SnapshotTax freezes the current studio rate onto the booking unless a snapshot already exists.
func SnapshotTax(b *models.Booking, policy Policy) {
	if b.TaxSnapshot != nil {
		return
	}
	rate := policy.TaxRate
	b.TaxSnapshot = &rate
}

func withinTolerance(due, tolerance int64) bool {
	if due < 0 {
		due = -due
	}
	return due <= tolerance
}
