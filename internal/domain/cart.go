package domain

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Region identifies a storefront market. Each region has its own cart.
type Region string

const (
	RegionOman  Region = "om"
	RegionSaudi Region = "sa"

	DefaultRegion = RegionOman
)

// Storage keys shared with the storefront frontend.
const (
	CartKeyPrefix   = "spirithub_cart"
	LegacyCartKey   = CartKeyPrefix
	MigrationMarker = CartKeyPrefix + "_migrated"
)

// CartKey returns the durable slot holding the cart of region r.
func CartKey(r Region) string {
	return CartKeyPrefix + "_" + string(r)
}

// CartLine is one product (or product variant) line in a cart.
type CartLine struct {
	ID           string          `json:"id"`
	ProductID    int64           `json:"productId"`
	VariantID    *int64          `json:"variantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	Quantity     int             `json:"quantity"`
	MaxStock     *int            `json:"maxStock,omitempty"` // nil when stock is unknown
	TastingNotes string          `json:"tastingNotes,omitempty"`
	VariantName  string          `json:"variantName,omitempty"`
}

// LineID builds the cart line id of a product and optional variant, e.g.
// "12-3" or "12-null".
func LineID(productID int64, variantID *int64) string {
	if variantID == nil {
		return strconv.FormatInt(productID, 10) + "-null"
	}
	return strconv.FormatInt(productID, 10) + "-" + strconv.FormatInt(*variantID, 10)
}

// Subtotal returns price × quantity for the line.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Snapshot is a read-only view of the active cart. Totals are derived from
// Items when the snapshot is taken.
type Snapshot struct {
	Region     Region          `json:"region"`
	Items      []CartLine      `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// NewSnapshot copies lines and computes the totals.
func NewSnapshot(r Region, lines []CartLine) Snapshot {
	items := make([]CartLine, len(lines))
	copy(items, lines)

	total := decimal.Zero
	count := 0
	for _, l := range items {
		count += l.Quantity
		total = total.Add(l.Subtotal())
	}

	return Snapshot{
		Region:     r,
		Items:      items,
		TotalItems: count,
		TotalPrice: total,
	}
}
