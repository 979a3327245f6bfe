// Package pricing is the single source of truth for what a figurine costs.
// Every price the system persists or charges goes through CartTotals;
// client-submitted prices are never used.
package pricing

import (
	"errors"
	"fmt"

	"github.com/twojapodobizna/api/internal/enum"
)

// Errors returned by the pricing engine.
var (
	ErrUnknownProduct = errors.New("unknown product id")
	ErrInvalidQty     = errors.New("qty must be between 1 and 1000")
	ErrInvalidPrice   = errors.New("computed price is not positive")
)

// MaxLineQty bounds a single cart line. Keeps the qty safely inside the
// int32 column and the line total inside int64.
const MaxLineQty = 1000

// Product is a catalog entry. Prices are PLN (major units); the engine
// converts to grosze at the end.
type Product struct {
	ID           string
	Title        string
	BasePLN      int64
	// CatalogPLN is the advertised list price. For premium it differs from
	// BasePLN (599 vs 550); the storefront has always charged 550. Do not
	// reconcile without product-owner sign-off.
	CatalogPLN   int64
	// DefaultPersons is the figure count included in the base price.
	DefaultPersons int
}

// Catalog is the fixed product set. Keyed by product id.
var Catalog = map[string]Product{
	enum.ProductMini:     {ID: enum.ProductMini, Title: "Mini figurine", BasePLN: 199, CatalogPLN: 199, DefaultPersons: 1},
	enum.ProductStandard: {ID: enum.ProductStandard, Title: "Standard figurine", BasePLN: 349, CatalogPLN: 349, DefaultPersons: 2},
	enum.ProductPremium:  {ID: enum.ProductPremium, Title: "Premium figurine", BasePLN: 550, CatalogPLN: 599, DefaultPersons: 3},
}

const (
	premiumMinPersons = 3
	premiumMaxPersons = 10

	personSurchargePLN = 150 // per person above the premium baseline
	bobbleSurchargePLN = 50  // flat for mini, per person otherwise

	sizeSurcharge18PLN = 40
	sizeSurcharge23PLN = 80
)

// Options is the per-line options bag as submitted by the client.
type Options struct {
	SizeCm  string `json:"sizeCm"`
	Persons int    `json:"persons,omitempty"`
	Bobble  bool   `json:"bobble"`
}

// Line is one cart position.
type Line struct {
	ProductID string  `json:"id"`
	Qty       int     `json:"qty"`
	Options   Options `json:"options"`
}

// PricedLine is a Line with server-computed amounts, in grosze.
type PricedLine struct {
	ProductID string
	Title     string
	Qty       int
	// Persons is the effective, clamped figure count the price was based on.
	Persons   int
	Options   Options
	UnitPrice int64
	LineTotal int64
}

// normPersons resolves the effective figure count for a product. Premium
// clamps the requested value to [3,10]; other products have a fixed count.
func normPersons(productID string, requested int) int {
	if productID != enum.ProductPremium {
		return Catalog[productID].DefaultPersons
	}
	p := requested
	if p == 0 {
		p = premiumMinPersons
	}
	if p < premiumMinPersons {
		p = premiumMinPersons
	}
	if p > premiumMaxPersons {
		p = premiumMaxPersons
	}
	return p
}

func sizeSurcharge(sizeCm string) int64 {
	switch sizeCm {
	case "18":
		return sizeSurcharge18PLN
	case "23":
		return sizeSurcharge23PLN
	default: // "15" and anything unrecognized: the base size
		return 0
	}
}

// UnitPrice computes the price of a single figurine in grosze.
func UnitPrice(productID string, opts Options) (int64, error) {
	product, ok := Catalog[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
	}

	persons := normPersons(productID, opts.Persons)

	var personsSurcharge int64
	if productID == enum.ProductPremium {
		personsSurcharge = int64(persons-premiumMinPersons) * personSurchargePLN
	}

	var bobbleSurcharge int64
	if opts.Bobble {
		if productID == enum.ProductMini {
			bobbleSurcharge = bobbleSurchargePLN
		} else {
			bobbleSurcharge = bobbleSurchargePLN * int64(persons)
		}
	}

	unitPLN := product.BasePLN + sizeSurcharge(opts.SizeCm) + personsSurcharge + bobbleSurcharge
	if unitPLN <= 0 {
		return 0, fmt.Errorf("%w: %q -> %d", ErrInvalidPrice, productID, unitPLN)
	}
	return unitPLN * 100, nil
}

// CartTotals prices a whole cart. Any invalid line aborts the computation;
// there are no partially priced carts.
func CartTotals(lines []Line) ([]PricedLine, int64, error) {
	priced := make([]PricedLine, 0, len(lines))
	var subtotal int64

	for i, line := range lines {
		if line.Qty <= 0 || line.Qty > MaxLineQty {
			return nil, 0, fmt.Errorf("items[%d]: %w", i, ErrInvalidQty)
		}
		unit, err := UnitPrice(line.ProductID, line.Options)
		if err != nil {
			return nil, 0, fmt.Errorf("items[%d]: %w", i, err)
		}
		total := unit * int64(line.Qty)
		priced = append(priced, PricedLine{
			ProductID: line.ProductID,
			Title:     Catalog[line.ProductID].Title,
			Qty:       line.Qty,
			Persons:   normPersons(line.ProductID, line.Options.Persons),
			Options:   line.Options,
			UnitPrice: unit,
			LineTotal: total,
		})
		subtotal += total
	}
	return priced, subtotal, nil
}
