package billing

import (
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/shopspring/decimal"
)

// Fallback labels for cost definitions without a name or description
const (
	DefaultPriceName           = "Room Price"
	DefaultAdditionalCostLabel = "Additional Cost"
	DefaultOtherCostLabel      = "Other Cost"
)

// CostContext is a room's active cost components at billing time
type CostContext struct {
	Price            tenancy.Price
	AdditionalPrices []tenancy.AdditionalPrice
	OtherCosts       []tenancy.OtherCost
}

// CostContextFromRoom resolves the active cost components of a room.
// ok is false when the room has no active price.
func CostContextFromRoom(room *tenancy.Room) (CostContext, bool) {
	if room == nil {
		return CostContext{}, false
	}
	price, ok := room.ActivePrice()
	if !ok {
		return CostContext{}, false
	}
	return CostContext{
		Price:            price,
		AdditionalPrices: room.ActiveAdditionalPrices(),
		OtherCosts:       room.ActiveOtherCosts(),
	}, true
}

// AssembleCharges builds the debit line items for one invoice: the price first,
// then each additional price, then each other cost. Amounts are copied as-is
// from the cost definitions. It returns the charges and their sum.
func AssembleCharges(cc CostContext) ([]invoicing.Charge, decimal.Decimal) {
	charges := make([]invoicing.Charge, 0, 1+len(cc.AdditionalPrices)+len(cc.OtherCosts))

	charges = append(charges, chargeFrom(cc.Price.CostItem, DefaultPriceName))
	for _, ap := range cc.AdditionalPrices {
		charges = append(charges, chargeFrom(ap.CostItem, DefaultAdditionalCostLabel))
	}
	for _, oc := range cc.OtherCosts {
		charges = append(charges, chargeFrom(oc.CostItem, DefaultOtherCostLabel))
	}

	total := decimal.Zero
	for _, c := range charges {
		total = total.Add(c.Amount)
	}
	return charges, total
}

func chargeFrom(item tenancy.CostItem, fallback string) invoicing.Charge {
	name := item.Name
	if name == "" {
		name = fallback
	}
	description := item.Description
	if description == "" {
		description = fallback
	}
	return invoicing.NewDebitCharge(name, description, item.Amount)
}
