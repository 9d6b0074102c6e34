package inventory

import "strings"

// receivingTypeLabel and receivingCode are the two explicit receiving signals
// used across reports and stock displays. Compared case-insensitively.
const (
	receivingTypeLabel = "receiving"
	receivingCode      = "RECV"
)

// IsReceivingLocation classifies a location as receiving/staging. Quantity in
// a receiving location counts as pending reception, not available stock.
//
// A nil location (inventory row without a location) always classifies as
// receiving. Otherwise the location is receiving when its type label is
// "receiving" or its code is "RECV"; anything else is storage. This is the
// single shared predicate — call sites must not reimplement it inline.
func IsReceivingLocation(loc *Location) bool {
	if loc == nil {
		return true
	}
	if strings.EqualFold(loc.LocationType, receivingTypeLabel) {
		return true
	}
	if strings.EqualFold(loc.Code, receivingCode) {
		return true
	}
	return false
}

// StockSplit bifurcates a product's stock into available and pending parts.
type StockSplit struct {
	Available float64 `json:"available"`
	Pending   float64 `json:"pending"`
}

// SplitStock sums cached rows into available stock (storage locations,
// net of reservations) and pending reception (receiving locations).
func SplitStock(rows []StockRow) StockSplit {
	var split StockSplit
	for _, row := range rows {
		if IsReceivingLocation(row.Location) {
			split.Pending += row.Record.Quantity
			continue
		}
		split.Available += row.Record.Available()
	}
	return split
}
