package pricing

import (
	"sort"
	"strconv"
	"strings"
)

const postalPrefixLen = 4

// PostalPrefix parses the leading digits of a postal code used for banding.
func PostalPrefix(postal string) (int, bool) {
	postal = strings.TrimSpace(postal)
	if len(postal) > postalPrefixLen {
		postal = postal[:postalPrefixLen]
	}
	if postal == "" {
		return 0, false
	}
	code, err := strconv.Atoi(postal)
	if err != nil {
		return 0, false
	}
	return code, true
}

// ResolveDeliveryBand returns the first band, ordered by From+To, whose
// inclusive range contains the postal prefix. The caller's slice is not reordered.
func ResolveDeliveryBand(areas []DeliveryArea, postal string) (DeliveryArea, bool) {
	code, ok := PostalPrefix(postal)
	if !ok || len(areas) == 0 {
		return DeliveryArea{}, false
	}

	sorted := make([]DeliveryArea, len(areas))
	copy(sorted, areas)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].From+sorted[i].To < sorted[j].From+sorted[j].To
	})

	for _, area := range sorted {
		if code >= area.From && code <= area.To {
			return area, true
		}
	}
	return DeliveryArea{}, false
}
