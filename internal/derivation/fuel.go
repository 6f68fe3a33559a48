package derivation

import (
	"rideguardian/internal/apperrors"
)

// FuelAndCost: литры = км × расход / 100, стоимость = литры × цена.
// Стоимость считается от неокругленных литров, оба значения округляются до двух знаков.
func FuelAndCost(distanceKm, consumptionPer100, pricePerLiter float64) (liters, cost float64, err error) {
	if distanceKm < 0 {
		return 0, 0, apperrors.Validation("distance_km", "Strecke darf nicht negativ sein")
	}
	if consumptionPer100 < 0 || pricePerLiter < 0 {
		return 0, 0, apperrors.Validation("fuel", "Verbrauch und Preis dürfen nicht negativ sein")
	}
	raw := distanceKm * consumptionPer100 / 100
	return Round2(raw), Round2(raw * pricePerLiter), nil
}
