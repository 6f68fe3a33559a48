package mapping

import (
	"math"
	"strings"

	"rideguardian/internal/constants"
)

// Fallback - детерминированная оценка при недоступности картографического сервиса.
// Один населенный пункт: 10 км, иначе 50 км; плюс 2 км за каждое слово адреса назначения.
// Время рассчитывается по средней скорости 50 км/ч. Результат не кэшируется.
func Fallback(origin, destination string) (km, minutes float64) {
	if strings.TrimSpace(origin) == "" || strings.TrimSpace(destination) == "" {
		return 0, 0
	}
	base := constants.FALLBACK_OTHER_LOCALITY_KM
	if sameLocality(origin, destination) {
		base = constants.FALLBACK_SAME_LOCALITY_KM
	}
	km = base + float64(len(strings.Fields(destination)))*constants.FALLBACK_KM_PER_WORD
	minutes = km / constants.FALLBACK_AVERAGE_SPEED_KMH * 60
	return round2(km), round2(minutes)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
