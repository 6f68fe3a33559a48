package mapping

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeAddress приводит адрес к ключу кэша: обрезка, схлопывание пробелов, Unicode NFC.
// Регистр сохраняется. Одна и та же функция применяется при чтении и записи.
func NormalizeAddress(address string) string {
	return norm.NFC.String(strings.Join(strings.Fields(address), " "))
}

var postalCityRe = regexp.MustCompile(`(\d{5})\s+([A-Za-zÄÖÜäöüß]+)`)

var streetSuffixes = map[string]bool{"str": true, "straße": true, "weg": true, "platz": true, "gasse": true}

// locality извлекает населенный пункт: сначала "PLZ Ort", затем слово перед уличным суффиксом, затем последнее слово.
func locality(address string) string {
	if m := postalCityRe.FindStringSubmatch(address); m != nil {
		return strings.ToLower(m[2])
	}
	words := strings.Fields(strings.ReplaceAll(address, ",", ""))
	for i, w := range words {
		if streetSuffixes[strings.ToLower(w)] && i > 0 {
			return strings.ToLower(words[i-1])
		}
	}
	if len(words) == 0 {
		return ""
	}
	return strings.ToLower(words[len(words)-1])
}

var postalRe = regexp.MustCompile(`\b\d{5}\b`)

// sameLocality - одинаковый почтовый индекс (если он есть у обоих адресов) или одинаковый населенный пункт.
func sameLocality(a, b string) bool {
	pa, pb := postalRe.FindString(a), postalRe.FindString(b)
	if pa != "" && pb != "" {
		return pa == pb
	}
	la, lb := locality(a), locality(b)
	return la != "" && la == lb
}
