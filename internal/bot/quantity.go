package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	minQuantity = 1
	maxQuantity = 99
)

var digitsRegex = regexp.MustCompile(`\d{1,3}`)

// Spanish number words customers actually type. Compounds beyond this list
// fall back to digits.
var numberWords = map[string]int{
	"un": 1, "uno": 1, "una": 1,
	"dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10,
	"once": 11, "doce": 12, "docena": 12, "quince": 15, "veinte": 20,
}

// ParseQuantity resolves a quantity from free text: bare digits, Spanish
// number words, or verb+digits phrases ("quiero 3", "dame dos"). Values
// outside the 1..99 range and unintelligible input are errors so the
// engine can re-prompt.
func ParseQuantity(text string) (int, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if match := digitsRegex.FindString(text); match != "" {
		qty, err := strconv.Atoi(match)
		if err != nil {
			return 0, fmt.Errorf("parse quantity %q: %w", match, err)
		}
		return clampQuantity(qty)
	}

	for _, token := range strings.Fields(text) {
		if qty, ok := numberWords[token]; ok {
			return clampQuantity(qty)
		}
	}

	return 0, fmt.Errorf("no quantity in %q", text)
}

func clampQuantity(qty int) (int, error) {
	if qty < minQuantity || qty > maxQuantity {
		return 0, fmt.Errorf("quantity %d out of range", qty)
	}
	return qty, nil
}
