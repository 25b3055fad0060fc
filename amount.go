package main

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type amountSuffix struct {
	value  float64
	suffix string
}

// Descending; FormatAmount picks the first threshold the amount reaches.
var amountSuffixes = []amountSuffix{
	{1e27, "Oc"}, {1e24, "Sp"}, {1e21, "Sx"}, {1e18, "Qi"},
	{1e15, "Qa"}, {1e12, "T"}, {1e9, "B"}, {1e6, "M"}, {1e3, "K"},
}

var amountMultipliers = map[string]float64{
	"k": 1e3, "m": 1e6, "b": 1e9, "t": 1e12,
	"qa": 1e15, "qi": 1e18, "sx": 1e21,
	"sp": 1e24, "oc": 1e27,
}

var amountPattern = regexp.MustCompile(`^([\d,.]+)\s*([a-z]*)$`)

// FormatAmount renders an amount in suffix notation ("1.5K", "2M").
// The output keeps two decimals at most, so ParseAmount(FormatAmount(x))
// is not guaranteed to equal x.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) {
		return "0"
	}
	for _, s := range amountSuffixes {
		if amount >= s.value {
			return trimDecimal(strconv.FormatFloat(amount/s.value, 'f', 2, 64)) + s.suffix
		}
	}
	return strconv.FormatInt(int64(amount), 10)
}

func trimDecimal(formatted string) string {
	if !strings.Contains(formatted, ".") {
		return formatted
	}
	formatted = strings.TrimRight(formatted, "0")
	return strings.TrimSuffix(formatted, ".")
}

// ParseAmount reads user input such as "1,500", "2.5m" or "3Qa".
// Unknown suffixes count as a multiplier of one.
func ParseAmount(text string) (float64, error) {
	input := strings.ToLower(strings.TrimSpace(text))
	match := amountPattern.FindStringSubmatch(input)
	if match == nil {
		return 0, errors.Annotatef(ErrInvalidAmount, "%q", text)
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0, errors.Annotatef(ErrInvalidAmount, "%q", text)
	}
	mult, ok := amountMultipliers[match[2]]
	if !ok {
		mult = 1
	}
	amount := num * mult
	if err := validateAmount(amount); err != nil {
		return 0, errors.Annotatef(err, "%q", text)
	}
	return amount, nil
}

func validateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}
