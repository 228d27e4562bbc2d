// Package money форматирует денежные суммы для документов и отчётов.
package money

import (
	"math"
	"strconv"
	"strings"
)

type format struct {
	symbol    string
	prefix    bool
	space     bool
	thousands string
	decimal   string
	fraction  int
}

var formats = map[string]format{
	"USD": {symbol: "$", prefix: true, thousands: ",", decimal: ".", fraction: 2},
	"EUR": {symbol: "€", prefix: true, thousands: ",", decimal: ".", fraction: 2},
	"GBP": {symbol: "£", prefix: true, thousands: ",", decimal: ".", fraction: 2},
	"RUB": {symbol: "₽", space: true, thousands: " ", decimal: ",", fraction: 2},
	"BRL": {symbol: "R$", prefix: true, space: true, thousands: ".", decimal: ",", fraction: 2},
	"JPY": {symbol: "¥", prefix: true, thousands: ",", decimal: ".", fraction: 0},
}

// Format возвращает сумму с символом валюты и разделителями, принятыми для неё.
// Для неизвестных валют используется код после числа: "1,234.56 XYZ".
func Format(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	f, ok := formats[currency]
	if !ok {
		f = format{symbol: currency, space: true, thousands: ",", decimal: ".", fraction: 2}
	}

	negative := amount < 0
	number := formatNumber(math.Abs(amount), f)

	var out string
	switch {
	case f.prefix && f.space:
		out = f.symbol + " " + number
	case f.prefix:
		out = f.symbol + number
	case f.space:
		out = number + " " + f.symbol
	default:
		out = number + f.symbol
	}
	if negative && number != formatNumber(0, f) {
		out = "-" + out
	}
	return out
}

func formatNumber(amount float64, f format) string {
	raw := strconv.FormatFloat(amount, 'f', f.fraction, 64)
	intPart, fracPart, _ := strings.Cut(raw, ".")

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteString(f.thousands)
		}
		sb.WriteRune(r)
	}
	if f.fraction > 0 {
		sb.WriteString(f.decimal)
		sb.WriteString(fracPart)
	}
	return sb.String()
}

// Round2 округляет до центов (половина от нуля).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsValidCurrency проверяет, что код состоит из трёх заглавных латинских букв.
func IsValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
