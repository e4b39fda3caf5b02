// Package message renders alert findings as localized, human-readable text.
package message

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Supported message languages.
const (
	LangVietnamese = "vi"
	LangEnglish    = "en"
)

// Formatter formats money and percentages for one locale and currency.
type Formatter struct {
	lang     string
	currency string
	// humanize.FormatFloat layouts
	moneyLayout string
	pct1Layout  string
	pct2Layout  string
}

// NewFormatter builds a formatter from a BCP 47 locale and an ISO 4217 code.
func NewFormatter(locale, currencyCode string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	base, _ := tag.Base()

	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return nil, fmt.Errorf("invalid currency %q: %w", currencyCode, err)
	}

	f := &Formatter{currency: unit.String()}
	switch base.String() {
	case LangVietnamese:
		f.lang = LangVietnamese
		f.moneyLayout, f.pct1Layout, f.pct2Layout = "#.###,", "#.###,#", "#.###,##"
	case LangEnglish:
		f.lang = LangEnglish
		f.moneyLayout, f.pct1Layout, f.pct2Layout = "#,###.", "#,###.#", "#,###.##"
	default:
		return nil, fmt.Errorf("unsupported locale %q: use %s or %s", locale, LangVietnamese, LangEnglish)
	}
	return f, nil
}

// Lang returns the message language.
func (f *Formatter) Lang() string {
	return f.lang
}

// Money formats an amount with no fractional digits and the currency marker.
func (f *Formatter) Money(v float64) string {
	n := humanize.FormatFloat(f.moneyLayout, v)
	switch {
	case f.currency == "VND" && f.lang == LangVietnamese:
		return n + " ₫"
	case f.currency == "USD":
		return "$" + n
	default:
		return n + " " + f.currency
	}
}

// Percent formats v with one fractional digit and a percent sign.
func (f *Formatter) Percent(v float64) string {
	return humanize.FormatFloat(f.pct1Layout, v) + "%"
}

// Decimal formats v with two fractional digits.
func (f *Formatter) Decimal(v float64) string {
	return humanize.FormatFloat(f.pct2Layout, v)
}
