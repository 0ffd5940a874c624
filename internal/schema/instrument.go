package schema

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/coachpo/zebpay/errs"
)

// ValidateInstrument verifies the canonical trading pair representation (BASE-QUOTE).
func ValidateInstrument(pair string) error {
	pair = strings.TrimSpace(pair)
	if pair == "" {
		return errs.New("schema/instrument", errs.CodeInvalid, errs.WithMessage("trading pair required"))
	}
	parts := strings.Split(pair, "-")
	if len(parts) != 2 {
		return errs.New("schema/instrument", errs.CodeInvalid,
			errs.WithMessage("trading pair requires base-quote"),
			errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
	}
	for _, part := range parts {
		if part == "" {
			return errs.New("schema/instrument", errs.CodeInvalid,
				errs.WithMessage("trading pair contains empty leg"),
				errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
		}
		if strings.ToUpper(part) != part {
			return errs.New("schema/instrument", errs.CodeInvalid,
				errs.WithMessage("trading pair must be uppercase"),
				errs.WithCanonicalCode(errs.CanonicalInvalidSymbol))
		}
	}
	return nil
}

// BaseQuote splits a canonical pair into its base and quote currencies.
func BaseQuote(pair string) (base, quote string) {
	parts := strings.SplitN(strings.TrimSpace(pair), "-", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

// NormalizeCurrencyCode upper-cases and trims an asset code.
func NormalizeCurrencyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// TradingRule captures the per-pair order constraints published by the exchange.
type TradingRule struct {
	Pair         string
	MinOrderSize decimal.Decimal
	MaxOrderSize decimal.Decimal
	TickSize     decimal.Decimal
}
