package labreport

import (
	"strconv"
	"strings"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

// Extract applies every parameter pattern of the grammar to the cleaned text.
// The first match wins; a match that cannot be coerced is skipped for that parameter only.
func Extract(cleaned string, grammar ReportGrammar) map[string]domain.RawValue {
	out := make(map[string]domain.RawValue)
	for _, def := range grammar.Parameters() {
		match := def.Pattern.FindStringSubmatch(cleaned)
		if len(match) < 2 {
			continue
		}
		raw, ok := coerce(strings.TrimSpace(match[1]), def)
		if !ok {
			continue
		}
		out[def.Name] = raw
	}
	return out
}

func coerce(text string, def domain.ParameterDefinition) (domain.RawValue, bool) {
	if text == "" {
		return domain.RawValue{}, false
	}
	if !def.IsNumeric() {
		return domain.RawValue{Text: text}, true
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
	if err != nil {
		return domain.RawValue{}, false
	}

	corrected, changed := correctOCRNumber(value, text, def)
	display := text
	if changed {
		display = domain.FormatNumber(corrected)
	}
	return domain.RawValue{Text: display, Number: corrected, Numeric: true}, true
}

// correctOCRNumber compensates for decimal points OCR tends to drop.
func correctOCRNumber(value float64, text string, def domain.ParameterDefinition) (float64, bool) {
	if def.Unit == "%" && value > 100 {
		return value / 100, true
	}
	if def.Correction == domain.CorrectionDecimalAfterFirstDigit && value > def.CorrectionAbove {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, text)
		if len(digits) < 2 {
			return value, false
		}
		shifted, err := strconv.ParseFloat(digits[:1]+"."+digits[1:], 64)
		if err != nil {
			return value, false
		}
		return shifted, true
	}
	return value, false
}
