package labreport

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

// SevereDeviationPercent is the deviation from the nearest bound above which an
// abnormal numeric value is graded Severe.
const SevereDeviationPercent = 20.0

func Classify(raw domain.RawValue, def domain.ParameterDefinition) domain.ClassifiedParameter {
	if def.IsNumeric() && raw.Numeric {
		return classifyNumeric(raw, def)
	}
	return classifyCategorical(raw, def)
}

// ClassifyAll classifies the extracted values in grammar order.
func ClassifyAll(values map[string]domain.RawValue, grammar ReportGrammar) []domain.ClassifiedParameter {
	out := make([]domain.ClassifiedParameter, 0, len(values))
	for _, def := range grammar.Parameters() {
		raw, ok := values[def.Name]
		if !ok {
			continue
		}
		out = append(out, Classify(raw, def))
	}
	return out
}

func classifyNumeric(raw domain.RawValue, def domain.ParameterDefinition) domain.ClassifiedParameter {
	value := raw.Number
	param := domain.ClassifiedParameter{
		Name:               def.Name,
		Value:              raw.Text,
		NumericValue:       &value,
		Unit:               def.Unit,
		Status:             domain.StatusNormal,
		Severity:           domain.SeverityNormal,
		ReferenceRangeText: def.ReferenceText(),
	}

	var bound float64
	var advice, direction string
	switch {
	case value < def.Range.Min:
		param.Status = domain.StatusLow
		bound, advice, direction = def.Range.Min, def.LowAdvice, "below"
	case value > def.Range.Max:
		param.Status = domain.StatusHigh
		bound, advice, direction = def.Range.Max, def.HighAdvice, "above"
	default:
		return param
	}

	deviation := DeviationPercent(value, bound)
	param.DeviationPercent = math.Round(deviation*10) / 10
	param.Severity = GradeSeverity(deviation)
	if param.Severity == domain.SeveritySevere {
		if advice == "" {
			advice = fmt.Sprintf("%s is %s", def.Name, strings.ToLower(string(param.Status)))
		}
		param.Warning = fmt.Sprintf("%s: %s [%s, %.1f%% %s %s]",
			def.Name, advice, strings.TrimSpace(raw.Text+" "+def.Unit), deviation, direction, def.ReferenceText())
	}
	return param
}

// DeviationPercent is |value - bound| / bound * 100. A zero bound yields +Inf.
func DeviationPercent(value, bound float64) float64 {
	if bound == 0 {
		return math.Inf(1)
	}
	return math.Abs(value-bound) / math.Abs(bound) * 100
}

func GradeSeverity(deviation float64) domain.Severity {
	if deviation > SevereDeviationPercent {
		return domain.SeveritySevere
	}
	return domain.SeverityMild
}

func classifyCategorical(raw domain.RawValue, def domain.ParameterDefinition) domain.ClassifiedParameter {
	param := domain.ClassifiedParameter{
		Name:               def.Name,
		Value:              raw.Text,
		Unit:               def.Unit,
		Status:             domain.StatusUnknown,
		ReferenceRangeText: def.ReferenceText(),
	}

	text := normalizeCategorical(raw.Text)
	switch {
	case matchesVocabulary(text, def.Abnormal):
		param.Status = domain.StatusAbnormal
		advice := def.AbnormalAdvice
		if advice == "" {
			advice = "abnormal finding"
		}
		param.Warning = fmt.Sprintf("%s: %s [%s]", def.Name, advice, raw.Text)
	case matchesVocabulary(text, def.Normal):
		param.Status = domain.StatusNormal
	}
	return param
}

// matchesVocabulary reports whether text is a term or starts with a term followed by a
// non-alphanumeric rune, so "negative negative" (result + reference columns) still matches.
func matchesVocabulary(text string, terms []string) bool {
	for _, term := range terms {
		if text == term {
			return true
		}
		if !strings.HasPrefix(text, term) {
			continue
		}
		next := []rune(text[len(term):])[0]
		if !unicode.IsLetter(next) && !unicode.IsDigit(next) && !isSignRune(term, next) {
			return true
		}
	}
	return false
}

// isSignRune keeps "+" from matching the longer "++" reading.
func isSignRune(term string, next rune) bool {
	return next == '+' && strings.HasSuffix(term, "+")
}

func normalizeCategorical(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Trim(text, ".,;")
	return strings.Join(strings.Fields(text), " ")
}
