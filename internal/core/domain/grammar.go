package domain

import (
	"regexp"
	"strconv"
	"strings"
)

type ReferenceRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r ReferenceRange) Text(unit string) string {
	text := formatNumber(r.Min) + "-" + formatNumber(r.Max)
	if unit == "" {
		return text
	}
	return text + " " + unit
}

type Correction string

const (
	CorrectionNone Correction = ""
	// CorrectionDecimalAfterFirstDigit re-reads "55" as "5.5" when the value is implausibly large.
	CorrectionDecimalAfterFirstDigit Correction = "decimal_after_first_digit"
)

type ParameterDefinition struct {
	Name    string
	Pattern *regexp.Regexp
	Unit    string

	// Range is set for numeric parameters; categorical parameters use the vocabularies.
	Range    *ReferenceRange
	Normal   []string
	Abnormal []string

	LowAdvice      string
	HighAdvice     string
	AbnormalAdvice string

	Correction      Correction
	CorrectionAbove float64
}

func (d ParameterDefinition) IsNumeric() bool {
	return d.Range != nil
}

func (d ParameterDefinition) ReferenceText() string {
	if d.Range != nil {
		return d.Range.Text(d.Unit)
	}
	if len(d.Normal) == 0 {
		return ""
	}
	return strings.Join(d.Normal, ", ")
}

// RawValue is one extracted, coerced but not yet classified parameter value.
type RawValue struct {
	Text    string  `json:"text"`
	Number  float64 `json:"number,omitempty"`
	Numeric bool    `json:"numeric"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func FormatNumber(v float64) string {
	return formatNumber(v)
}
