// Package labreport turns OCR or PDF text of a lab report into a classified analysis.
package labreport

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

//go:embed grammars.yaml
var defaultGrammarsYAML []byte

// ReportGrammar is the fixed set of parameter definitions for one report type.
type ReportGrammar interface {
	ReportType() domain.ReportType
	Parameters() []domain.ParameterDefinition
}

type BloodGrammar struct {
	params []domain.ParameterDefinition
}

func (g *BloodGrammar) ReportType() domain.ReportType { return domain.ReportTypeBlood }

func (g *BloodGrammar) Parameters() []domain.ParameterDefinition { return g.params }

type UrineGrammar struct {
	params []domain.ParameterDefinition
}

func (g *UrineGrammar) ReportType() domain.ReportType { return domain.ReportTypeUrine }

func (g *UrineGrammar) Parameters() []domain.ParameterDefinition { return g.params }

// Grammars selects a ReportGrammar by report type.
type Grammars struct {
	blood *BloodGrammar
	urine *UrineGrammar
}

func (g *Grammars) For(reportType domain.ReportType) (ReportGrammar, error) {
	switch reportType {
	case domain.ReportTypeBlood:
		return g.blood, nil
	case domain.ReportTypeUrine:
		return g.urine, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "select grammar", fmt.Errorf("unknown report type %q", reportType))
	}
}

func DefaultGrammars() (*Grammars, error) {
	return LoadGrammars(bytes.NewReader(defaultGrammarsYAML))
}

type grammarFile struct {
	Blood []parameterSpec `yaml:"blood"`
	Urine []parameterSpec `yaml:"urine"`
}

type parameterSpec struct {
	Name            string                 `yaml:"name"`
	Pattern         string                 `yaml:"pattern"`
	Unit            string                 `yaml:"unit"`
	Range           *domain.ReferenceRange `yaml:"range"`
	Normal          []string               `yaml:"normal"`
	Abnormal        []string               `yaml:"abnormal"`
	Correction      string                 `yaml:"correction"`
	CorrectionAbove float64                `yaml:"correction_above"`
	Advice          struct {
		Low      string `yaml:"low"`
		High     string `yaml:"high"`
		Abnormal string `yaml:"abnormal"`
	} `yaml:"advice"`
}

func LoadGrammars(r io.Reader) (*Grammars, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file grammarFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode grammars: %w", err)
	}

	blood, err := compileParameters(file.Blood)
	if err != nil {
		return nil, fmt.Errorf("blood grammar: %w", err)
	}
	urine, err := compileParameters(file.Urine)
	if err != nil {
		return nil, fmt.Errorf("urine grammar: %w", err)
	}
	if len(blood) == 0 || len(urine) == 0 {
		return nil, errors.New("grammars must define both blood and urine parameters")
	}

	return &Grammars{
		blood: &BloodGrammar{params: blood},
		urine: &UrineGrammar{params: urine},
	}, nil
}

func compileParameters(entries []parameterSpec) ([]domain.ParameterDefinition, error) {
	out := make([]domain.ParameterDefinition, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, errors.New("parameter name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("parameter %s defined twice", name)
		}
		seen[name] = struct{}{}

		pattern, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: compile pattern: %w", name, err)
		}
		if pattern.NumSubexp() != 1 {
			return nil, fmt.Errorf("parameter %s: pattern must have exactly one capture group, has %d", name, pattern.NumSubexp())
		}

		categorical := len(entry.Normal) > 0 || len(entry.Abnormal) > 0
		switch {
		case entry.Range != nil && categorical:
			return nil, fmt.Errorf("parameter %s: declare either a range or a vocabulary, not both", name)
		case entry.Range == nil && !categorical:
			return nil, fmt.Errorf("parameter %s: a range or a vocabulary is required", name)
		case entry.Range != nil && entry.Range.Min > entry.Range.Max:
			return nil, fmt.Errorf("parameter %s: range min %v exceeds max %v", name, entry.Range.Min, entry.Range.Max)
		}

		correction := domain.Correction(entry.Correction)
		if correction != domain.CorrectionNone && correction != domain.CorrectionDecimalAfterFirstDigit {
			return nil, fmt.Errorf("parameter %s: unknown correction %q", name, entry.Correction)
		}

		def := domain.ParameterDefinition{
			Name:            name,
			Pattern:         pattern,
			Unit:            strings.TrimSpace(entry.Unit),
			Normal:          normalizeVocabulary(entry.Normal),
			Abnormal:        normalizeVocabulary(entry.Abnormal),
			LowAdvice:       strings.TrimSpace(entry.Advice.Low),
			HighAdvice:      strings.TrimSpace(entry.Advice.High),
			AbnormalAdvice:  strings.TrimSpace(entry.Advice.Abnormal),
			Correction:      correction,
			CorrectionAbove: entry.CorrectionAbove,
		}
		if entry.Range != nil {
			rng := *entry.Range
			def.Range = &rng
		}
		out = append(out, def)
	}
	return out, nil
}

func normalizeVocabulary(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = normalizeCategorical(term)
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}
