package labreport

import (
	"fmt"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

const allNormalStatus = "All parameters within normal range"

// Assemble folds classified parameters into a report. Unknown values land in neither list
// and do not count toward the abnormal tally.
func Assemble(params []domain.ClassifiedParameter) domain.ReportAnalysis {
	analysis := domain.ReportAnalysis{
		Parameters:         make(map[string]domain.ClassifiedParameter, len(params)),
		Order:              make([]string, 0, len(params)),
		Warnings:           []string{},
		NormalParameters:   []string{},
		AbnormalParameters: []string{},
	}

	for _, p := range params {
		analysis.Parameters[p.Name] = p
		analysis.Order = append(analysis.Order, p.Name)

		switch {
		case p.Status.IsAbnormal():
			analysis.AbnormalParameters = append(analysis.AbnormalParameters, p.Name)
		case p.Status == domain.StatusNormal:
			analysis.NormalParameters = append(analysis.NormalParameters, p.Name)
		}
		if p.Warning != "" {
			analysis.Warnings = append(analysis.Warnings, p.Warning)
		}
	}

	analysis.OverallStatus = OverallStatus(len(analysis.AbnormalParameters))
	return analysis
}

func OverallStatus(abnormal int) string {
	if abnormal == 0 {
		return allNormalStatus
	}
	return fmt.Sprintf("%d parameter(s) outside normal range", abnormal)
}

// Analyze runs normalize, extract, classify and assemble over raw report text.
func Analyze(rawText string, grammar ReportGrammar) domain.ReportAnalysis {
	cleaned := Normalize(rawText)
	values := Extract(cleaned, grammar)
	return Assemble(ClassifyAll(values, grammar))
}
