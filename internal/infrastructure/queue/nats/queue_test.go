package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

func TestEncodeEventCarriesAnalysis(t *testing.T) {
	event := domain.ReportAnalyzedEvent{
		DocumentID: "doc-1",
		ReportType: domain.ReportTypeBlood,
		FileType:   "PDF",
		Provenance: domain.ProvenancePDFTextLayer,
		Analysis: domain.ReportAnalysis{
			Parameters:         map[string]domain.ClassifiedParameter{"Hemoglobin": {Name: "Hemoglobin", Value: "10.5", Status: domain.StatusLow}},
			Warnings:           []string{},
			NormalParameters:   []string{},
			AbnormalParameters: []string{"Hemoglobin"},
			OverallStatus:      "1 parameter(s) outside normal range",
		},
		AnalyzedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	payload, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if decoded["documentId"] != "doc-1" || decoded["provenance"] != "pdf-text-layer" {
		t.Fatalf("unexpected payload %s", payload)
	}
	analysis, ok := decoded["analysis"].(map[string]any)
	if !ok || analysis["overallStatus"] != "1 parameter(s) outside normal range" {
		t.Fatalf("analysis missing from payload %s", payload)
	}
}

func TestEncodeEventRequiresDocumentID(t *testing.T) {
	if _, err := encodeEvent(domain.ReportAnalyzedEvent{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "canceled", err: context.Canceled, retryable: false, record: false},
		{name: "no servers", err: fmt.Errorf("nats publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "closed", err: nats.ErrConnectionClosed, retryable: true, record: true},
		{name: "payload too large", err: nats.ErrMaxPayload, retryable: false, record: false},
		{name: "circuit open", err: gobreaker.ErrOpenState, retryable: true, record: true},
		{name: "other", err: errors.New("boom"), retryable: false, record: true},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary for connectivity failure, got %v", err)
	}
	permanent := errors.New("bad payload")
	if err := wrapTemporaryIfNeeded(permanent); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent errors must not be marked temporary")
	}
}
