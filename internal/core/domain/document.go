package domain

import (
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
)

type DocumentKind string

const (
	KindPDF   DocumentKind = "PDF"
	KindImage DocumentKind = "IMAGE"
)

// FileType is the user-facing label reported in analysis responses.
func (k DocumentKind) FileType() string {
	if k == KindPDF {
		return "PDF"
	}
	return "Image"
}

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
)

var allowedMediaTypes = map[string]DocumentKind{
	MediaTypePDF:  KindPDF,
	MediaTypeJPEG: KindImage,
	"image/jpg":   KindImage,
	MediaTypePNG:  KindImage,
}

// ClassifyMediaType routes a declared media type to the PDF or image acquisition path.
func ClassifyMediaType(mediaType string) (DocumentKind, error) {
	normalized := NormalizeMediaType(mediaType)
	kind, ok := allowedMediaTypes[normalized]
	if !ok {
		if normalized == "" {
			normalized = "(empty)"
		}
		return "", WrapError(ErrUnsupportedMediaType, "classify document", fmt.Errorf("media type %s is not one of application/pdf, image/jpeg, image/png", normalized))
	}
	return kind, nil
}

func NormalizeMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(parsed)
}

type UploadedDocument struct {
	ID        string       `json:"id"`
	Filename  string       `json:"filename"`
	MediaType string       `json:"media_type"`
	Kind      DocumentKind `json:"kind"`
	Size      int64        `json:"size"`
	// StorageKey locates the uploaded bytes inside the request workspace.
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

type Provenance string

const (
	ProvenancePDFTextLayer   Provenance = "pdf-text-layer"
	ProvenancePDFOCRFallback Provenance = "pdf-ocr-fallback"
	ProvenanceImageOCR       Provenance = "image-ocr"
)

type ExtractedText struct {
	Text       string        `json:"text"`
	Provenance Provenance    `json:"provenance"`
	CharCount  int           `json:"char_count"`
	OCRTime    time.Duration `json:"-"`
}

type ReportType string

const (
	ReportTypeBlood ReportType = "Blood"
	ReportTypeUrine ReportType = "Urine"
)

// ParseReportType accepts "Blood" or "Urine" case-insensitively and defaults to Blood.
func ParseReportType(raw string) (ReportType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "blood":
		return ReportTypeBlood, nil
	case "urine":
		return ReportTypeUrine, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse report type", errors.New("reportType must be Blood or Urine"))
	}
}
