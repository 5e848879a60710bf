package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/labreport-analyzer/internal/core/domain"
)

const extractionFailedMessage = "Failed to extract text from file"

func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrUnsupportedMediaType),
		domain.IsKind(err, domain.ErrDocumentUnreadable):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrExtractionTimeout), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage never leaks internal detail for server-side failures.
func publicErrorMessage(err error) string {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), domain.IsKind(err, domain.ErrFileTooLarge):
		return "File exceeds the upload size limit"
	case domain.IsKind(err, domain.ErrUnsupportedMediaType):
		return "Only PDF, JPG and PNG files are supported"
	case domain.IsKind(err, domain.ErrDocumentUnreadable):
		return "Failed to read PDF. Please try uploading as a JPG or PNG image instead."
	case domain.IsKind(err, domain.ErrInvalidInput):
		return errorDetail(err)
	case domain.IsKind(err, domain.ErrExtractionTimeout):
		return "Text extraction timed out; please try again"
	case domain.IsKind(err, domain.ErrTemporary):
		return "Text extraction is temporarily unavailable; please try again"
	default:
		return extractionFailedMessage
	}
}

// errorDetail returns the innermost cause, which for invalid input is the user-facing reason.
func errorDetail(err error) string {
	for {
		var next error
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs := joined.Unwrap()
			if len(errs) == 0 {
				break
			}
			next = errs[len(errs)-1]
		} else {
			next = errors.Unwrap(err)
		}
		if next == nil {
			break
		}
		err = next
	}
	return err.Error()
}
