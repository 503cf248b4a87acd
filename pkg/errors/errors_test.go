package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	appErr := New(ErrInvalidInput, http.StatusBadRequest, "text must not be empty")

	if !errors.Is(appErr, ErrInvalidInput) {
		t.Error("AppError should unwrap to its sentinel")
	}
	want := "invalid input: text must not be empty"
	if appErr.Error() != want {
		t.Errorf("Error() = %q, want %q", appErr.Error(), want)
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	appErr := Newf(ErrDocumentNotFound, http.StatusNotFound, "document %q not indexed", "doc-7")

	if appErr.Message != `document "doc-7" not indexed` {
		t.Errorf("Message = %q", appErr.Message)
	}
	if appErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", appErr.StatusCode, http.StatusNotFound)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"document not found", ErrDocumentNotFound, http.StatusNotFound},
		{"unsupported operation", ErrUnsupportedOperation, http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"store unavailable", ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"internal", ErrInternal, http.StatusInternalServerError},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped sentinel", fmt.Errorf("indexing doc-3: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"app error status wins", New(ErrInternal, http.StatusBadGateway, "upstream"), http.StatusBadGateway},
		{"wrapped app error", fmt.Errorf("handler: %w", New(ErrTimeout, http.StatusGatewayTimeout, "slow store")), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
