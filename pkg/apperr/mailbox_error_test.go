package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestAsAppError(t *testing.T) {
	plain := errors.New("boom")

	got := AsAppError(plain)
	if got.Code != CodeInternalError {
		t.Errorf("expected %s, got %s", CodeInternalError, got.Code)
	}
	if !errors.Is(got, plain) {
		t.Error("expected wrapped error to be reachable")
	}

	wrapped := ModelUnavailable(plain)
	if AsAppError(wrapped) != wrapped {
		t.Error("expected AsAppError to return the same AppError")
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("email"), http.StatusNotFound},
		{"model", ModelUnavailable(nil), http.StatusServiceUnavailable},
		{"busy", BatchRunning(), http.StatusConflict},
		{"parse", ParseFailed("a.eml", nil), http.StatusUnprocessableEntity},
		{"plain", errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAppErrorMessage(t *testing.T) {
	err := InvalidInput("paths", "must not be empty")
	if err.Error() != "[INVALID_INPUT] invalid input for 'paths': must not be empty" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if err.Details["field"] != "paths" {
		t.Errorf("expected field detail, got %v", err.Details)
	}
}
