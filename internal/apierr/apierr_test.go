package apierr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusForMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindInvalidInput, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindExternal, http.StatusBadGateway},
		{KindPending, http.StatusAccepted},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.kind); got != c.want {
			t.Errorf("statusFor(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestRetryableOnlyExternal(t *testing.T) {
	if !Retryable(External("muxer crashed", errors.New("exit 1"))) {
		t.Error("External should be retryable")
	}
	if Retryable(InvalidInput("bad query")) {
		t.Error("InvalidInput should not be retryable")
	}
	if Retryable(errors.New("plain error")) {
		t.Error("a non-apierr error should not be retryable")
	}
}

func TestWriteHTTPSetsRetryAfterForPending(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, Pending("segment not ready"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on Pending response")
	}
}

func TestWriteHTTPTreatsUnknownErrorAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTP(rec, errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
