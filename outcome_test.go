package repscan

import (
	"net/http"
	"testing"
)

func TestOutcomeFromStatus(t *testing.T) {
	tt := []struct {
		code int
		want Outcome
	}{
		{http.StatusOK, OutcomeSuccess},
		{http.StatusTooManyRequests, OutcomeRateLimited},
		{http.StatusUnauthorized, OutcomeUnauthorized},
		{http.StatusForbidden, OutcomeUnauthorized},
		{http.StatusNotFound, OutcomeError},
		{http.StatusInternalServerError, OutcomeError},
		{http.StatusServiceUnavailable, OutcomeError},
		{0, OutcomeError},
	}
	for _, tc := range tt {
		if got := OutcomeFromStatus(tc.code); got != tc.want {
			t.Errorf("status %d: got %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestFlagHas(t *testing.T) {
	f := FlagRescan | FlagLocalOnly
	if !f.Has(FlagRescan) || !f.Has(FlagLocalOnly) || !f.Has(FlagRescan|FlagLocalOnly) {
		t.Error("combined flags not reported")
	}
	if FlagRescan.Has(FlagLocalOnly) {
		t.Error("FlagRescan reports FlagLocalOnly")
	}
}
