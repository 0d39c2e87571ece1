package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"runesmith/internal/market"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"BEARER abc ", "abc"},
		{"", ""},
		{"abc", ""},
		{"Basic abc", ""},
	}
	for _, c := range cases {
		if got := bearerToken(c.in); got != c.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIdempotencyKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/market/buy", nil)
	r.Header.Set("Idempotency-Key", "k-123")
	if got := idempotencyKey(r); got != "k-123" {
		t.Fatalf("header key = %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/v1/market/buy", nil)
	if got := idempotencyKey(r); got == "" {
		t.Fatal("missing header must generate a key")
	}
}

func TestWriteDomainErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{market.ErrListingNotFound, http.StatusNotFound},
		{market.ErrSkillNotFound, http.StatusNotFound},
		{market.ErrSelfTrade, http.StatusBadRequest},
		{market.ErrInsufficientFunds, http.StatusBadRequest},
		{market.ErrInvalidCurrency, http.StatusBadRequest},
		{market.ErrInvalidRating, http.StatusBadRequest},
		{market.ErrListingNotActive, http.StatusConflict},
		{market.ErrAlreadyListed, http.StatusConflict},
		{market.ErrDuplicateIdempotency, http.StatusConflict},
		{market.ErrTxConflict, http.StatusConflict},
		{market.ErrNotPurchased, http.StatusForbidden},
		{&market.TierLockedError{RequiredTier: 2}, http.StatusForbidden},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeDomainError(rec, c.err)
		if rec.Code != c.want {
			t.Fatalf("%v: status %d, want %d", c.err, rec.Code, c.want)
		}
	}
}

func TestWriteDomainErrorTierPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, &market.TierLockedError{RequiredTier: 3})

	var body struct {
		Error        string `json:"error"`
		Code         string `json:"code"`
		RequiredTier int    `json:"required_tier"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "tier_locked" || body.RequiredTier != 3 {
		t.Fatalf("unexpected payload %+v", body)
	}
}
