package market

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in      string
		want    CurrencyKind
		wantErr bool
	}{
		{"points", CurrencyPoints, false},
		{"rune_crystals", CurrencyRuneCrystals, false},
		{"", CurrencyPoints, false},
		{"gold", "", true},
		{"Points", "", true},
		{"POINTS", "", true},
	}
	for _, c := range cases {
		got, err := ParseCurrency(c.in)
		if c.wantErr {
			if !errors.Is(err, ErrInvalidCurrency) {
				t.Fatalf("ParseCurrency(%q): want ErrInvalidCurrency, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseCurrency(%q): unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseCurrency(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestListingStatusTerminal(t *testing.T) {
	if StatusActive.Terminal() {
		t.Fatal("active must not be terminal")
	}
	for _, st := range []ListingStatus{StatusSold, StatusCancelled, StatusExpired} {
		if !st.Terminal() {
			t.Fatalf("%s must be terminal", st)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, DefaultBrowseLimit},
		{-5, DefaultBrowseLimit},
		{1, 1},
		{100, 100},
		{101, MaxBrowseLimit},
		{5000, MaxBrowseLimit},
	}
	for _, c := range cases {
		if got := clampLimit(c.in); got != c.want {
			t.Fatalf("clampLimit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestOrderClauseWhitelist(t *testing.T) {
	for _, key := range []string{"", "popular", "newest", "rating", "price_asc", "price_desc"} {
		clause, err := orderClause(key)
		if err != nil {
			t.Fatalf("orderClause(%q): %v", key, err)
		}
		if clause == "" {
			t.Fatalf("orderClause(%q) returned empty clause", key)
		}
	}
	if _, err := orderClause("price; DROP TABLE users"); err == nil {
		t.Fatal("orderClause must reject unknown sort keys")
	}
	if _, err := orderClause("POPULAR"); err == nil {
		t.Fatal("orderClause must be case sensitive")
	}
}

func TestOrderClauseDefaultsToPopular(t *testing.T) {
	def, _ := orderClause("")
	pop, _ := orderClause("popular")
	if def != pop {
		t.Fatalf("empty sort = %q, popular = %q", def, pop)
	}
	if !strings.Contains(pop, "purchases") {
		t.Fatalf("popular sort should lead with purchases, got %q", pop)
	}
}

func TestAverageRating(t *testing.T) {
	if got := averageRating(0, 0); got != 0 {
		t.Fatalf("unrated listing must average 0, got %v", got)
	}
	if got := averageRating(9, 2); got != 4.5 {
		t.Fatalf("averageRating(9, 2) = %v, want 4.5", got)
	}
	if got := averageRating(5, 1); got != 5 {
		t.Fatalf("averageRating(5, 1) = %v, want 5", got)
	}
}

func TestValidateRating(t *testing.T) {
	for _, r := range []float64{1.0, 3.3, 5.0} {
		if err := validateRating(r); err != nil {
			t.Fatalf("validateRating(%v): %v", r, err)
		}
	}
	for _, r := range []float64{0, 0.99, 5.01, -1, 10} {
		if !errors.Is(validateRating(r), ErrInvalidRating) {
			t.Fatalf("validateRating(%v) must fail", r)
		}
	}
}

func TestTierLockedErrorMessage(t *testing.T) {
	err := &TierLockedError{RequiredTier: 3}
	if got := err.Error(); got != "you need to reach World 3 to purchase this skill" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestBalancesGet(t *testing.T) {
	b := Balances{Points: 10, RuneCrystals: 7}
	if b.Get(CurrencyPoints) != 10 {
		t.Fatal("points lookup")
	}
	if b.Get(CurrencyRuneCrystals) != 7 {
		t.Fatal("rune crystals lookup")
	}
	if b.Total() != 17 {
		t.Fatal("total")
	}
}
