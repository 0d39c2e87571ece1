package market

import (
	"errors"
	"testing"
)

func TestCheckSettlement(t *testing.T) {
	buyer := Balances{Points: 150, RuneCrystals: 10}

	cases := []struct {
		name         string
		status       ListingStatus
		sellerID     int64
		buyerID      int64
		kind         CurrencyKind
		price        int64
		buyerTier    int
		requiredTier int
		wantErr      error
	}{
		{
			name:   "sold listing",
			status: StatusSold, sellerID: 1, buyerID: 2,
			kind: CurrencyPoints, price: 50, buyerTier: 5, requiredTier: 1,
			wantErr: ErrListingNotActive,
		},
		{
			name:   "cancelled listing",
			status: StatusCancelled, sellerID: 1, buyerID: 2,
			kind: CurrencyPoints, price: 50, buyerTier: 5, requiredTier: 1,
			wantErr: ErrListingNotActive,
		},
		{
			name:   "expired listing",
			status: StatusExpired, sellerID: 1, buyerID: 2,
			kind: CurrencyPoints, price: 50, buyerTier: 5, requiredTier: 1,
			wantErr: ErrListingNotActive,
		},
		{
			name:   "self trade",
			status: StatusActive, sellerID: 2, buyerID: 2,
			kind: CurrencyPoints, price: 50, buyerTier: 5, requiredTier: 1,
			wantErr: ErrSelfTrade,
		},
		{
			name:   "insufficient matching currency despite ample other currency",
			status: StatusActive, sellerID: 1, buyerID: 2,
			kind: CurrencyRuneCrystals, price: 50, buyerTier: 5, requiredTier: 1,
			wantErr: ErrInsufficientFunds,
		},
		{
			name:   "exact balance passes",
			status: StatusActive, sellerID: 1, buyerID: 2,
			kind: CurrencyPoints, price: 150, buyerTier: 5, requiredTier: 1,
			wantErr: nil,
		},
		{
			name:   "happy path",
			status: StatusActive, sellerID: 1, buyerID: 2,
			kind: CurrencyPoints, price: 50, buyerTier: 2, requiredTier: 2,
			wantErr: nil,
		},
	}
	for _, c := range cases {
		err := checkSettlement(c.status, c.sellerID, c.buyerID, c.kind, c.price, buyer, c.buyerTier, c.requiredTier)
		if !errors.Is(err, c.wantErr) {
			t.Fatalf("%s: got %v, want %v", c.name, err, c.wantErr)
		}
	}
}

func TestCheckSettlementTierLock(t *testing.T) {
	buyer := Balances{Points: 1000}
	err := checkSettlement(StatusActive, 1, 2, CurrencyPoints, 50, buyer, 1, 4)
	var tl *TierLockedError
	if !errors.As(err, &tl) {
		t.Fatalf("want TierLockedError, got %v", err)
	}
	if tl.RequiredTier != 4 {
		t.Fatalf("RequiredTier = %d, want 4", tl.RequiredTier)
	}
}

func TestCheckSettlementOrder(t *testing.T) {
	// A sold listing reports not-active even when every later check would
	// also fail; state is checked before self-trade, funds and tier.
	buyer := Balances{}
	err := checkSettlement(StatusSold, 2, 2, CurrencyPoints, 999, buyer, 1, 9)
	if !errors.Is(err, ErrListingNotActive) {
		t.Fatalf("got %v, want ErrListingNotActive", err)
	}
	err = checkSettlement(StatusActive, 2, 2, CurrencyPoints, 999, buyer, 1, 9)
	if !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("got %v, want ErrSelfTrade", err)
	}
	err = checkSettlement(StatusActive, 1, 2, CurrencyPoints, 999, buyer, 1, 9)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestSettleBalancesPoints(t *testing.T) {
	buyer := Balances{Points: 150, RuneCrystals: 30}
	seller := Balances{Points: 100, RuneCrystals: 5}

	newBuyer, newSeller, err := settleBalances(buyer, seller, CurrencyPoints, 50)
	if err != nil {
		t.Fatalf("settleBalances: %v", err)
	}
	if newBuyer.Points != 100 || newSeller.Points != 150 {
		t.Fatalf("points: buyer %d seller %d, want 100/150", newBuyer.Points, newSeller.Points)
	}
	if newBuyer.RuneCrystals != 30 || newSeller.RuneCrystals != 5 {
		t.Fatal("rune crystals must be untouched by a points purchase")
	}
}

func TestSettleBalancesRuneCrystals(t *testing.T) {
	buyer := Balances{Points: 1, RuneCrystals: 20}
	seller := Balances{Points: 2, RuneCrystals: 3}

	newBuyer, newSeller, err := settleBalances(buyer, seller, CurrencyRuneCrystals, 20)
	if err != nil {
		t.Fatalf("settleBalances: %v", err)
	}
	if newBuyer.RuneCrystals != 0 || newSeller.RuneCrystals != 23 {
		t.Fatalf("rune crystals: buyer %d seller %d, want 0/23", newBuyer.RuneCrystals, newSeller.RuneCrystals)
	}
	if newBuyer.Points != 1 || newSeller.Points != 2 {
		t.Fatal("points must be untouched by a rune crystal purchase")
	}
}

func TestSettleBalancesConservation(t *testing.T) {
	cases := []struct {
		buyer, seller Balances
		kind          CurrencyKind
		price         int64
	}{
		{Balances{Points: 500}, Balances{Points: 10}, CurrencyPoints, 499},
		{Balances{RuneCrystals: 7}, Balances{}, CurrencyRuneCrystals, 7},
		{Balances{Points: 80, RuneCrystals: 80}, Balances{Points: 80, RuneCrystals: 80}, CurrencyPoints, 1},
	}
	for _, c := range cases {
		before := c.buyer.Total() + c.seller.Total()
		nb, ns, err := settleBalances(c.buyer, c.seller, c.kind, c.price)
		if err != nil {
			t.Fatalf("settleBalances: %v", err)
		}
		after := nb.Total() + ns.Total()
		if before != after {
			t.Fatalf("currency not conserved: %d before, %d after", before, after)
		}
	}
}

func TestCloneViewResetsCounters(t *testing.T) {
	rec := skillRecord{
		SkillID:      "orig-id",
		Name:         "Fire Spear",
		WorldTier:    3,
		CombatBudget: 300,
		VFXBudget:    80,
		Mechanics:    []byte(`{"delivery":"Projectile"}`),
		VFX:          []byte(`{"material":"Fire"}`),
		Stats:        []byte(`{}`),
	}

	clone := cloneView(rec, 42, "new-id")
	if clone.ID != 42 || clone.SkillID != "new-id" {
		t.Fatalf("clone identity: %d %q", clone.ID, clone.SkillID)
	}
	if clone.SkillID == rec.SkillID {
		t.Fatal("clone must not share the original skill id")
	}
	if clone.TimesUsed != 0 {
		t.Fatalf("usage counter must reset, got %d", clone.TimesUsed)
	}
	if clone.Name != rec.Name || clone.WorldTier != rec.WorldTier || clone.CombatBudget != rec.CombatBudget {
		t.Fatal("payload fields must carry over unchanged")
	}
	if string(clone.Mechanics) != string(rec.Mechanics) || string(clone.VFX) != string(rec.VFX) {
		t.Fatal("blueprint blobs must carry over verbatim")
	}
}

func TestSettleBalancesRejectsBadInput(t *testing.T) {
	buyer := Balances{Points: 10}
	seller := Balances{}

	if _, _, err := settleBalances(buyer, seller, CurrencyPoints, 0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("zero price: got %v", err)
	}
	if _, _, err := settleBalances(buyer, seller, CurrencyPoints, -5); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("negative price: got %v", err)
	}
	if _, _, err := settleBalances(buyer, seller, CurrencyPoints, 11); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft: got %v", err)
	}
	// Failed settlement must not move anything.
	nb, ns, _ := settleBalances(buyer, seller, CurrencyPoints, 11)
	if nb != buyer || ns != seller {
		t.Fatal("failed settlement changed balances")
	}
}
