package market

import (
	"errors"
	"fmt"
)

// CurrencyKind names one of the two independent account balances. The two
// are never convertible into one another.
type CurrencyKind string

const (
	CurrencyPoints       CurrencyKind = "points"
	CurrencyRuneCrystals CurrencyKind = "rune_crystals"
)

func ParseCurrency(s string) (CurrencyKind, error) {
	switch CurrencyKind(s) {
	case CurrencyPoints:
		return CurrencyPoints, nil
	case CurrencyRuneCrystals:
		return CurrencyRuneCrystals, nil
	case "":
		return CurrencyPoints, nil
	default:
		return "", ErrInvalidCurrency
	}
}

// ListingStatus is the listing state machine. Active is the only non-terminal
// state; sold, cancelled and expired are sinks.
type ListingStatus string

const (
	StatusActive    ListingStatus = "active"
	StatusSold      ListingStatus = "sold"
	StatusCancelled ListingStatus = "cancelled"
	StatusExpired   ListingStatus = "expired"
)

func (s ListingStatus) Terminal() bool {
	return s != StatusActive
}

const (
	MinRating = 1.0
	MaxRating = 5.0

	MaxBrowseLimit     = 100
	DefaultBrowseLimit = 20
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrSkillNotFound        = errors.New("skill not found or not owned by you")
	ErrSkillExists          = errors.New("skill already saved")
	ErrListingNotFound      = errors.New("listing not found")
	ErrListingNotActive     = errors.New("listing is not active")
	ErrAlreadyListed        = errors.New("skill is already listed")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInvalidCurrency      = errors.New("currency must be points or rune_crystals")
	ErrSelfTrade            = errors.New("cannot buy your own skill")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidRating        = errors.New("rating must be between 1.0 and 5.0")
	ErrNotPurchased         = errors.New("only buyers of this listing may rate it")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("settlement conflict, retry the purchase")
)

// TierLockedError carries the world tier the buyer still has to reach, so
// callers can render "reach World N".
type TierLockedError struct {
	RequiredTier int
}

func (e *TierLockedError) Error() string {
	return fmt.Sprintf("you need to reach World %d to purchase this skill", e.RequiredTier)
}

// Balances holds the two currency balances of one account.
type Balances struct {
	Points       int64
	RuneCrystals int64
}

func (b Balances) Get(kind CurrencyKind) int64 {
	if kind == CurrencyRuneCrystals {
		return b.RuneCrystals
	}
	return b.Points
}

func (b Balances) Total() int64 {
	return b.Points + b.RuneCrystals
}

// checkSettlement runs the pre-mutation settlement checks in a fixed order:
// listing state, self-trade, matching-currency funds, world tier. Any error
// means no mutation may happen.
func checkSettlement(status ListingStatus, sellerID, buyerID int64, kind CurrencyKind, price int64, buyer Balances, buyerTier, requiredTier int) error {
	if status != StatusActive {
		return ErrListingNotActive
	}
	if sellerID == buyerID {
		return ErrSelfTrade
	}
	if buyer.Get(kind) < price {
		return ErrInsufficientFunds
	}
	if buyerTier < requiredTier {
		return &TierLockedError{RequiredTier: requiredTier}
	}
	return nil
}

// settleBalances computes post-purchase balances for buyer and seller.
// Exactly price moves from buyer to seller in the matching currency; the
// other currency is untouched, so conservation is exact.
func settleBalances(buyer, seller Balances, kind CurrencyKind, price int64) (Balances, Balances, error) {
	if price <= 0 {
		return buyer, seller, ErrInvalidPrice
	}
	if buyer.Get(kind) < price {
		return buyer, seller, ErrInsufficientFunds
	}
	switch kind {
	case CurrencyRuneCrystals:
		buyer.RuneCrystals -= price
		seller.RuneCrystals += price
	default:
		buyer.Points -= price
		seller.Points += price
	}
	return buyer, seller, nil
}

func validateRating(r float64) error {
	if r < MinRating || r > MaxRating {
		return ErrInvalidRating
	}
	return nil
}

// averageRating divides the cumulative rating sum by max(count, 1).
func averageRating(total float64, count int64) float64 {
	if count < 1 {
		count = 1
	}
	return total / float64(count)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultBrowseLimit
	}
	if limit > MaxBrowseLimit {
		return MaxBrowseLimit
	}
	return limit
}

// orderClause maps a caller-supplied sort key to a fixed ORDER BY fragment.
// Only whitelisted keys are ever interpolated into SQL.
func orderClause(sortBy string) (string, error) {
	switch sortBy {
	case "", "popular":
		return "l.purchases DESC, l.views DESC", nil
	case "newest":
		return "l.created_at DESC", nil
	case "rating":
		return "(l.total_rating / GREATEST(l.rating_count, 1)) DESC", nil
	case "price_asc":
		return "l.price ASC", nil
	case "price_desc":
		return "l.price DESC", nil
	default:
		return "", fmt.Errorf("sort must be one of popular, newest, rating, price_asc, price_desc")
	}
}
