package market

import (
	"encoding/json"
	"time"
)

type AccountView struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	WorldTier    int       `json:"world_tier"`
	CurrentStage int       `json:"current_stage"`
	PlayerLevel  int       `json:"player_level"`
	XP           int64     `json:"xp"`
	Points       int64     `json:"points"`
	RuneCrystals int64     `json:"rune_crystals"`
	CreatedAt    time.Time `json:"created_at"`
}

type SkillView struct {
	ID           int64           `json:"id"`
	SkillID      string          `json:"skill_id"`
	Name         string          `json:"name"`
	WorldTier    int             `json:"world_tier"`
	CombatBudget float64         `json:"combat_budget"`
	VFXBudget    float64         `json:"vfx_budget"`
	Mechanics    json.RawMessage `json:"mechanics"`
	VFX          json.RawMessage `json:"vfx"`
	Stats        json.RawMessage `json:"stats"`
	TimesUsed    int64           `json:"times_used"`
}

type SaveSkillInput struct {
	OwnerID         int64
	SkillID         string
	Name            string
	UserInput       string
	Seed            int64
	WorldTier       int
	CombatBudget    float64
	CombatBudgetMax float64
	VFXBudget       float64
	VFXBudgetBase   float64
	VFXBudgetPaid   float64
	Mechanics       json.RawMessage
	VFX             json.RawMessage
	Stats           json.RawMessage
}

type CreateListingInput struct {
	SellerID       int64
	SkillID        string
	Price          int64
	Currency       CurrencyKind
	IdempotencyKey string
}

type ListingView struct {
	ID             int64         `json:"id"`
	Skill          SkillView     `json:"skill"`
	SellerUsername string        `json:"seller_username"`
	SellerID       int64         `json:"seller_id"`
	Price          int64         `json:"price"`
	Currency       CurrencyKind  `json:"currency_type"`
	Status         ListingStatus `json:"status"`
	Views          int64         `json:"views"`
	Purchases      int64         `json:"purchases"`
	AverageRating  float64       `json:"average_rating"`
	RatingCount    int64         `json:"rating_count"`
	CreatedAt      time.Time     `json:"created_at"`
}

type BrowseInput struct {
	WorldTier  int    // 0 means no tier filter
	Element    string // vfx material element, empty means no filter
	SortBy     string
	Limit      int
	Offset     int
	CountViews bool
}

type PurchaseInput struct {
	BuyerID        int64
	ListingID      int64
	IdempotencyKey string
}

type PurchaseReceipt struct {
	TransactionID int64        `json:"transaction_id"`
	Skill         SkillView    `json:"skill"`
	AmountPaid    int64        `json:"amount_paid"`
	Currency      CurrencyKind `json:"currency_type"`
	PurchasedAt   time.Time    `json:"purchased_at"`
}

type RateInput struct {
	RaterID   int64
	ListingID int64
	Rating    float64
}
