package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db         *pgxpool.Pool
	log        *slog.Logger
	singleSale bool
}

// NewService wires the marketplace core against a Postgres pool. When
// singleSale is set, a successful purchase moves the listing to sold; when
// unset the listing stays active and may be bought repeatedly.
func NewService(db *pgxpool.Pool, logger *slog.Logger, singleSale bool) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, log: logger, singleSale: singleSale}
}

func (s *Service) Account(ctx context.Context, userID int64) (AccountView, error) {
	var out AccountView
	err := s.db.QueryRow(ctx, `
		SELECT id, username, email, world_tier, current_stage, player_level, xp,
		       points, rune_crystals, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&out.ID, &out.Username, &out.Email, &out.WorldTier, &out.CurrentStage,
		&out.PlayerLevel, &out.XP, &out.Points, &out.RuneCrystals, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ErrAccountNotFound
	}
	return out, err
}

func (s *Service) SaveSkill(ctx context.Context, in SaveSkillInput) (SkillView, error) {
	var out SkillView
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return out, fmt.Errorf("skill name is required")
	}
	in.SkillID = strings.TrimSpace(in.SkillID)
	if in.SkillID == "" {
		in.SkillID = uuid.NewString()
	}
	if in.WorldTier < 1 {
		in.WorldTier = 1
	}
	if len(in.Mechanics) == 0 {
		in.Mechanics = json.RawMessage(`{}`)
	}
	if len(in.VFX) == 0 {
		in.VFX = json.RawMessage(`{}`)
	}
	if len(in.Stats) == 0 {
		in.Stats = json.RawMessage(`{}`)
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO skills
		    (owner_id, skill_id, name, user_input, seed, world_tier,
		     combat_budget, combat_budget_max, vfx_budget, vfx_budget_base, vfx_budget_paid,
		     mechanics, vfx, stats)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, in.OwnerID, in.SkillID, in.Name, in.UserInput, in.Seed, in.WorldTier,
		in.CombatBudget, in.CombatBudgetMax, in.VFXBudget, in.VFXBudgetBase, in.VFXBudgetPaid,
		in.Mechanics, in.VFX, in.Stats).Scan(&out.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return out, ErrSkillExists
		}
		return out, err
	}
	out.SkillID = in.SkillID
	out.Name = in.Name
	out.WorldTier = in.WorldTier
	out.CombatBudget = in.CombatBudget
	out.VFXBudget = in.VFXBudget
	out.Mechanics = in.Mechanics
	out.VFX = in.VFX
	out.Stats = in.Stats
	return out, nil
}

func (s *Service) MySkills(ctx context.Context, ownerID int64) ([]SkillView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, skill_id, name, world_tier, combat_budget, vfx_budget,
		       mechanics, vfx, stats, times_used
		FROM skills
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]SkillView, 0)
	for rows.Next() {
		var v SkillView
		if err := rows.Scan(&v.ID, &v.SkillID, &v.Name, &v.WorldTier, &v.CombatBudget,
			&v.VFXBudget, &v.Mechanics, &v.VFX, &v.Stats, &v.TimesUsed); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (ListingView, error) {
	var out ListingView
	if in.Price <= 0 {
		return out, ErrInvalidPrice
	}
	currency, err := ParseCurrency(string(in.Currency))
	if err != nil {
		return out, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	if err := claimIdempotency(ctx, tx, in.SellerID, in.IdempotencyKey, "create_listing"); err != nil {
		return out, err
	}

	var skill SkillView
	err = tx.QueryRow(ctx, `
		SELECT id, skill_id, name, world_tier, combat_budget, vfx_budget,
		       mechanics, vfx, stats, times_used
		FROM skills
		WHERE skill_id = $1 AND owner_id = $2
	`, strings.TrimSpace(in.SkillID), in.SellerID).Scan(&skill.ID, &skill.SkillID, &skill.Name,
		&skill.WorldTier, &skill.CombatBudget, &skill.VFXBudget,
		&skill.Mechanics, &skill.VFX, &skill.Stats, &skill.TimesUsed)
	if err == pgx.ErrNoRows {
		return out, ErrSkillNotFound
	}
	if err != nil {
		return out, err
	}

	var alreadyListed bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM market_listings
			WHERE skill_id = $1 AND status = 'active'
		)
	`, skill.ID).Scan(&alreadyListed); err != nil {
		return out, err
	}
	if alreadyListed {
		return out, ErrAlreadyListed
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO market_listings (skill_id, seller_id, price, currency_type, status)
		VALUES ($1, $2, $3, $4, 'active')
		RETURNING id, created_at
	`, skill.ID, in.SellerID, in.Price, string(currency)).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		// The partial unique index backstops the existence check above.
		if isUniqueViolation(err) {
			return out, ErrAlreadyListed
		}
		return out, err
	}

	var username string
	if err := tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, in.SellerID).Scan(&username); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}

	out.Skill = skill
	out.SellerUsername = username
	out.SellerID = in.SellerID
	out.Price = in.Price
	out.Currency = currency
	out.Status = StatusActive
	return out, nil
}

func (s *Service) CancelListing(ctx context.Context, sellerID, listingID int64) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE market_listings
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND seller_id = $2 AND status = 'active'
	`, listingID, sellerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var ownerID int64
	var status ListingStatus
	err = s.db.QueryRow(ctx, `
		SELECT seller_id, status FROM market_listings WHERE id = $1
	`, listingID).Scan(&ownerID, &status)
	if err == pgx.ErrNoRows {
		return ErrListingNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != sellerID {
		return ErrListingNotFound
	}
	return ErrListingNotActive
}

// ExpireListings moves listings that have been active for longer than ttl to
// expired. Returns how many rows transitioned.
func (s *Service) ExpireListings(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	cmd, err := s.db.Exec(ctx, `
		UPDATE market_listings
		SET status = 'expired', updated_at = now()
		WHERE status = 'active' AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// Purchase executes one settlement: checks, clone, currency transfer,
// receipt, all inside a serializable transaction retried on conflict.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (PurchaseReceipt, error) {
	var out PurchaseReceipt

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return out, err
		}
		err = func() error {
			defer tx.Rollback(ctx)

			if err := claimIdempotency(ctx, tx, in.BuyerID, in.IdempotencyKey, "purchase"); err != nil {
				return err
			}

			var (
				skillRowID int64
				sellerID   int64
				price      int64
				currency   CurrencyKind
				status     ListingStatus
				skill      skillRecord
			)
			err := tx.QueryRow(ctx, `
				SELECT l.seller_id, l.price, l.currency_type, l.status,
				       s.id, s.skill_id, s.name, s.user_input, s.seed, s.world_tier,
				       s.combat_budget, s.combat_budget_max,
				       s.vfx_budget, s.vfx_budget_base, s.vfx_budget_paid,
				       s.mechanics, s.vfx, s.stats
				FROM market_listings l
				JOIN skills s ON s.id = l.skill_id
				WHERE l.id = $1
				FOR UPDATE OF l
			`, in.ListingID).Scan(&sellerID, &price, &currency, &status,
				&skillRowID, &skill.SkillID, &skill.Name, &skill.UserInput, &skill.Seed, &skill.WorldTier,
				&skill.CombatBudget, &skill.CombatBudgetMax,
				&skill.VFXBudget, &skill.VFXBudgetBase, &skill.VFXBudgetPaid,
				&skill.Mechanics, &skill.VFX, &skill.Stats)
			if err == pgx.ErrNoRows {
				return ErrListingNotFound
			}
			if err != nil {
				return err
			}

			var buyer Balances
			var buyerTier int
			if err := tx.QueryRow(ctx, `
				SELECT points, rune_crystals, world_tier
				FROM users
				WHERE id = $1
				FOR UPDATE
			`, in.BuyerID).Scan(&buyer.Points, &buyer.RuneCrystals, &buyerTier); err != nil {
				return err
			}

			if err := checkSettlement(status, sellerID, in.BuyerID, currency, price, buyer, buyerTier, skill.WorldTier); err != nil {
				return err
			}

			var seller Balances
			if err := tx.QueryRow(ctx, `
				SELECT points, rune_crystals
				FROM users
				WHERE id = $1
				FOR UPDATE
			`, sellerID).Scan(&seller.Points, &seller.RuneCrystals); err != nil {
				return err
			}

			newBuyer, newSeller, err := settleBalances(buyer, seller, currency, price)
			if err != nil {
				return err
			}

			// Clone the instance for the buyer; usage counters start at zero
			// because they are per-owner, not transferable.
			cloneID := uuid.NewString()
			var cloneRowID int64
			err = tx.QueryRow(ctx, `
				INSERT INTO skills
				    (owner_id, skill_id, name, user_input, seed, world_tier,
				     combat_budget, combat_budget_max, vfx_budget, vfx_budget_base, vfx_budget_paid,
				     mechanics, vfx, stats)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
				RETURNING id
			`, in.BuyerID, cloneID, skill.Name, skill.UserInput, skill.Seed, skill.WorldTier,
				skill.CombatBudget, skill.CombatBudgetMax,
				skill.VFXBudget, skill.VFXBudgetBase, skill.VFXBudgetPaid,
				skill.Mechanics, skill.VFX, skill.Stats).Scan(&cloneRowID)
			if err != nil {
				return err
			}

			if _, err := tx.Exec(ctx, `
				UPDATE users SET points = $1, rune_crystals = $2, updated_at = now() WHERE id = $3
			`, newBuyer.Points, newBuyer.RuneCrystals, in.BuyerID); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE users SET points = $1, rune_crystals = $2, updated_at = now() WHERE id = $3
			`, newSeller.Points, newSeller.RuneCrystals, sellerID); err != nil {
				return err
			}

			err = tx.QueryRow(ctx, `
				INSERT INTO transactions
				    (listing_id, buyer_id, transaction_type, amount, currency_type, buyer_skill_id, is_successful)
				VALUES ($1, $2, 'purchase', $3, $4, $5, true)
				RETURNING id, created_at
			`, in.ListingID, in.BuyerID, price, string(currency), cloneRowID).Scan(&out.TransactionID, &out.PurchasedAt)
			if err != nil {
				return err
			}

			if s.singleSale {
				_, err = tx.Exec(ctx, `
					UPDATE market_listings
					SET purchases = purchases + 1, status = 'sold', sold_at = now(), updated_at = now()
					WHERE id = $1
				`, in.ListingID)
			} else {
				_, err = tx.Exec(ctx, `
					UPDATE market_listings
					SET purchases = purchases + 1, updated_at = now()
					WHERE id = $1
				`, in.ListingID)
			}
			if err != nil {
				return err
			}

			out.Skill = cloneView(skill, cloneRowID, cloneID)
			out.AmountPaid = price
			out.Currency = currency
			return tx.Commit(ctx)
		}()
		if err == nil {
			s.log.Info("purchase settled",
				"listing_id", in.ListingID, "buyer_id", in.BuyerID,
				"transaction_id", out.TransactionID,
				"amount", out.AmountPaid, "currency", out.Currency)
			return out, nil
		}
		if !isSerializationError(err) {
			return out, err
		}
		if attempt == maxAttempts-1 {
			return out, ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return out, err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}

	return out, ErrTxConflict
}

func (s *Service) Browse(ctx context.Context, in BrowseInput) ([]ListingView, error) {
	order, err := orderClause(in.SortBy)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(in.Limit)
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT l.id, l.seller_id, l.price, l.currency_type, l.status,
		       l.views, l.purchases, l.total_rating, l.rating_count, l.created_at,
		       u.username,
		       s.id, s.skill_id, s.name, s.world_tier, s.combat_budget, s.vfx_budget,
		       s.mechanics, s.vfx, s.stats, s.times_used
		FROM market_listings l
		JOIN skills s ON s.id = l.skill_id
		JOIN users u ON u.id = l.seller_id
		WHERE l.status = 'active'
	`
	args := []any{}
	if in.WorldTier > 0 {
		args = append(args, in.WorldTier)
		query += fmt.Sprintf(" AND s.world_tier = $%d", len(args))
	}
	if element := strings.TrimSpace(in.Element); element != "" {
		args = append(args, element)
		query += fmt.Sprintf(" AND s.vfx ->> 'material' = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", order, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ListingView, 0, limit)
	ids := make([]int64, 0, limit)
	for rows.Next() {
		var v ListingView
		var totalRating float64
		if err := rows.Scan(&v.ID, &v.SellerID, &v.Price, &v.Currency, &v.Status,
			&v.Views, &v.Purchases, &totalRating, &v.RatingCount, &v.CreatedAt,
			&v.SellerUsername,
			&v.Skill.ID, &v.Skill.SkillID, &v.Skill.Name, &v.Skill.WorldTier,
			&v.Skill.CombatBudget, &v.Skill.VFXBudget,
			&v.Skill.Mechanics, &v.Skill.VFX, &v.Skill.Stats, &v.Skill.TimesUsed); err != nil {
			return nil, err
		}
		v.AverageRating = averageRating(totalRating, v.RatingCount)
		out = append(out, v)
		ids = append(ids, v.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if in.CountViews && len(ids) > 0 {
		s.bumpViews(ctx, ids)
	}
	return out, nil
}

// bumpViews increments view counters for browsed listings. The increment is
// atomic in SQL but runs outside any transaction; a lost bump under a
// concurrent status change is acceptable.
func (s *Service) bumpViews(ctx context.Context, ids []int64) {
	if _, err := s.db.Exec(ctx, `
		UPDATE market_listings SET views = views + 1 WHERE id = ANY($1)
	`, ids); err != nil {
		s.log.Warn("view counter bump failed", "err", err)
	}
}

func (s *Service) MyListings(ctx context.Context, sellerID int64) ([]ListingView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT l.id, l.seller_id, l.price, l.currency_type, l.status,
		       l.views, l.purchases, l.total_rating, l.rating_count, l.created_at,
		       u.username,
		       s.id, s.skill_id, s.name, s.world_tier, s.combat_budget, s.vfx_budget,
		       s.mechanics, s.vfx, s.stats, s.times_used
		FROM market_listings l
		JOIN skills s ON s.id = l.skill_id
		JOIN users u ON u.id = l.seller_id
		WHERE l.seller_id = $1
		ORDER BY l.created_at DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ListingView, 0)
	for rows.Next() {
		var v ListingView
		var totalRating float64
		if err := rows.Scan(&v.ID, &v.SellerID, &v.Price, &v.Currency, &v.Status,
			&v.Views, &v.Purchases, &totalRating, &v.RatingCount, &v.CreatedAt,
			&v.SellerUsername,
			&v.Skill.ID, &v.Skill.SkillID, &v.Skill.Name, &v.Skill.WorldTier,
			&v.Skill.CombatBudget, &v.Skill.VFXBudget,
			&v.Skill.Mechanics, &v.Skill.VFX, &v.Skill.Stats, &v.Skill.TimesUsed); err != nil {
			return nil, err
		}
		v.AverageRating = averageRating(totalRating, v.RatingCount)
		out = append(out, v)
	}
	return out, rows.Err()
}

// RateListing appends one rating to a listing's monotonic aggregates. Only
// accounts with a successful purchase on the listing may rate; ratings on
// terminal listings are allowed since they arrive after the sale.
func (s *Service) RateListing(ctx context.Context, in RateInput) error {
	if err := validateRating(in.Rating); err != nil {
		return err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM market_listings WHERE id = $1)
	`, in.ListingID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrListingNotFound
	}

	var purchased bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE listing_id = $1 AND buyer_id = $2 AND is_successful
		)
	`, in.ListingID, in.RaterID).Scan(&purchased); err != nil {
		return err
	}
	if !purchased {
		return ErrNotPurchased
	}

	_, err := s.db.Exec(ctx, `
		UPDATE market_listings
		SET total_rating = total_rating + $1,
		    rating_count = rating_count + 1,
		    updated_at = now()
		WHERE id = $2
	`, in.Rating, in.ListingID)
	return err
}

// cloneView is the buyer's copy of a purchased skill: new identity, same
// payload, usage counters back at zero.
func cloneView(rec skillRecord, rowID int64, skillID string) SkillView {
	return SkillView{
		ID:           rowID,
		SkillID:      skillID,
		Name:         rec.Name,
		WorldTier:    rec.WorldTier,
		CombatBudget: rec.CombatBudget,
		VFXBudget:    rec.VFXBudget,
		Mechanics:    rec.Mechanics,
		VFX:          rec.VFX,
		Stats:        rec.Stats,
		TimesUsed:    0,
	}
}

type skillRecord struct {
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
	Mechanics       []byte
	VFX             []byte
	Stats           []byte
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID int64, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
