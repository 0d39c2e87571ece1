package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"runesmith/internal/auth"
	"runesmith/internal/compiler"
	"runesmith/internal/config"
	"runesmith/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID   int64
	Username string
	Token    string
}

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	auth     *auth.Service
	market   *market.Service
	compiler *compiler.Client
	mux      *chi.Mux
}

// New wires the HTTP surface. compilerClient may be nil when no API key is
// configured; the compile endpoint then reports the feature as unavailable.
func New(cfg config.APIConfig, logger *slog.Logger, authSvc *auth.Service, marketSvc *market.Service, compilerClient *compiler.Client) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		auth:     authSvc,
		market:   marketSvc,
		compiler: compilerClient,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/me", s.handleMe)

			r.Post("/compile", s.handleCompile)
			r.Post("/skills", s.handleSaveSkill)
			r.Get("/skills/my", s.handleMySkills)

			r.Post("/market/listings", s.handleCreateListing)
			r.Delete("/market/listings/{id}", s.handleCancelListing)
			r.Get("/market/browse", s.handleBrowse)
			r.Get("/market/my-listings", s.handleMyListings)
			r.Post("/market/buy", s.handleBuy)
			r.Post("/market/rate", s.handleRate)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "auth_required", "missing bearer token")
			return
		}
		identity, err := s.auth.VerifyToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "auth_required", fmt.Sprintf("invalid token: %v", err))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID:   identity.UserID,
			Username: identity.Username,
			Token:    token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == 0 {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	session, err := s.auth.Signup(r.Context(), strings.TrimSpace(in.Username), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	if err := s.auth.Logout(r.Context(), user.Token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	out, err := s.market.Account(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if _, err := userFromContext(r.Context()); err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	if s.compiler == nil {
		writeError(w, http.StatusServiceUnavailable, "compiler_unavailable", "skill compiler is not configured")
		return
	}
	var in struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	draft, err := s.compiler.Compile(r.Context(), in.Description)
	if err != nil {
		if errors.Is(err, compiler.ErrEmptyInput) || errors.Is(err, compiler.ErrInputTooLong) {
			writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
			return
		}
		s.log.Error("compile failed", "err", err)
		writeError(w, http.StatusBadGateway, "compiler_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleSaveSkill(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	var in struct {
		SkillID         string          `json:"skill_id"`
		Name            string          `json:"name"`
		UserInput       string          `json:"user_input"`
		Seed            int64           `json:"seed"`
		WorldTier       int             `json:"world_tier"`
		CombatBudget    float64         `json:"combat_budget"`
		CombatBudgetMax float64         `json:"combat_budget_max"`
		VFXBudget       float64         `json:"vfx_budget"`
		VFXBudgetBase   float64         `json:"vfx_budget_base"`
		VFXBudgetPaid   float64         `json:"vfx_budget_paid"`
		Mechanics       json.RawMessage `json:"mechanics"`
		VFX             json.RawMessage `json:"vfx"`
		Stats           json.RawMessage `json:"stats"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	out, err := s.market.SaveSkill(r.Context(), market.SaveSkillInput{
		OwnerID:         user.UserID,
		SkillID:         in.SkillID,
		Name:            in.Name,
		UserInput:       in.UserInput,
		Seed:            in.Seed,
		WorldTier:       in.WorldTier,
		CombatBudget:    in.CombatBudget,
		CombatBudgetMax: in.CombatBudgetMax,
		VFXBudget:       in.VFXBudget,
		VFXBudgetBase:   in.VFXBudgetBase,
		VFXBudgetPaid:   in.VFXBudgetPaid,
		Mechanics:       in.Mechanics,
		VFX:             in.VFX,
		Stats:           in.Stats,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleMySkills(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	out, err := s.market.MySkills(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	var in struct {
		SkillID  string `json:"skill_id"`
		Price    int64  `json:"price"`
		Currency string `json:"currency"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	out, err := s.market.CreateListing(r.Context(), market.CreateListingInput{
		SellerID:       user.UserID,
		SkillID:        in.SkillID,
		Price:          in.Price,
		Currency:       market.CurrencyKind(in.Currency),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	listingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid listing id")
		return
	}
	if err := s.market.CancelListing(r.Context(), user.UserID, listingID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := market.BrowseInput{
		Element:    q.Get("element"),
		SortBy:     q.Get("sort"),
		CountViews: true,
	}
	if v := q.Get("world_tier"); v != "" {
		tier, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "invalid world_tier")
			return
		}
		in.WorldTier = tier
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "invalid limit")
			return
		}
		in.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument", "invalid offset")
			return
		}
		in.Offset = offset
	}
	out, err := s.market.Browse(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": out})
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	out, err := s.market.MyListings(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": out})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	var in struct {
		ListingID int64 `json:"listing_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	out, err := s.market.Purchase(r.Context(), market.PurchaseInput{
		BuyerID:        user.UserID,
		ListingID:      in.ListingID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "auth_required", err.Error())
		return
	}
	var in struct {
		ListingID int64   `json:"listing_id"`
		Rating    float64 `json:"rating"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	if err := s.market.RateListing(r.Context(), market.RateInput{
		RaterID:   user.UserID,
		ListingID: in.ListingID,
		Rating:    in.Rating,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var tierLocked *market.TierLockedError
	switch {
	case errors.As(err, &tierLocked):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         tierLocked.Error(),
			"code":          "tier_locked",
			"required_tier": tierLocked.RequiredTier,
		})
	case errors.Is(err, market.ErrAccountNotFound),
		errors.Is(err, market.ErrSkillNotFound),
		errors.Is(err, market.ErrListingNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidCurrency),
		errors.Is(err, market.ErrInvalidRating),
		errors.Is(err, market.ErrSelfTrade),
		errors.Is(err, market.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, market.ErrNotPurchased):
		writeError(w, http.StatusForbidden, "not_purchased", err.Error())
	case errors.Is(err, market.ErrListingNotActive),
		errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrSkillExists),
		errors.Is(err, market.ErrDuplicateIdempotency),
		errors.Is(err, market.ErrTxConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "code": code})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
