package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "runesmith/internal/cli"
	"runesmith/internal/config"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "rune",
		Short:        "RuneSmith skill forge and marketplace client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(&apiBase),
		newMeCmd(&apiBase),
		newForgeCmd(&apiBase),
		newSkillsCmd(&apiBase),
		newMarketCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a RuneSmith account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := promptRequired("Username")
			if err != nil {
				return err
			}
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Signup(ctx, username, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				Token:    session.Token,
				UserID:   session.UserID,
				Username: session.Username,
				Email:    session.Email,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to RuneSmith",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			session, err := client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				Token:    session.Token,
				UserID:   session.UserID,
				Username: session.Username,
				Email:    session.Email,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear the local token",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err == nil {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				if err := newClient(apiBase).Logout(ctx, sess.Token); err != nil {
					printWarn(fmt.Sprintf("Server logout failed: %v", err))
				}
			}
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Me(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderAccount(out)
		},
	}
}

func newForgeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "forge [description]",
		Short: "Compile a skill description into a blueprint",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			description := strings.TrimSpace(strings.Join(args, " "))
			if description == "" {
				description, err = promptRequired("Describe your skill")
				if err != nil {
					return err
				}
			}

			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			draft, err := client.Compile(ctx, sess.Token, description)
			if err != nil {
				return err
			}
			if err := renderDraft(draft); err != nil {
				return err
			}

			save, err := promptChoice("Save to your vault", []string{"yes", "no"}, "yes")
			if err != nil {
				return err
			}
			if save != "yes" {
				printInfo("Draft discarded.")
				return nil
			}

			me, err := client.Me(ctx, sess.Token)
			if err != nil {
				return err
			}
			skill := skillPayload(draft, description, me)
			out, err := client.SaveSkill(ctx, sess.Token, skill)
			if err != nil {
				return err
			}
			name, _ := out["name"].(string)
			skillID, _ := out["skill_id"].(string)
			printSuccess(fmt.Sprintf("Skill %q saved (%s).", name, skillID))
			return nil
		},
	}
}

// skillPayload shapes a compile draft into the save request, pinning the
// skill to the forger's current world tier.
func skillPayload(draft map[string]any, description string, me map[string]any) map[string]any {
	tier := 1
	if v, ok := me["world_tier"].(float64); ok && v >= 1 {
		tier = int(v)
	}

	name, _ := draft["name"].(string)
	seed := int64(0)
	if v, ok := draft["seed"].(float64); ok {
		seed = int64(v)
	}

	mechanics := map[string]any{}
	vfx := map[string]any{}
	if blueprint, ok := draft["blueprint"].(map[string]any); ok {
		if m, ok := blueprint["mechanics"].(map[string]any); ok {
			mechanics = m
		}
		if v, ok := blueprint["vfx"].(map[string]any); ok {
			vfx = v
		}
		if name == "" {
			if intent, ok := blueprint["intent"].(map[string]any); ok {
				name, _ = intent["name"].(string)
			}
		}
	}

	budget := combatBudgetFor(tier)
	return map[string]any{
		"name":              name,
		"user_input":        description,
		"seed":              seed,
		"world_tier":        tier,
		"combat_budget":     budget,
		"combat_budget_max": budget,
		"vfx_budget":        vfxBudgetFor(tier),
		"vfx_budget_base":   vfxBudgetFor(tier),
		"mechanics":         mechanics,
		"vfx":               vfx,
		"stats":             map[string]any{},
	}
}

func combatBudgetFor(tier int) float64 {
	return 100 * float64(tier)
}

func vfxBudgetFor(tier int) float64 {
	return 50 + 10*float64(tier)
}

func newSkillsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List skills in your vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).MySkills(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderSkills(out)
		},
	}
}

func newMarketCmd(apiBase *string) *cobra.Command {
	market := &cobra.Command{
		Use:   "market",
		Short: "Skill marketplace commands",
	}
	market.AddCommand(newMarketBrowseCmd(apiBase))
	market.AddCommand(newMarketSellCmd(apiBase))
	market.AddCommand(newMarketBuyCmd(apiBase))
	market.AddCommand(newMarketCancelCmd(apiBase))
	market.AddCommand(newMarketMineCmd(apiBase))
	market.AddCommand(newMarketRateCmd(apiBase))
	return market
}

func newMarketBrowseCmd(apiBase *string) *cobra.Command {
	var opts cl.BrowseOptions
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse active listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Browse(ctx, sess.Token, opts)
			if err != nil {
				return err
			}
			return renderListings(out, "MARKETPLACE")
		},
	}
	cmd.Flags().IntVar(&opts.WorldTier, "tier", 0, "filter by world tier")
	cmd.Flags().StringVar(&opts.Element, "element", "", "filter by element (Fire, Ice, ...)")
	cmd.Flags().StringVar(&opts.SortBy, "sort", "popular", "sort: popular, newest, rating, price_asc, price_desc")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "page offset")
	return cmd
}

func newMarketSellCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sell [skill_id]",
		Short: "List one of your skills for sale",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			skillID := ""
			if len(args) > 0 {
				skillID = strings.TrimSpace(args[0])
			} else {
				skillID, err = promptRequired("Skill ID")
				if err != nil {
					return err
				}
			}
			price, err := promptInt64("Price", 1)
			if err != nil {
				return err
			}
			currency, err := promptChoice("Currency", []string{"points", "rune_crystals"}, "points")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CreateListing(ctx, sess.Token, skillID, price, currency, uuid.NewString())
			if err != nil {
				return err
			}
			return renderListingCreated(out)
		},
	}
}

func newMarketBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [listing_id]",
		Short: "Buy a listed skill",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			listingID, err := int64FromArgOrPrompt(args, 0, "Listing ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Buy(ctx, sess.Token, listingID, uuid.NewString())
			if err != nil {
				return err
			}
			return renderReceipt(out)
		},
	}
}

func newMarketCancelCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [listing_id]",
		Short: "Cancel one of your active listings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			listingID, err := int64FromArgOrPrompt(args, 0, "Listing ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).CancelListing(ctx, sess.Token, listingID); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Listing %d cancelled.", listingID))
			return nil
		},
	}
}

func newMarketMineCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Show your own listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).MyListings(ctx, sess.Token)
			if err != nil {
				return err
			}
			return renderListings(out, "MY LISTINGS")
		},
	}
}

func newMarketRateCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rate [listing_id] [rating]",
		Short: "Rate a skill you bought (1.0-5.0)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return fmt.Errorf("login required: %w", err)
			}
			listingID, err := int64FromArgOrPrompt(args, 0, "Listing ID")
			if err != nil {
				return err
			}
			var rating float64
			if len(args) > 1 {
				rating, err = strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
				if err != nil {
					return fmt.Errorf("invalid rating")
				}
			} else {
				rating, err = promptFloat("Rating (1.0-5.0)", 0)
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if _, err := newClient(apiBase).Rate(ctx, sess.Token, listingID, rating); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Rated listing %d with %.1f.", listingID, rating))
			return nil
		},
	}
}

func int64FromArgOrPrompt(args []string, idx int, label string) (int64, error) {
	if len(args) > idx {
		v, err := strconv.ParseInt(strings.TrimSpace(args[idx]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt64(label, 1)
}

func prettyJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
