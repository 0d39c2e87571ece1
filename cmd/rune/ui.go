package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type accountView struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	WorldTier    int    `json:"world_tier"`
	CurrentStage int    `json:"current_stage"`
	PlayerLevel  int    `json:"player_level"`
	XP           int64  `json:"xp"`
	Points       int64  `json:"points"`
	RuneCrystals int64  `json:"rune_crystals"`
}

type skillView struct {
	ID           int64           `json:"id"`
	SkillID      string          `json:"skill_id"`
	Name         string          `json:"name"`
	WorldTier    int             `json:"world_tier"`
	CombatBudget float64         `json:"combat_budget"`
	VFXBudget    float64         `json:"vfx_budget"`
	VFX          json.RawMessage `json:"vfx"`
	TimesUsed    int64           `json:"times_used"`
}

type listingView struct {
	ID             int64     `json:"id"`
	Skill          skillView `json:"skill"`
	SellerUsername string    `json:"seller_username"`
	Price          int64     `json:"price"`
	Currency       string    `json:"currency_type"`
	Status         string    `json:"status"`
	Views          int64     `json:"views"`
	Purchases      int64     `json:"purchases"`
	AverageRating  float64   `json:"average_rating"`
	RatingCount    int64     `json:"rating_count"`
	CreatedAt      time.Time `json:"created_at"`
}

type skillsPayload struct {
	Skills []skillView `json:"skills"`
}

type listingsPayload struct {
	Listings []listingView `json:"listings"`
}

type receiptPayload struct {
	TransactionID int64     `json:"transaction_id"`
	Skill         skillView `json:"skill"`
	AmountPaid    int64     `json:"amount_paid"`
	Currency      string    `json:"currency_type"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptPassword reads without echo when stdin is a terminal, otherwise
// falls back to a plain line read so piped input still works.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(raw))
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderAccount(raw map[string]any) error {
	a, err := decodeInto[accountView](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", strings.ToUpper(a.Username))
	fmt.Printf("Email:         %s\n", a.Email)
	fmt.Printf("World Tier:    %d (stage %d)\n", a.WorldTier, a.CurrentStage)
	fmt.Printf("Level:         %d (%s xp)\n", a.PlayerLevel, comma(a.XP))
	fmt.Printf("Points:        %s\n", comma(a.Points))
	fmt.Printf("Rune Crystals: %s\n", comma(a.RuneCrystals))
	fmt.Println()
	return nil
}

func renderDraft(draft map[string]any) error {
	name, _ := draft["name"].(string)
	accent.Printf("\n== FORGED: %s ==\n", name)
	if seed, ok := draft["seed"].(float64); ok {
		fmt.Printf("Seed: %d\n", int64(seed))
	}
	if blueprint, ok := draft["blueprint"]; ok {
		fmt.Println(prettyJSON(blueprint))
	}
	fmt.Println()
	return nil
}

func renderSkills(raw map[string]any) error {
	payload, err := decodeInto[skillsPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== SKILL VAULT ==")
	if len(payload.Skills) == 0 {
		printInfo("No skills forged yet. Run `rune forge` to create one.")
		return nil
	}
	fmt.Printf("%-38s %-20s %6s %10s %8s %8s\n", "SKILL ID", "NAME", "TIER", "ELEMENT", "BUDGET", "USED")
	for _, s := range payload.Skills {
		fmt.Printf("%-38s %-20s %6d %10s %8.0f %8d\n",
			s.SkillID,
			truncate(s.Name, 20),
			s.WorldTier,
			elementOf(s.VFX),
			s.CombatBudget,
			s.TimesUsed,
		)
	}
	fmt.Println()
	return nil
}

func renderListings(raw map[string]any, title string) error {
	payload, err := decodeInto[listingsPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== %s ==\n", title)
	if len(payload.Listings) == 0 {
		printInfo("No listings found.")
		return nil
	}
	fmt.Printf("%-6s %-20s %6s %10s %10s %-13s %-9s %6s %6s %7s\n",
		"ID", "SKILL", "TIER", "ELEMENT", "PRICE", "CURRENCY", "STATUS", "VIEWS", "SOLD", "RATING")
	for _, l := range payload.Listings {
		rating := "-"
		if l.RatingCount > 0 {
			rating = fmt.Sprintf("%.1f", l.AverageRating)
		}
		fmt.Printf("%-6d %-20s %6d %10s %10s %-13s %-9s %6d %6d %7s\n",
			l.ID,
			truncate(l.Skill.Name, 20),
			l.Skill.WorldTier,
			elementOf(l.Skill.VFX),
			comma(l.Price),
			l.Currency,
			l.Status,
			l.Views,
			l.Purchases,
			rating,
		)
	}
	fmt.Println()
	return nil
}

func renderListingCreated(raw map[string]any) error {
	l, err := decodeInto[listingView](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Listed %q as listing %d for %s %s.", l.Skill.Name, l.ID, comma(l.Price), l.Currency))
	return nil
}

func renderReceipt(raw map[string]any) error {
	r, err := decodeInto[receiptPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== PURCHASE COMPLETE ==")
	fmt.Printf("Transaction: %d\n", r.TransactionID)
	fmt.Printf("Skill:       %s (%s)\n", r.Skill.Name, r.Skill.SkillID)
	fmt.Printf("Paid:        %s %s\n", comma(r.AmountPaid), r.Currency)
	fmt.Printf("At:          %s\n", r.PurchasedAt.Local().Format("2006-01-02 15:04"))
	fmt.Println()
	return nil
}

func elementOf(vfx json.RawMessage) string {
	if len(vfx) == 0 {
		return "-"
	}
	var doc struct {
		Material string `json:"material"`
	}
	if err := json.Unmarshal(vfx, &doc); err != nil || doc.Material == "" {
		return "-"
	}
	return doc.Material
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
