package compiler

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSeedForDeterministic(t *testing.T) {
	a := seedFor("a spear of fire that pierces")
	b := seedFor("a spear of fire that pierces")
	if a != b {
		t.Fatalf("same input must seed identically: %d vs %d", a, b)
	}
	if c := seedFor("a spear of frost that pierces"); c == a {
		t.Fatalf("different inputs should not collide on %d", a)
	}
}

func TestSeedForRange(t *testing.T) {
	for _, in := range []string{"", "x", "frost nova", "chain lightning that jumps three times"} {
		seed := seedFor(in)
		if seed < 0 || seed > 0xffffffff {
			t.Fatalf("seedFor(%q) = %d, outside 32-bit range", in, seed)
		}
	}
}

func TestFinalizeStampsSeed(t *testing.T) {
	reply := `{"intent":{"name":"Fire Spear"},"mechanics":{},"vfx":{},"seed":12345}`
	draft, err := finalize(reply, 777)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if draft.Seed != 777 {
		t.Fatalf("Seed = %d, want 777", draft.Seed)
	}
	if draft.Name != "Fire Spear" {
		t.Fatalf("Name = %q, want Fire Spear", draft.Name)
	}

	var doc map[string]any
	if err := json.Unmarshal(draft.Blueprint, &doc); err != nil {
		t.Fatalf("blueprint not valid JSON: %v", err)
	}
	if got := doc["seed"].(float64); got != 777 {
		t.Fatalf("blueprint seed = %v, want 777", got)
	}
}

func TestFinalizeStripsFences(t *testing.T) {
	reply := "```json\n{\"intent\":{\"name\":\"Frost Nova\"}}\n```"
	draft, err := finalize(reply, 1)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if draft.Name != "Frost Nova" {
		t.Fatalf("Name = %q", draft.Name)
	}
}

func TestFinalizeRejectsGarbage(t *testing.T) {
	if _, err := finalize("the skill is really cool", 1); err == nil {
		t.Fatal("prose reply must fail")
	}
	if _, err := finalize("", 1); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("empty reply: got %v", err)
	}
	if _, err := finalize("``````", 1); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("bare fence: got %v", err)
	}
}

func TestFinalizeWithoutIntent(t *testing.T) {
	draft, err := finalize(`{"mechanics":{}}`, 5)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if draft.Name != "" {
		t.Fatalf("Name should be empty, got %q", draft.Name)
	}
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, c := range cases {
		if got := stripFences(c.in); got != c.want {
			t.Fatalf("stripFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Fatal("missing api key must fail")
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Fatal("missing model must fail")
	}
	if _, err := New(Config{APIKey: "k", Model: "m"}); err != nil {
		t.Fatalf("valid config: %v", err)
	}
}
