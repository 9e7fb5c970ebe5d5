package quest

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const emberJSON = `{
  "name": "The Ember's Awakening",
  "difficulty": "easy",
  "scenes": [
    {
      "title": "Ashes",
      "narrative": "The forge is cold.",
      "choices": [
        {
          "id": "3A",
          "text": "Take the vial",
          "outcomes": {
            "state_changes": {"met_elder": true, "rank": 3},
            "items_gained": {"Emberdust Vial": 1},
            "next_scene": 2
          }
        },
        {"id": "3B", "text": "Leave", "outcomes": {"next_scene": "complete"}}
      ]
    },
    {"narrative": "Embers stir."}
  ],
  "rewards": {"xp": 50, "items": {"Relic Shard": 1}, "discoveries": {"locations": ["Ember Forge"]}}
}`

func TestDefinitionUnmarshalJSON(t *testing.T) {
	var d Definition
	if err := json.Unmarshal([]byte(emberJSON), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Normalize()

	if errs := d.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if d.Scenes[1].Number != 2 {
		t.Errorf("expected scene 2 to be numbered, got %d", d.Scenes[1].Number)
	}

	ch := d.Scenes[0].Choices[0]
	if ch.Outcome.StateChanges["met_elder"] != "true" || ch.Outcome.StateChanges["rank"] != "3" {
		t.Errorf("state changes not normalised to strings: %v", ch.Outcome.StateChanges)
	}
	if len(ch.Outcome.ItemsGained) != 1 || ch.Outcome.ItemsGained[0].Name != "Emberdust Vial" {
		t.Errorf("unexpected items gained: %+v", ch.Outcome.ItemsGained)
	}
	if ch.Outcome.Next.Number != 2 {
		t.Errorf("expected next scene 2, got %v", ch.Outcome.Next)
	}
	if !d.Scenes[0].Choices[1].Outcome.Next.Complete {
		t.Error("expected complete sentinel")
	}
	if d.Rewards.XP != 50 || len(d.Rewards.Lore) != 1 || d.Rewards.Lore[0].Category != "locations" {
		t.Errorf("unexpected rewards: %+v", d.Rewards)
	}
}

func TestDefinitionUnmarshalYAML(t *testing.T) {
	src := `
name: Paper Trail
scenes:
  - narrative: Scraps everywhere.
    choices:
      - id: 1A
        text: Gather
        conditions:
          curious: true
        outcomes:
          items_gained:
            - name: Paper Fragment
              quantity: 2
              rarity: rare
          next_scene: complete
rewards:
  discoveries:
    - category: items
      name: Paper Fragment
`
	var d Definition
	if err := yaml.Unmarshal([]byte(src), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Normalize()

	ch := d.Scenes[0].Choices[0]
	if ch.Conditions["curious"] != "true" {
		t.Errorf("unexpected conditions: %v", ch.Conditions)
	}
	if ch.Outcome.ItemsGained[0].Quantity != 2 || ch.Outcome.ItemsGained[0].Rarity != "rare" {
		t.Errorf("unexpected grant: %+v", ch.Outcome.ItemsGained[0])
	}
	if !ch.Outcome.Next.Complete {
		t.Error("expected complete")
	}
	if len(d.Rewards.Lore) != 1 || d.Rewards.Lore[0].Name != "Paper Fragment" {
		t.Errorf("unexpected lore: %+v", d.Rewards.Lore)
	}
}

func TestItemStackMapIsOrdered(t *testing.T) {
	var s ItemStack
	if err := json.Unmarshal([]byte(`{"Relic Shard": 1, "Emberdust Vial": 2}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(s) != 2 || s[0].Name != "Emberdust Vial" || s[1].Name != "Relic Shard" {
		t.Errorf("expected name order, got %+v", s)
	}
	if s.Quantities()["Emberdust Vial"] != 2 {
		t.Errorf("unexpected quantities: %v", s.Quantities())
	}
}

func TestNextSceneSpellings(t *testing.T) {
	tests := []struct {
		input    string
		expected NextScene
		wantErr  bool
	}{
		{input: `2`, expected: NextScene{Number: 2}},
		{input: `"4"`, expected: NextScene{Number: 4}},
		{input: `"scene_3"`, expected: NextScene{Number: 3}},
		{input: `"Complete"`, expected: NextScene{Complete: true}},
		{input: `null`, expected: NextScene{}},
		{input: `0`, wantErr: true},
		{input: `"later"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var n NextScene
			err := json.Unmarshal([]byte(tt.input), &n)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != tt.expected {
				t.Errorf("got %+v, want %+v", n, tt.expected)
			}
		})
	}
}

func TestVarMapRejectsObjects(t *testing.T) {
	var v VarMap
	if err := json.Unmarshal([]byte(`{"a": {"b": 1}}`), &v); err == nil {
		t.Error("expected error for nested object")
	}
}

func TestVarMapYAMLScalars(t *testing.T) {
	src := `
a: True
b: FALSE
c: "True"
d: 3
e: ~
`
	var v VarMap
	if err := yaml.Unmarshal([]byte(src), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := VarMap{"a": "true", "b": "false", "c": "True", "d": "3", "e": ""}
	for k, val := range want {
		if v[k] != val {
			t.Errorf("%s: got %q, want %q", k, v[k], val)
		}
	}

	var j VarMap
	if err := json.Unmarshal([]byte(`{"a": true}`), &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if j["a"] != v["a"] {
		t.Errorf("json %q and yaml %q spellings differ", j["a"], v["a"])
	}
}

func TestItemStackMerged(t *testing.T) {
	s := ItemStack{
		{Name: "Relic Shard", Quantity: 1, Rarity: "Rare"},
		{Name: "Iron", Quantity: 2},
		{Name: "Relic Shard", Quantity: 3},
	}
	got := s.Merged()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %+v", got)
	}
	if got[0] != (ItemGrant{Name: "Relic Shard", Quantity: 4, Rarity: "Rare"}) {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1] != (ItemGrant{Name: "Iron", Quantity: 2}) {
		t.Errorf("unexpected second entry: %+v", got[1])
	}
	if s[0].Quantity != 1 {
		t.Error("merge modified the original stack")
	}
}

func TestResolveNext(t *testing.T) {
	d := Definition{Name: "q", Scenes: []Scene{{Number: 1}, {Number: 2}, {Number: 3}}}

	tests := []struct {
		name         string
		current      int
		next         NextScene
		wantTarget   int
		wantComplete bool
		wantErr      bool
	}{
		{name: "implied", current: 1, next: NextScene{}, wantTarget: 2},
		{name: "implied past end completes", current: 3, next: NextScene{}, wantComplete: true},
		{name: "explicit jump back", current: 3, next: NextScene{Number: 1}, wantTarget: 1},
		{name: "explicit complete", current: 1, next: NextScene{Complete: true}, wantComplete: true},
		{name: "jump out of range", current: 1, next: NextScene{Number: 9}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, complete, err := d.ResolveNext(tt.current, tt.next)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if target != tt.wantTarget || complete != tt.wantComplete {
				t.Errorf("got (%d, %v), want (%d, %v)", target, complete, tt.wantTarget, tt.wantComplete)
			}
		})
	}
}

func TestValidateReportsProblems(t *testing.T) {
	d := Definition{
		Name: "Broken",
		Scenes: []Scene{
			{Number: 1, Choices: []Choice{
				{ID: "1A", Outcome: Outcome{Next: NextScene{Number: 5}}},
				{ID: "1A"},
				{ID: "1B", Outcome: Outcome{
					ItemsLost:    ItemStack{{Name: "Rope", Quantity: 0}},
					StateChanges: VarMap{"affinity.Maren": "lots"},
				}},
			}},
			{Number: 3},
		},
	}

	errs := d.Validate()
	joined := strings.Join(errs, "\n")
	for _, want := range []string{"numbered 3", "out of range", "duplicate choice id", "quantity must be positive", "must be an integer"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected a problem mentioning %q in:\n%s", want, joined)
		}
	}
}

func TestAffinityTarget(t *testing.T) {
	if name, ok := AffinityTarget("affinity.Elder Maren"); !ok || name != "Elder Maren" {
		t.Errorf("got (%q, %v)", name, ok)
	}
	if _, ok := AffinityTarget("met_elder"); ok {
		t.Error("plain variable should not be an affinity key")
	}
	if _, ok := AffinityTarget("affinity."); ok {
		t.Error("empty character should not be an affinity key")
	}
}
