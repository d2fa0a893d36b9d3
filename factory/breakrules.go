/*
Package factory provides JSON to Go break-rule conversion.

PURPOSE:
  Converts JSON rule-set documents into validated worktime.BreakRule slices.
  Admins edit break windows as JSON (file, API body, CLI); the factory
  turns that into the typed rules the engine computes with.

JSON SCHEMA:
  {
    "rules": [
      {
        "id": "lunch",
        "name": "Lunch",
        "start": "12:00",
        "end": "12:45",
        "applies_on": ["weekdays"]
      },
      {
        "name": "Afternoon",
        "start": "15:00",
        "end": "15:10",
        "applies_on": ["mon", "wed", "fri"]
      }
    ]
  }

  applies_on accepts "all", "weekdays", "weekends" and weekday names.
  Missing applies_on means every day. Missing id gets a generated UUID.

USAGE:
  f := factory.NewBreakRuleFactory()
  rules, err := f.ParseRuleSet(data)
  rs, err := store.SaveRuleSet(ctx, rules)

SEE ALSO:
  - worktime/breakrule.go: BreakRule, TimeOfDay, WeekdaySet
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleSetJSON is the JSON representation of a rule set.
type RuleSetJSON struct {
	Version int64           `json:"version,omitempty"` // informational on output, ignored on input
	Rules   []BreakRuleJSON `json:"rules"`
}

// BreakRuleJSON represents one break window.
type BreakRuleJSON struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name,omitempty"`
	Start     string   `json:"start"` // HH:MM
	End       string   `json:"end"`   // HH:MM, "24:00" allowed
	AppliesOn []string `json:"applies_on,omitempty"`
}

// =============================================================================
// BREAK RULE FACTORY
// =============================================================================

type BreakRuleFactory struct {
	newID func() string
}

func NewBreakRuleFactory() *BreakRuleFactory {
	return &BreakRuleFactory{newID: uuid.NewString}
}

// ParseRuleSet parses a JSON document into validated rules.
func (f *BreakRuleFactory) ParseRuleSet(data []byte) ([]worktime.BreakRule, error) {
	var rj RuleSetJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse rule set JSON: %v", worktime.ErrInvalidBreakRule, err)
	}
	return f.FromJSON(rj)
}

// LoadFile reads and parses a rule-set file.
func (f *BreakRuleFactory) LoadFile(path string) ([]worktime.BreakRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return f.ParseRuleSet(data)
}

// FromJSON converts RuleSetJSON to validated rules. Rule order is kept.
func (f *BreakRuleFactory) FromJSON(rj RuleSetJSON) ([]worktime.BreakRule, error) {
	rules := make([]worktime.BreakRule, 0, len(rj.Rules))
	seen := make(map[string]bool, len(rj.Rules))

	for i, r := range rj.Rules {
		rule, err := f.parseRule(r)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rules[%d]: %w: duplicate id %q", i, worktime.ErrInvalidBreakRule, rule.ID)
		}
		seen[rule.ID] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

func (f *BreakRuleFactory) parseRule(r BreakRuleJSON) (worktime.BreakRule, error) {
	start, err := worktime.ParseTimeOfDay(r.Start)
	if err != nil {
		return worktime.BreakRule{}, err
	}
	end, err := worktime.ParseTimeOfDay(r.End)
	if err != nil {
		return worktime.BreakRule{}, err
	}

	days := worktime.AllDays
	if len(r.AppliesOn) > 0 {
		if days, err = worktime.ParseWeekdaySet(r.AppliesOn); err != nil {
			return worktime.BreakRule{}, err
		}
	}

	rule := worktime.BreakRule{
		ID:        r.ID,
		Name:      r.Name,
		Start:     start,
		End:       end,
		AppliesOn: days,
	}
	if rule.ID == "" {
		rule.ID = f.newID()
	}
	if err := rule.Validate(); err != nil {
		return worktime.BreakRule{}, err
	}
	return rule, nil
}

// ToJSON converts a rule set back to its JSON form.
func (f *BreakRuleFactory) ToJSON(rs worktime.RuleSet) RuleSetJSON {
	out := RuleSetJSON{Version: rs.Version, Rules: make([]BreakRuleJSON, 0, len(rs.Rules))}
	for _, r := range rs.Rules {
		out.Rules = append(out.Rules, BreakRuleJSON{
			ID:        r.ID,
			Name:      r.Name,
			Start:     r.Start.String(),
			End:       r.End.String(),
			AppliesOn: r.AppliesOn.Names(),
		})
	}
	return out
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardShopFloorJSON is the usual weekday schedule: a 45 minute lunch and
// a short afternoon break.
func StandardShopFloorJSON() string {
	return `{
  "rules": [
    {"id": "lunch", "name": "Lunch", "start": "12:00", "end": "12:45", "applies_on": ["weekdays"]},
    {"id": "afternoon", "name": "Afternoon break", "start": "15:00", "end": "15:10", "applies_on": ["weekdays"]}
  ]
}`
}

// LunchOnlyJSON is a single weekday lunch window.
func LunchOnlyJSON() string {
	return `{"rules": [{"id": "lunch", "name": "Lunch", "start": "12:00", "end": "12:45", "applies_on": ["weekdays"]}]}`
}
