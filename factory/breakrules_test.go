package factory_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/factory"
	"github.com/warp/worktime-engine/worktime"
)

func TestParseRuleSet(t *testing.T) {
	// GIVEN: A document with explicit and defaulted fields
	data := []byte(`{
		"rules": [
			{"id": "lunch", "name": "Lunch", "start": "12:00", "end": "12:45", "applies_on": ["weekdays"]},
			{"name": "Tea", "start": "15:00", "end": "15:10", "applies_on": ["mon", "Wed"]},
			{"id": "night", "start": "03:00", "end": "03:30"}
		]
	}`)

	// WHEN: Parsing
	rules, err := factory.NewBreakRuleFactory().ParseRuleSet(data)

	// THEN: Order is kept, ids are generated, missing days mean every day
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "lunch", rules[0].ID)
	assert.Equal(t, worktime.Weekdays, rules[0].AppliesOn)
	assert.Equal(t, "12:45", rules[0].End.String())

	assert.NotEmpty(t, rules[1].ID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, rules[1].AppliesOn.Days())

	assert.True(t, rules[2].AppliesOn.IsAll())
}

func TestParseRuleSet_Invalid(t *testing.T) {
	f := factory.NewBreakRuleFactory()

	tests := map[string]string{
		"not json":      `{"rules": [`,
		"bad start":     `{"rules": [{"start": "noon", "end": "12:45"}]}`,
		"end before":    `{"rules": [{"start": "13:00", "end": "12:00"}]}`,
		"unknown day":   `{"rules": [{"start": "12:00", "end": "12:45", "applies_on": ["someday"]}]}`,
		"duplicate id":  `{"rules": [{"id": "a", "start": "12:00", "end": "12:45"}, {"id": "a", "start": "15:00", "end": "15:10"}]}`,
		"past midnight": `{"rules": [{"start": "23:00", "end": "24:30"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseRuleSet([]byte(doc))
			assert.ErrorIs(t, err, worktime.ErrInvalidBreakRule)
		})
	}
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewBreakRuleFactory()
	rules, err := f.ParseRuleSet([]byte(factory.StandardShopFloorJSON()))
	require.NoError(t, err)

	out := f.ToJSON(worktime.RuleSet{Version: 3, Rules: rules})

	assert.Equal(t, int64(3), out.Version)
	require.Len(t, out.Rules, 2)
	assert.Equal(t, "afternoon", out.Rules[1].ID)
	assert.Equal(t, "15:10", out.Rules[1].End)
	assert.Equal(t, []string{"mon", "tue", "wed", "thu", "fri"}, out.Rules[1].AppliesOn)

	back, err := f.FromJSON(out)
	require.NoError(t, err)
	assert.Equal(t, rules, back)
}

func TestLoadFile(t *testing.T) {
	f := factory.NewBreakRuleFactory()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(factory.LunchOnlyJSON()), 0o600))

	rules, err := f.LoadFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "lunch", rules[0].ID)

	_, err = f.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read rule set")
}
