package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("chat")
	require.NoError(t, err)
	assert.Equal(t, ModeChat, m)

	m, err = ParseMode("starter_base")
	require.NoError(t, err)
	assert.Equal(t, ModeStarterBase, m)

	_, err = ParseMode("speedrun_coach")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestModes_TableComplete(t *testing.T) {
	names := Modes()
	assert.Len(t, names, 9)

	for _, name := range names {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.NotEmpty(t, m.SystemTemplate(), "mode %s must have a template", name)
	}
}

func TestModes_BlueprintCapability(t *testing.T) {
	assert.True(t, ModeStarterBase.BlueprintCapable())
	assert.False(t, ModeChat.BlueprintCapable())
	assert.False(t, ModePollutionForecast.BlueprintCapable())
}

func TestModes_TemplatesAreDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, name := range Modes() {
		m, _ := ParseMode(name)
		tpl := m.SystemTemplate()
		if prev, ok := seen[tpl]; ok {
			t.Fatalf("modes %s and %s share a template", prev, name)
		}
		seen[tpl] = name
	}
}

func TestExtractBlueprint(t *testing.T) {
	bp := "0eNqVkMFqwzAMhl9l6OxC0yZd69" + strings.Repeat("AbCd1234", 10) + "=="
	reply := "Here is your starter base:\n```\n" + bp + "\n```\nBuild the miners first."

	assert.Equal(t, bp, ModeStarterBase.ExtractBlueprint(reply))
	assert.Equal(t, bp, FindBlueprint(reply))

	// Pass-through modes never extract.
	assert.Empty(t, ModeChat.ExtractBlueprint(reply))
}

func TestExtractBlueprint_NoMatchIsNotAnError(t *testing.T) {
	assert.Empty(t, ModeStarterBase.ExtractBlueprint("I could not design a base this time."))
	assert.Empty(t, FindBlueprint(""))
}

func TestFindBlueprint_IgnoresShortRuns(t *testing.T) {
	// A bare "0" followed by a few word characters is prose, not a blueprint.
	assert.Empty(t, FindBlueprint("at tick 0abc the power dipped"))
}
