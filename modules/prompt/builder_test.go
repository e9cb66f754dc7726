package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildReplacesPrimitives(t *testing.T) {
	result := Build("A {{color}} jacket, size {{size}}, limited: {{limited}}", map[string]interface{}{
		"color":   "navy",
		"size":    42,
		"limited": true,
	})
	assert.Equal(t, "A navy jacket, size 42, limited: true", result)
}

func TestBuildJoinsStringSlices(t *testing.T) {
	result := Build("Details: {{details}}", map[string]interface{}{
		"details": []string{"zip", "piping", "embroidered logo"},
	})
	assert.Equal(t, "Details: zip, piping, embroidered logo", result)
}

func TestBuildSerializesObjects(t *testing.T) {
	result := Build("Config: {{config}}", map[string]interface{}{
		"config": map[string]interface{}{"hex": "#fff"},
	})
	assert.Equal(t, `Config: {"hex":"#fff"}`, result)
}

func TestBuildLeavesUnmatchedPlaceholders(t *testing.T) {
	result := Build("A {{color}} {{type}}", map[string]interface{}{
		"color": "red",
	})
	assert.Equal(t, "A red {{type}}", result)
}

func TestBuildReplacesAllOccurrences(t *testing.T) {
	result := Build("{{color}} top, {{color}} bottom", map[string]interface{}{
		"color": "beige",
	})
	assert.Equal(t, "beige top, beige bottom", result)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a b c", Clean("  a \n\n b\t\tc "))
}

func TestBuildMergedPromptsResolvesAllPlaceholders(t *testing.T) {
	product := map[string]interface{}{
		"type":    "hooded jacket",
		"color":   "navy",
		"fabric":  "cotton twill",
		"details": []string{"brass zip", "drawstring hood"},
	}
	da := map[string]interface{}{
		"da_name":    "warm-studio",
		"background": map[string]interface{}{"type": "warm beige wall", "hex": "#f0e0d0"},
		"floor":      "light oak",
		"props":      map[string]interface{}{"left_side": "dried pampas", "right_side": "linen chair"},
		"styling":    map[string]interface{}{"pants": "white denim", "footwear": "canvas sneakers"},
		"lighting":   map[string]interface{}{"type": "soft window light", "temperature": "warm"},
		"mood":       "relaxed weekend",
		"quality":    "ultra high",
	}

	prompts := BuildMergedPrompts(product, da, "4:5", "4K")
	assert.Len(t, prompts, 6)

	for slot, mp := range prompts {
		assert.NotContains(t, mp.Prompt, "{{", "slot %s has unresolved placeholder", slot)
		assert.Equal(t, slot, mp.ShotType)
		assert.Equal(t, "4:5", mp.Output.AspectRatio)
		assert.Equal(t, "4K", mp.Output.Resolution)
		assert.NotEmpty(t, mp.NegativePrompt)
		assert.True(t, mp.Editable)
	}

	assert.Equal(t, "adult", prompts["solo"].ModelType)
	assert.Equal(t, "none", prompts["flatlay_front"].ModelType)
	assert.True(t, strings.Contains(prompts["duo"].Prompt, "navy"))
	assert.True(t, strings.Contains(prompts["closeup_back"].Prompt, "cotton twill"))
}

func TestBuildMergedPromptsUsesFallbacksForEmptyInput(t *testing.T) {
	prompts := BuildMergedPrompts(map[string]interface{}{}, map[string]interface{}{}, "4:5", "4K")
	assert.Len(t, prompts, 6)

	for slot, mp := range prompts {
		assert.NotContains(t, mp.Prompt, "{{", "slot %s has unresolved placeholder", slot)
		assert.NotEmpty(t, mp.Prompt)
	}

	assert.Contains(t, prompts["solo"].Prompt, "garment")
}
