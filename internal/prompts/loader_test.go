package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		key      string
		wantErr  string
		contains string
	}{
		{name: "intel template", file: File, key: KeyIntel, contains: "You are a senior market analyst"},
		{name: "repair template", file: File, key: KeyStrategyRepair, contains: "You returned a strategy JSON that failed"},
		{name: "unknown file", file: "nonexistent.json", key: "some-key", wantErr: "failed to read prompt file"},
		{name: "unknown key", file: File, key: "nonexistent-key", wantErr: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := Get(tt.file, tt.key)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, prompt, tt.contains)
		})
	}
}

func TestLoad_ReturnsSameTemplates(t *testing.T) {
	first, err := Load(File)
	require.NoError(t, err)
	second, err := Load(File)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{KeyBattlecards, KeyIntel, KeyMessaging, KeyStrategy, KeyStrategyRepair}, first.Keys())
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		want     string
	}{
		{
			name:     "fills every placeholder",
			template: "Hello {{.Name}}, welcome to {{.Company}}!",
			data:     map[string]string{"Name": "Alice", "Company": "Acme Corp"},
			want:     "Hello Alice, welcome to Acme Corp!",
		},
		{
			name:     "no placeholders",
			template: "No placeholders here",
			data:     map[string]string{"Key": "Value"},
			want:     "No placeholders here",
		},
		{
			name:     "missing value stays",
			template: "Hello {{.Name}}",
			data:     map[string]string{},
			want:     "Hello {{.Name}}",
		},
		{
			name:     "names with digits",
			template: "Beat {{.Comp1}} and {{.Comp2}}",
			data:     map[string]string{"Comp1": "Gainsight", "Comp2": "ChurnZero"},
			want:     "Beat Gainsight and ChurnZero",
		},
		{
			name:     "values are not expanded again",
			template: "Input: {{.FormData}} / {{.Product}}",
			data:     map[string]string{"FormData": `{"note":"{{.Product}}"}`, "Product": "X"},
			want:     `Input: {"note":"{{.Product}}"} / X`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, tt.data))
		})
	}
}

func TestRender_UnfilledPlaceholder(t *testing.T) {
	_, err := Render(File, KeyMessaging, map[string]string{"Product": "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{.Audience}}")
}

func TestRender_DigitPlaceholders(t *testing.T) {
	_, err := Render(File, KeyBattlecards, map[string]string{
		"Product":      "X",
		"Audience":     "Y",
		"Competitors":  "Gainsight",
		"WhereLose":    "price",
		"StrategyJSON": "{}",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{.Comp1}}")

	prompt, err := Render(File, KeyBattlecards, map[string]string{
		"Product":      "X",
		"Audience":     "Y",
		"Competitors":  "Gainsight",
		"Comp1":        "Gainsight",
		"WhereLose":    "price",
		"StrategyJSON": "{}",
	})
	require.NoError(t, err)
	assert.NotContains(t, prompt, "{{.")
	assert.Contains(t, prompt, "Gainsight")
}
