package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSuggestPrompt(t *testing.T) {
	t.Run("with known tags", func(t *testing.T) {
		system, user := buildSuggestPrompt("Go generics in practice", []string{"go", "databases"}, 3)

		assert.Contains(t, system, "JSON array")
		assert.Contains(t, system, "at most 3 strings")
		assert.Contains(t, system, "known tags")
		assert.Contains(t, system, "% character")

		assert.Contains(t, user, "Known tags: go, databases")
		assert.Contains(t, user, "Go generics in practice")
	})

	t.Run("without known tags", func(t *testing.T) {
		_, user := buildSuggestPrompt("some content", nil, 5)

		assert.NotContains(t, user, "Known tags")
		assert.Contains(t, user, "some content")
	})

	t.Run("long content is passed through", func(t *testing.T) {
		content := strings.Repeat("x", 10000)
		_, user := buildSuggestPrompt(content, nil, 5)
		assert.Contains(t, user, content)
	})
}

func TestBuildDescribePrompt(t *testing.T) {
	system, user := buildDescribePrompt("postgres", []string{"sql", "databases"})

	assert.Contains(t, system, `"desc"`)
	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, "Tag: postgres")
	assert.Contains(t, user, "Related tags: sql, databases")

	_, user = buildDescribePrompt("go", nil)
	assert.NotContains(t, user, "Related tags")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `["a"]`, stripFence("```json\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripFence("```\n[\"a\"]\n```"))
	assert.Equal(t, `["a"]`, stripFence("  [\"a\"]\n"))
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"plain", `["go", "sql"]`, 5, []string{"go", "sql"}},
		{"fenced", "```json\n[\"go\"]\n```", 5, []string{"go"}},
		{"trims and dedupes", `[" go ", "go", "", "sql"]`, 5, []string{"go", "sql"}},
		{"drops wildcards", `["go%", "%sql", "db"]`, 5, []string{"db"}},
		{"limit", `["a", "b", "c", "d"]`, 2, []string{"a", "b"}},
		{"empty array", `[]`, 5, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSuggestions(tt.text, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseSuggestions("go, sql", 5)
	assert.ErrorContains(t, err, "raw response: go, sql")
}
