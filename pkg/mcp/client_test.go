package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolParameters(t *testing.T) {
	t.Run("should parse properties with required flags and defaults", func(t *testing.T) {
		schema := json.RawMessage(`{
			"type": "object",
			"properties": {
				"city": {"type": "string", "description": "City name"},
				"days": {"type": "integer", "description": "Forecast days", "default": 3}
			},
			"required": ["city"]
		}`)

		params := parseToolParameters(schema)
		require.Len(t, params, 2)

		byName := make(map[string]bool)
		for _, p := range params {
			byName[p.Name] = true
			switch p.Name {
			case "city":
				assert.Equal(t, "string", p.Type)
				assert.True(t, p.Required)
			case "days":
				assert.Equal(t, "integer", p.Type)
				assert.False(t, p.Required)
				assert.Equal(t, float64(3), p.Default)
			}
		}
		assert.True(t, byName["city"])
		assert.True(t, byName["days"])
	})

	t.Run("should return nil for empty or malformed schemas", func(t *testing.T) {
		assert.Nil(t, parseToolParameters(nil))
		assert.Nil(t, parseToolParameters(json.RawMessage(`not json`)))
		assert.Nil(t, parseToolParameters(json.RawMessage(`{"type":"object"}`)))
	})
}

func TestExtractContent(t *testing.T) {
	t.Run("should join text blocks", func(t *testing.T) {
		result := json.RawMessage(`{"content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}`)
		text, err := extractContent(result)
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", text)
	})

	t.Run("should surface tool-reported errors", func(t *testing.T) {
		result := json.RawMessage(`{"content":[{"type":"text","text":"file not found"}],"isError":true}`)
		_, err := extractContent(result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file not found")
	})

	t.Run("should fall back to raw JSON for unexpected shapes", func(t *testing.T) {
		result := json.RawMessage(`{"rows":[1,2,3]}`)
		text, err := extractContent(result)
		require.NoError(t, err)
		assert.Equal(t, `{"rows":[1,2,3]}`, text)
	})
}
