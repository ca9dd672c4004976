package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain prompt", out)

	out, err = RenderTemplate("You are {{.agent}} in {{.conversation}}.", map[string]any{
		"agent":        "bot@x",
		"conversation": "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "You are bot@x in t1.", out)

	out, err = RenderTemplate("Hi {{.missing}}!", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi !", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestValidateParameters_RequiredShapes(t *testing.T) {
	goSchema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"fact": map[string]any{"type": "string"}},
		"required":   []string{"fact"},
	}
	jsonSchema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"fact": map[string]any{"type": "string"}},
		"required":   []any{"fact"},
	}

	for _, schema := range []map[string]any{goSchema, jsonSchema} {
		var verr *ValidationError
		err := ValidateParameters(map[string]any{}, schema)
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "fact", verr.Field)

		assert.NoError(t, ValidateParameters(map[string]any{"fact": "x"}, schema))
		assert.Error(t, ValidateParameters(map[string]any{"fact": 3}, schema))
	}
}

func TestCreateSchema(t *testing.T) {
	type args struct {
		Query string `json:"query" description:"search text"`
		Limit int    `json:"limit,omitempty"`
	}
	schema := CreateSchema(args{})
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["query"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, []string{"query"}, schema["required"])
}
