package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleIntent struct {
	WorkflowType string  `json:"workflow_type"`
	Name         *string `json:"name,omitempty"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Run("parses a bare JSON object", func(t *testing.T) {
		got, err := ParseJSONResponse[sampleIntent](`{"workflow_type":"mhmd_only"}`)
		require.NoError(t, err)
		assert.Equal(t, "mhmd_only", got.WorkflowType)
		assert.Nil(t, got.Name)
	})

	t.Run("strips a json markdown fence", func(t *testing.T) {
		reply := "```json\n{\"workflow_type\": \"combined\", \"name\": \"Jane\"}\n```"
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		assert.Equal(t, "combined", got.WorkflowType)
		require.NotNil(t, got.Name)
		assert.Equal(t, "Jane", *got.Name)
	})

	t.Run("strips a bare fence without a language tag", func(t *testing.T) {
		reply := "```\n{\"workflow_type\": \"swagger_only\"}\n```"
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		assert.Equal(t, "swagger_only", got.WorkflowType)
	})

	t.Run("extracts an object from conversational text", func(t *testing.T) {
		reply := `Sure! Here is the classification you asked for: {"workflow_type": "mhmd_only"} Let me know if you need anything else.`
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		assert.Equal(t, "mhmd_only", got.WorkflowType)
	})

	t.Run("tolerates trailing commentary after the object", func(t *testing.T) {
		reply := `{"workflow_type":"mhmd_only"} Hope that helps!`
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		assert.Equal(t, "mhmd_only", got.WorkflowType)
	})

	t.Run("a stray closing brace in trailing prose is ignored", func(t *testing.T) {
		reply := `Here you go: {"workflow_type":"combined"} (use {} to denote an empty object)`
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		assert.Equal(t, "combined", got.WorkflowType)
	})

	t.Run("braces inside string values do not end the scan", func(t *testing.T) {
		reply := `{"workflow_type":"mhmd_only","name":"a}b"} thanks`
		got, err := ParseJSONResponse[sampleIntent](reply)
		require.NoError(t, err)
		require.NotNil(t, got.Name)
		assert.Equal(t, "a}b", *got.Name)
	})

	t.Run("parses a JSON array target", func(t *testing.T) {
		got, err := ParseJSONResponse[[]string]("```json\n[\"a\", \"b\"]\n```")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, *got)
	})

	t.Run("fails with a truncated snippet on garbage", func(t *testing.T) {
		_, err := ParseJSONResponse[sampleIntent]("I could not determine the workflow.")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal LLM JSON response")
	})

	t.Run("fails on malformed JSON inside a fence", func(t *testing.T) {
		_, err := ParseJSONResponse[sampleIntent]("```json\n{\"workflow_type\": \n```")
		require.Error(t, err)
	})
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab...", TruncateString("abcdef", 2))
	assert.Equal(t, "", TruncateString("abcdef", 0))
}
