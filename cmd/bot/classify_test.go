package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/siegecorps/siegebot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"classify", "what", "is", "12", "+", "8?"})
	require.NoError(t, rootCmd.Execute())

	var got classification
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, models.IntentMath, got.Intent)
	assert.Equal(t, "20", got.Answer)
	assert.False(t, got.Sensitive)
}
