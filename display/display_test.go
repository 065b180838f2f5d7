package display

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldOutputJSON(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "child"}
	root.AddCommand(child)

	assert.False(t, ShouldOutputJSON(child))
	assert.False(t, ShouldOutputJSON(nil))

	require.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))

	local := &cobra.Command{Use: "local"}
	local.Flags().Bool("json", false, "")
	root.AddCommand(local)
	require.NoError(t, local.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(local), "local flag wins")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]int{"count": 2}))
	assert.Equal(t, "{\n  \"count\": 2\n}\n", buf.String())
}
