package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "wake", cmd.Use)
	assert.Contains(t, cmd.Long, "feeds")
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

// TestCommandSurface pins each subcommand's existence and flag set.
func TestCommandSurface(t *testing.T) {
	tests := []struct {
		command string
		flags   []string
	}{
		{"validate", nil},
		{"compile", []string{"output"}},
		{"run", []string{"db", "config"}},
		{"post", []string{"db", "seed", "config"}},
		{"collect", []string{"db", "streams", "config"}},
		{"reset", []string{"db", "streams"}},
		{"prune", []string{"db", "older-than"}},
		{"feed", []string{"db", "stream", "as", "start", "limit"}},
		{"test", []string{"update", "filter"}},
	}

	root := NewRootCommand()
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			cmd, _, err := root.Find([]string{tt.command})
			require.NoError(t, err)
			require.Equal(t, tt.command, cmd.Name())
			for _, flag := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(flag), "flag --%s", flag)
			}
		})
	}
}

func TestFlagDefaults(t *testing.T) {
	root := NewRootCommand()

	compileCmd, _, err := root.Find([]string{"compile"})
	require.NoError(t, err)
	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	feedCmd, _, err := root.Find([]string{"feed"})
	require.NoError(t, err)
	limitFlag := feedCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)

	testCmd, _, err := root.Find([]string{"test"})
	require.NoError(t, err)
	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
