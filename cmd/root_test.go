package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "clean", "targets", "publish", "keygen", "sign"} {
		assert.True(t, names[want], "command %s is registered", want)
	}
}

func TestBuildCommandArgs(t *testing.T) {
	require.Error(t, buildCmd.Args(buildCmd, nil), "build requires a recipe path")
	require.NoError(t, buildCmd.Args(buildCmd, []string{"recipe"}))
}

func TestRootFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("quiet"))
	assert.NotNil(t, targetsCmd.Flags().Lookup("jobs"))
	assert.NotNil(t, targetsCmd.Flags().Lookup("ui"))
}
