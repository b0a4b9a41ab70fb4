package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/feelflow"
	"github.com/aretw0/feelflow/pkg/catalog"
	"github.com/aretw0/feelflow/pkg/domain"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir()) // no feelflow.yaml around
	require.NoError(t, rootCmd.PersistentFlags().Set("store", ""))
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "feelflow version "+feelflow.Version+"\n", out)
}

func TestCatalogLookup(t *testing.T) {
	t.Setenv("FEELFLOW_SEED", "3")

	out, err := execute(t, "", "catalog", "lookup", "feeling", "I", "feel", "anxious")
	require.NoError(t, err)

	c := catalog.Default()
	cat, ok := c.Match("I feel anxious", domain.TrackFeeling)
	require.True(t, ok)
	assert.Contains(t, cat.Responses, strings.TrimSpace(out))
}

func TestCatalogLookup_UnknownTrack(t *testing.T) {
	_, err := execute(t, "", "catalog", "lookup", "mood", "happy")
	assert.ErrorContains(t, err, "unknown track")
}

func TestChat_Headless(t *testing.T) {
	t.Setenv("FEELFLOW_TYPING_DELAY", "0s")

	out, err := execute(t, "2\n/quit\n", "chat", "--headless")
	require.NoError(t, err)
	assert.Contains(t, out, domain.Greeting)
	assert.Contains(t, out, domain.PromptGoalPath)
}

func TestSessionLs_MemoryStoreIsEmpty(t *testing.T) {
	out, err := execute(t, "", "session", "ls")
	require.NoError(t, err)
	assert.Equal(t, "No sessions found.\n", out)
}

func TestInvalidStoreFlag(t *testing.T) {
	_, err := execute(t, "", "session", "ls", "--store", "sqlite")
	assert.Error(t, err)
}
