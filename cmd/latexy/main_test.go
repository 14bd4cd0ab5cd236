package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/domain/model"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("dev"))

	for _, name := range []string{"api", "worker", "scheduler", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	w, _, err := root.Find([]string{"worker"})
	require.NoError(t, err)
	assert.NotNil(t, w.Flags().Lookup("lanes"))
	assert.NotNil(t, w.RunE)
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "latexy dev")
}

func TestParseLanes(t *testing.T) {
	assert.Equal(t, model.Lanes(), parseLanes(nil))
	assert.Equal(t, []model.Lane{model.LaneLLM}, parseLanes([]string{"llm"}))
}
