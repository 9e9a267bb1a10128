package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasCommands(t *testing.T) {
	root := buildRoot()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "status", "update", "abort"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestServeRequiresConfig(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--config")
}

func TestUpdateRequiresFlags(t *testing.T) {
	root := buildRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"update"})
	assert.Error(t, root.Execute())
}

func TestAPITimeoutParseError(t *testing.T) {
	_, _, _, err := newAPIClient(&APIFlags{URL: "http://localhost:8080", Timeout: "soon"})
	assert.Error(t, err)
}
