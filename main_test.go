package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "code", "mcp"}, names)

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.ini", flag.DefValue)
}

func TestCodeRequiresExactlyOneInput(t *testing.T) {
	for _, args := range [][]string{
		{"code"},
		{"code", "--text", "note", "--pdf", "note.pdf"},
	} {
		root := newRootCmd()
		root.SetArgs(args)
		err := root.Execute()
		assert.ErrorContains(t, err, "exactly one of --text or --pdf")
	}
}

func TestCodingAgentOrder(t *testing.T) {
	require.Len(t, codingAgents, 3)
	assert.Equal(t, "icd_coding", codingAgents[0].persona)
	assert.Equal(t, "hcpcs_coding", codingAgents[1].persona)
	assert.Equal(t, "cpt_coding", codingAgents[2].persona)
}
