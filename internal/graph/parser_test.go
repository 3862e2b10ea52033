package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureSource = `
import os
import json as j
from collections import OrderedDict

class Agent:
    retries: int = 3

    def __init__(self, name):
        self.name = name
        self.tools: list = []

    def run(self, task, timeout=30) -> str:
        return task

def make_agent(name) -> Agent:
    return Agent(name)
`

func parseFixture(t *testing.T) *FileInfo {
	t.Helper()
	p := NewParser()
	t.Cleanup(p.Close)
	info, err := p.ParseSource(context.Background(), []byte(fixtureSource), "pkg.agent")
	require.NoError(t, err)
	return info
}

func TestParseSourceImports(t *testing.T) {
	info := parseFixture(t)
	assert.Equal(t, []string{"os", "json", "collections"}, info.Imports)
}

func TestParseSourceClass(t *testing.T) {
	info := parseFixture(t)
	require.Len(t, info.Classes, 1)

	c := info.Classes[0]
	assert.Equal(t, "Agent", c.Name)
	assert.Equal(t, "pkg.agent.Agent", c.FullName)

	require.Len(t, c.Methods, 2)
	init := c.Methods[0]
	assert.Equal(t, "__init__", init.Name)
	assert.Equal(t, "pkg.agent.Agent.__init__", init.FullName)
	assert.Equal(t, []string{"self", "name"}, init.Params)

	run := c.Methods[1]
	assert.Equal(t, "run", run.Name)
	assert.Equal(t, []string{"self", "task", "timeout"}, run.Params)
	assert.Equal(t, "str", run.ReturnType)
}

func TestParseSourceAttributes(t *testing.T) {
	info := parseFixture(t)
	require.Len(t, info.Classes, 1)

	byName := map[string]string{}
	for _, a := range info.Classes[0].Attributes {
		byName[a.Name] = a.Type
	}
	assert.Equal(t, "int", byName["retries"])
	assert.Contains(t, byName, "name")
	assert.Equal(t, "list", byName["tools"])
}

func TestParseSourceFunctions(t *testing.T) {
	info := parseFixture(t)
	require.Len(t, info.Functions, 1)
	fn := info.Functions[0]
	assert.Equal(t, "make_agent", fn.Name)
	assert.Equal(t, "pkg.agent.make_agent", fn.FullName)
	assert.Equal(t, []string{"name"}, fn.Params)
	assert.Equal(t, "Agent", fn.ReturnType)
}

func TestParseSourceDecorated(t *testing.T) {
	src := `
@register
class Tool:
    @staticmethod
    def apply(x):
        return x
`
	p := NewParser()
	defer p.Close()
	info, err := p.ParseSource(context.Background(), []byte(src), "m")
	require.NoError(t, err)
	require.Len(t, info.Classes, 1)
	assert.Equal(t, "Tool", info.Classes[0].Name)
	require.Len(t, info.Classes[0].Methods, 1)
	assert.Equal(t, "apply", info.Classes[0].Methods[0].Name)
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "pkg.agent", moduleName("pkg/agent.py"))
	assert.Equal(t, "pkg", moduleName("pkg/__init__.py"))
	assert.Equal(t, "main", moduleName("main.py"))
}
