package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolab/internal/neuro"
)

type cli struct {
	t    *testing.T
	base []string
	dir  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{
		t:   t,
		dir: dir,
		base: []string{
			"--config", filepath.Join(dir, "missing.yaml"),
			"--store", "sqlite",
			"--db-path", filepath.Join(dir, "neurolab.db"),
			"--artifacts-dir", filepath.Join(dir, "artifacts"),
			"--log-level", "error",
		},
	}
}

func (c *cli) path(name string) string {
	return filepath.Join(c.dir, name)
}

func (c *cli) execute(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(append([]string{}, c.base...), args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustExecute(args ...string) string {
	c.t.Helper()
	out, err := c.execute(args...)
	require.NoError(c.t, err, "args %v", args)
	return out
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"init", "new", "info", "run", "dump", "snapshot", "export", "runs"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, name := range []string{"save", "list", "restore"} {
		sub, _, err := cmd.Find([]string{"snapshot", name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"config", "store", "db-path", "workers", "log-level", "log-format", "artifacts-dir"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "0", cmd.PersistentFlags().Lookup("workers").DefValue)
}

func TestNetworkLifecycle(t *testing.T) {
	c := newCLI(t)
	net := c.path("demo.nnet")

	assert.Equal(t, "initialized store=sqlite\n", c.mustExecute("init"))

	out := c.mustExecute("new", net, "--demo")
	assert.Equal(t, fmt.Sprintf("created network=%s cells=5 edges=4\n", net), out)

	out = c.mustExecute("info", net, "--cells")
	assert.Contains(t, out, fmt.Sprintf("format=current automata_version=%d client_version=%d",
		neuro.CurrentVersion.Automata, neuro.CurrentVersion.Client))
	assert.Contains(t, out, "cells=5 free=0 edges=4")
	assert.Contains(t, out, "excitatory_link")
	assert.Contains(t, out, "frozen")

	out = c.mustExecute("run", net, "--steps", "3", "--run-id", "r1")
	assert.Contains(t, out, "run_id=r1 steps=3 cancelled=false commits=0 active=1")
	assert.Contains(t, out, "artifacts="+filepath.Join(c.dir, "artifacts", "r1"))

	n, err := neuro.OpenFile(net)
	require.NoError(t, err)
	cell, ok := n.Current(4)
	require.True(t, ok)
	assert.InDelta(t, 0.7, cell.Value, 1e-6)

	out = c.mustExecute("runs")
	assert.Contains(t, out, "run_id=r1 network="+net+" steps=3/3 cancelled=false")

	out = c.mustExecute("dump", net)
	assert.True(t, strings.HasPrefix(out, "digraph neurolib_network {\n"))
	assert.Contains(t, out, "  N4 [color=\"red\"]\n")

	dot := c.path("demo.dot")
	assert.Empty(t, c.mustExecute("dump", net, "--reverse", "-o", dot))
	data, err := os.ReadFile(dot)
	require.NoError(t, err)
	assert.Contains(t, string(data), "  L2 -> N4\n")

	out = c.mustExecute("export", "--latest", "--out", c.path("exports"))
	assert.Equal(t, fmt.Sprintf("exported run_id=r1 dir=%s\n", filepath.Join(c.dir, "exports", "r1")), out)
}

func TestSnapshotCommands(t *testing.T) {
	c := newCLI(t)
	net := c.path("demo.nnet")
	c.mustExecute("new", net, "--demo")

	out := c.mustExecute("snapshot", "save", net, "--label", "base")
	m := regexp.MustCompile(`snapshot_id=(\S+) cells=5 edges=4`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	c.mustExecute("run", net, "--steps", "4")

	out = c.mustExecute("snapshot", "list")
	assert.Contains(t, out, "snapshot_id="+id+` label="base"`)

	restored := c.path("restored.nnet")
	out = c.mustExecute("snapshot", "restore", id, restored)
	assert.Equal(t, fmt.Sprintf("restored snapshot_id=%s network=%s cells=5\n", id, restored), out)

	n, err := neuro.OpenFile(restored)
	require.NoError(t, err)
	cell, _ := n.Current(4)
	assert.Zero(t, cell.Value)

	_, err = c.execute("snapshot", "restore", "missing", restored)
	assert.ErrorContains(t, err, "snapshot not found")
}

func TestRunWithoutSaveLeavesFile(t *testing.T) {
	c := newCLI(t)
	net := c.path("demo.nnet")
	c.mustExecute("new", net, "--demo")
	before, err := os.ReadFile(net)
	require.NoError(t, err)

	c.mustExecute("run", net, "--steps", "2", "--no-save")

	after, err := os.ReadFile(net)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "neurolab.yaml")
	body := fmt.Sprintf(`store:
  kind: badger
  path: %s
log:
  level: error
dynamics:
  decay: 0.5
  learn_time: 4
run:
  steps: 6
artifacts_dir: %s
`, filepath.Join(dir, "badger"), filepath.Join(dir, "artifacts"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	net := filepath.Join(dir, "demo.nnet")

	execute := func(args ...string) string {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		require.NoError(t, cmd.Execute(), "args %v", args)
		return out.String()
	}

	execute("new", net, "--demo")
	n, err := neuro.OpenFile(net)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), n.Params().Decay)
	assert.Equal(t, float32(4), n.Params().LearnTime)

	assert.Contains(t, execute("run", net), "steps=6")
	assert.Contains(t, execute("runs"), "steps=6/6")
}

func TestCommandErrors(t *testing.T) {
	c := newCLI(t)

	_, err := c.execute("run", c.path("missing.nnet"))
	assert.Error(t, err)

	_, err = c.execute("run", c.path("missing.nnet"), "--steps", "0")
	assert.ErrorContains(t, err, "steps must be > 0")

	_, err = c.execute("--store", "etcd", "init")
	assert.ErrorContains(t, err, "unsupported store kind")

	bad := c.path("bad.nnet")
	require.NoError(t, os.WriteFile(bad, []byte{0, 0, 0, 2, 0, 'x'}, 0o644))
	_, err = c.execute("info", bad)
	assert.ErrorIs(t, err, neuro.ErrFileFormat)

	_, err = c.execute("export")
	assert.ErrorContains(t, err, "export requires run id or latest")

	_, err = c.execute("runs", "--limit", "0")
	assert.Error(t, err)
}
