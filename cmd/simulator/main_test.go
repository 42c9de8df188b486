package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topologyYaml = `
general:
  queueLength: 64
  seed: 11
  logLevel: warning
topology:
  drones:
    - id: 1
      neighbors: [0, 2]
    - id: 2
      neighbors: [3]
  endpoints:
    - id: 0
    - id: 3
      kind: server
`

const scenarioScript = `
op=send route=0,1,2,3 session=1 data=hi
op=expect node=3 kind=fragment
op=pdr node=1 rate=1
op=send route=0,1,2,3 session=2
op=expect node=0 nack=Dropped
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRunAndInspect(t *testing.T) {
	dir := t.TempDir()
	topology := writeFile(t, dir, "topology.yaml", topologyYaml)
	script := writeFile(t, dir, "scenario.logfmt", scenarioScript)
	capture := filepath.Join(dir, "events.pcap")

	out, err := execute("run", "--config", topology, "--scenario", script, "--capture", capture)
	require.NoError(t, err)
	assert.Contains(t, out, "received at 3: fragment{session: 1")
	assert.Contains(t, out, "received at 0: nack{session: 2")
	assert.Contains(t, out, "drone 1: sent=2 dropped=1 shortcuts=0")
	assert.Contains(t, out, "drone 2: sent=1 dropped=0 shortcuts=0")

	out, err = execute("inspect", capture)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// two forwards and a nack sent, one drop
	assert.Len(t, lines, 4)
	assert.Contains(t, out, "packet_dropped node=1 fragment{session: 2")
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	topology := writeFile(t, dir, "topology.yaml", topologyYaml)
	script := writeFile(t, dir, "scenario.logfmt", "op=crash node=0\n")

	_, err := execute("run", "--config", topology, "--scenario", script)
	assert.Error(t, err)
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "scenario.logfmt", "op=wait for=1ms\n")

	_, err := execute("run", "--config", filepath.Join(dir, "missing.yaml"), "--scenario", script)
	assert.Error(t, err)

	topology := writeFile(t, dir, "topology.yaml", topologyYaml)
	bad := writeFile(t, dir, "bad.logfmt", "op=launch\n")
	_, err = execute("run", "--config", topology, "--scenario", bad)
	assert.Error(t, err)

	_, err = execute("run", "--config", topology)
	assert.Error(t, err)
}

func TestInspectRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "garbage.pcap", "not a capture")

	_, err := execute("inspect", path)
	assert.Error(t, err)

	_, err = execute("inspect")
	assert.Error(t, err)
}
