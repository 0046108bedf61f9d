package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

const integratedProfile = `{
	"name": "integrated",
	"vendorID": 32902,
	"features": ["AccelerationStructure", "BufferDeviceAddress"],
	"limits": {"nonCoherentAtomSize": 64},
	"memoryHeaps": [{"size": 67108864, "flags": ["DeviceLocal"]}],
	"memoryTypes": [
		{"heapIndex": 0, "properties": ["DeviceLocal", "HostVisible", "HostCoherent"]}
	]
}`

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCube(t *testing.T) {
	stdout, _, err := execute(t, "cube", "--instances", "2", "--stats")
	require.NoError(t, err)

	require.Contains(t, stdout, "bottom level: 12 triangles")
	require.Contains(t, stdout, "compacted: ")
	require.Contains(t, stdout, "top level: 2 instances")
	require.Regexp(t, `ray 0: hit instance 0 primitive \d+ at t=4\.000`, stdout)
	require.Regexp(t, `ray 1: hit instance 1 primitive \d+ at t=4\.000`, stdout)
	require.Contains(t, stdout, `"AccelerationStructures"`)
	require.Contains(t, stdout, `"cube (compacted)"`)
}

func TestCubeWithoutCompaction(t *testing.T) {
	stdout, _, err := execute(t, "cube", "--compact=false", "--instances", "1")
	require.NoError(t, err)
	require.NotContains(t, stdout, "compacted")

	_, _, err = execute(t, "cube", "--instances", "0")
	require.Error(t, err)
}

func TestCubeOnProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "integrated.json", integratedProfile)

	stdout, _, err := execute(t, "cube", "--profile", path, "--instances", "1")
	require.NoError(t, err)
	require.Contains(t, stdout, "ray 0: hit instance 0")
}

func TestDevices(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "integrated.json", integratedProfile)
	writeFile(t, dir, "nort.json", `{"name": "no ray tracing", "features": ["BufferDeviceAddress"]}`)
	writeFile(t, dir, "notes.txt", "not a profile")

	stdout, _, err := execute(t, "devices", dir)
	require.NoError(t, err)

	require.Contains(t, stdout, `integrated.json: "integrated" vendor 0x8086`)
	require.Contains(t, stdout, "  cube: ok")
	require.Contains(t, stdout, `nort.json: "no ray tracing"`)
	require.Contains(t, stdout, "skipping build")
	require.NotContains(t, stdout, "notes.txt")
}

func TestDevicesReportsBrokenProfiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", integratedProfile)
	writeFile(t, dir, "b.json", `{"features": ["Teleportation"]}`)

	stdout, _, err := execute(t, "devices", "--build=false", dir)
	require.ErrorContains(t, err, "1 of 2 profiles failed: b.json")
	require.Contains(t, stdout, "a.json: ")
	require.Contains(t, stdout, "b.json: FAILED")
	require.NotContains(t, stdout, "cube: ok")

	_, _, err = execute(t, "devices", t.TempDir())
	require.ErrorContains(t, err, "no *.json profiles")
}

func TestConfigSources(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "raytrace.yaml", "log-level: debug\ntimeout: 5s\n")

	_, stderr, err := execute(t, "--config", config, "cube", "--instances", "1")
	require.NoError(t, err)
	require.Contains(t, stderr, "Builder::Build")

	t.Setenv("ACCEL_TIMEOUT", "-1s")
	_, _, err = execute(t, "cube")
	require.ErrorContains(t, err, "timeout must be positive")

	t.Setenv("ACCEL_TIMEOUT", "")
	t.Setenv("ACCEL_LOG_LEVEL", "chatty")
	_, _, err = execute(t, "cube")
	require.ErrorContains(t, err, "bad log level")

	_, _, err = execute(t, "--config", filepath.Join(dir, "missing.yaml"), "cube")
	require.ErrorContains(t, err, "failed to read config")
}
