package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathsFindsDirectAndDockerNestedLayouts(t *testing.T) {
	root := t.TempDir()
	orig := Root
	Root = root
	defer func() { Root = orig }()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "memory", "abc123"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cpuacct", "docker", "abc123"), 0755))

	paths, err := Paths("abc123")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "memory", "abc123"), paths["memory"])
	require.Equal(t, filepath.Join(root, "cpuacct", "docker", "abc123"), paths["cpuacct"])
	_, hasCPU := paths["cpu"]
	require.False(t, hasCPU)
}

func TestRelativeToHandlesBothLayouts(t *testing.T) {
	require.Equal(t, "/abc123", relativeTo("/sys/fs/cgroup/memory/abc123", "/sys/fs/cgroup", "memory"))
	require.Equal(t, "/docker/abc123", relativeTo("/sys/fs/cgroup/cpuacct/docker/abc123", "/sys/fs/cgroup", "cpuacct"))
}

func TestParseStatFileSkipsMalformedLines(t *testing.T) {
	data := "rss 1048576\ncache 2048\nmalformed line here\n\nswap 0\n"
	parsed := ParseStatFile(data)
	require.Equal(t, "1048576", parsed["rss"])
	require.Equal(t, "2048", parsed["cache"])
	require.Equal(t, "0", parsed["swap"])
	require.Len(t, parsed, 3)
}

func TestReadUintFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.shares")
	require.NoError(t, os.WriteFile(path, []byte("2048\n"), 0644))
	v, err := readUintFile(path)
	require.NoError(t, err)
	require.Equal(t, uint64(2048), v)
}
