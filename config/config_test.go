package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultInteractiveUsesConsoleLogging(t *testing.T) {
	c := Default(true)
	require.Equal(t, "debug", c.Log.Console)
	require.Empty(t, c.Log.Syslog)
	require.Equal(t, "docker", c.Docker.Bin)
	require.True(t, c.URIs.Unpack)
}

func TestDefaultNonInteractiveUsesSyslog(t *testing.T) {
	c := Default(false)
	require.Equal(t, "info", c.Log.Syslog)
	require.Empty(t, c.Log.Console)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deimos.toml")
	data := `
[state]
root = "/var/lib/deimos"

[containers.image]
default = "centos:7"
ignore = true

[docker.index]
account = "myteam"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	c, err := Load(path, false)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/deimos", c.State.Root)
	require.Equal(t, "centos:7", c.Containers.Image.Default)
	require.True(t, c.Containers.Image.Ignore)
	require.Equal(t, "myteam", c.Docker.Index.Account)
	require.Equal(t, "libmesos", c.Docker.Index.AccountLibmesos, "unset fields keep their default")
	require.Equal(t, "docker", c.Docker.Bin, "unset fields keep their default")
}

func TestLoadRejectsColonInStateRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deimos.toml")
	require.NoError(t, os.WriteFile(path, []byte("[state]\nroot = \"/tmp/dei:mos\"\n"), 0644))

	_, err := Load(path, false)
	require.Error(t, err)
}

func TestImageOverride(t *testing.T) {
	img := Image{Default: "centos:7"}
	require.Equal(t, "ubuntu:20.04", img.Override("ubuntu:20.04"))

	pinned := Image{Default: "centos:7", Ignore: true}
	require.Equal(t, "centos:7", pinned.Override("ubuntu:20.04"))

	require.Equal(t, "centos:7", img.Override(""))
}

func TestOptionsOverride(t *testing.T) {
	o := Options{Default: []string{"--net=host"}, Append: []string{"--privileged"}}
	require.Equal(t, []string{"-v", "/tmp:/tmp", "--privileged"}, o.Override([]string{"-v", "/tmp:/tmp"}))
	require.Equal(t, []string{"--net=host", "--privileged"}, o.Override(nil))
}

func TestLoadWithNoFileFound(t *testing.T) {
	orig := SearchPath
	SearchPath = []string{filepath.Join(t.TempDir(), "does-not-exist.toml")}
	defer func() { SearchPath = orig }()

	c, err := Load("", true)
	require.NoError(t, err)
	require.Equal(t, Default(true), c)
}
