package uristage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnpackerRecognizesTarballVariants(t *testing.T) {
	require.NotNil(t, unpacker("http://x/a.tar.gz", "/tmp/a.tar.gz", "/tmp"))
	require.NotNil(t, unpacker("http://x/a.tgz", "/tmp/a.tgz", "/tmp"))
	require.NotNil(t, unpacker("http://x/a.tar.bz2", "/tmp/a.tar.bz2", "/tmp"))
	require.NotNil(t, unpacker("http://x/a.tar.xz", "/tmp/a.tar.xz", "/tmp"))
}

func TestUnpackerRecognizesZip(t *testing.T) {
	argv := unpacker("http://x/a.zip", "/tmp/a.zip", "/tmp")
	require.Equal(t, []string{"unzip", "-d", "/tmp", "/tmp/a.zip"}, argv)
}

func TestUnpackerReturnsNilForUnknownExtension(t *testing.T) {
	require.Nil(t, unpacker("http://x/a.bin", "/tmp/a.bin", "/tmp"))
}

func TestUnpackerTarballArgv(t *testing.T) {
	argv := unpacker("http://x/a.tar.gz", "/tmp/a.tar.gz", "/tmp")
	require.Equal(t, []string{"tar", "-C", "/tmp", "-xf", "/tmp/a.tar.gz"}, argv)
}
