package recordio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample{Name: "hi", N: 3}))

	var out sample
	require.NoError(t, Read(&buf, &out))
	require.Equal(t, sample{Name: "hi", N: 3}, out)
}

func TestReadRejectsZeroSizeFrame(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
	var out sample
	err := Read(buf, &out)
	require.ErrorIs(t, err, ErrZeroSize)
}

func TestReadFailsOnShortPayload(t *testing.T) {
	buf := bytes.NewBuffer([]byte{10, 0, 0, 0, 'a', 'b'})
	var out sample
	err := Read(buf, &out)
	require.Error(t, err)
}

func TestReadFailsOnShortHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 2})
	var out sample
	err := Read(buf, &out)
	require.Error(t, err)
}

func TestMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sample{Name: "a", N: 1}))
	require.NoError(t, Write(&buf, sample{Name: "b", N: 2}))

	var first, second sample
	require.NoError(t, Read(&buf, &first))
	require.NoError(t, Read(&buf, &second))
	require.Equal(t, "a", first.Name)
	require.Equal(t, "b", second.Name)
}
