package runtimedriver

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

func TestReadWaitCodeNormalizesNegativeCodes(t *testing.T) {
	require.Equal(t, 0, ReadWaitCode("0"))
	require.Equal(t, 1, ReadWaitCode("1"))
	require.Equal(t, 137, ReadWaitCode("-9"))  // SIGKILL
	require.Equal(t, 143, ReadWaitCode("-15")) // SIGTERM
}

func TestReadWaitCodeWrapsModulo256(t *testing.T) {
	require.Equal(t, (128+200)%256, ReadWaitCode("-200"))
}

func TestReadWaitCodeFallsBackOnGarbage(t *testing.T) {
	require.Equal(t, 111, ReadWaitCode("not-a-number"))
	require.Equal(t, 111, ReadWaitCode(""))
}

func TestPairPortsZipsByPosition(t *testing.T) {
	pairs := pairPorts([]int{31000, 31001}, []int{80, 443})
	require.Equal(t, []portPair{{host: 31000, container: 80}, {host: 31001, container: 443}}, pairs)
}

func TestPairPortsBindsSurplusAllocatedToItself(t *testing.T) {
	pairs := pairPorts([]int{31000, 31001}, []int{80})
	require.Equal(t, []portPair{{host: 31000, container: 80}, {host: 31001, container: 31001}}, pairs)
}

func TestPairPortsDropsSurplusDeclaredPorts(t *testing.T) {
	pairs := pairPorts([]int{31000}, []int{80, 443, 8080})
	require.Equal(t, []portPair{{host: 31000, container: 80}}, pairs)
}

func TestImageTokenJoinsKnownComponents(t *testing.T) {
	require.Equal(t, "centos:7", ImageToken("centos:7", "", ""))
	require.Equal(t, "myaccount/centos:7", ImageToken("centos:7", "myaccount", ""))
	require.Equal(t, "index.example.com/myaccount/centos:7", ImageToken("centos:7", "myaccount", "index.example.com"))
}

func TestParseOSRelease(t *testing.T) {
	data := "ID=ubuntu\nVERSION_ID=\"20.04\"\n# comment\n\nPRETTY_NAME=\"Ubuntu\"\n"
	fields := parseOSRelease(data)
	require.Equal(t, "ubuntu", fields["ID"])
	require.Equal(t, "20.04", fields["VERSION_ID"])
}

func TestImageInfoParsesExposedPortsMap(t *testing.T) {
	raw := `[{"Config":{"ExposedPorts":{"80/tcp":{},"443/tcp":{}}}}]`
	var parsed []ImageInfo
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(raw), &parsed))
	require.Len(t, parsed[0].Config.ExposedPorts, 2)
}

func TestImageInfoParsesLegacyPortSpecs(t *testing.T) {
	raw := `[{"Config":{"PortSpecs":["80","0.0.0.0:443:443"]}}]`
	var parsed []ImageInfo
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(raw), &parsed))
	require.Equal(t, []string{"80", "0.0.0.0:443:443"}, parsed[0].Config.PortSpecs)
}
