package mqtt

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	dev := Topics{DeviceID: "dev1"}
	mod := Topics{DeviceID: "dev1", ModuleID: "filter"}

	assert.Equal(t, "devices/dev1/messages/events/", dev.Events(url.Values{}))
	assert.Equal(t, "devices/dev1/modules/filter/messages/events/k=v", mod.Events(url.Values{"k": {"v"}}))
	assert.Equal(t, "devices/dev1/messages/devicebound/#", dev.CloudMessages())
	assert.Equal(t, "devices/dev1/modules/filter/inputs/#", mod.CloudMessages())
	assert.Equal(t, "dev1/filter", mod.ClientID())
	assert.Equal(t, "h/dev1/filter/?api-version="+APIVersion+"&DeviceClientType=my+app%2F1.0", mod.Username("h", "my app/1.0"))
}

func TestParseTwinResponse(t *testing.T) {
	r, ok := parseTwinResponse("$iothub/twin/res/204/?$rid=5&$version=3")
	require.True(t, ok)
	assert.Equal(t, twinResponse{Status: 204, RID: "5", Version: 3}, r)

	_, ok = parseTwinResponse("$iothub/twin/res/abc/?$rid=5")
	assert.False(t, ok)
	_, ok = parseTwinResponse("$iothub/twin/res/200/")
	assert.False(t, ok)
}

func TestParseMethodCall(t *testing.T) {
	m, ok := parseMethodCall("$iothub/methods/POST/getLog/?$rid=a1")
	require.True(t, ok)
	assert.Equal(t, methodCall{Name: "getLog", RID: "a1"}, m)

	_, ok = parseMethodCall("$iothub/methods/POST//?$rid=a1")
	assert.False(t, ok)
}

func TestParseDesiredVersion(t *testing.T) {
	v, ok := parseDesiredVersion("$iothub/twin/PATCH/properties/desired/?$version=17")
	require.True(t, ok)
	assert.Equal(t, int64(17), v)
}

func TestModuleCloudMessage(t *testing.T) {
	mod := Topics{DeviceID: "dev1", ModuleID: "filter"}
	props, ok := mod.parseCloudMessage("devices/dev1/modules/filter/inputs/input1/%24.mid=9&a=b")
	require.True(t, ok)
	assert.Equal(t, "9", props.Get("$.mid"))
	assert.Equal(t, "b", props.Get("a"))
}

func TestSASToken(t *testing.T) {
	expiry := time.Unix(1_700_003_600, 0)
	tok, err := NewSASToken("myhub.example.net/devices/dev1", testKey, "", expiry)
	require.NoError(t, err)

	parsed, err := ParseSASToken(tok.String())
	require.NoError(t, err)
	assert.Equal(t, tok.Resource, parsed.Resource)
	assert.Equal(t, tok.Signature, parsed.Signature)
	assert.True(t, parsed.Expiry.Equal(expiry))

	assert.False(t, tok.Expired(expiry.Add(-time.Second)))
	assert.True(t, tok.Expired(expiry))

	again, err := NewSASToken("myhub.example.net/devices/dev1", testKey, "", expiry)
	require.NoError(t, err)
	assert.Equal(t, tok.Signature, again.Signature, "signing is deterministic")
}

func TestSASTokenErrors(t *testing.T) {
	_, err := NewSASToken("r", "%%%", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseSASToken("sr=a&sig=b&se=1")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = ParseSASToken("SharedAccessSignature sr=a&se=1")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
