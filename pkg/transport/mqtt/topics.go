package mqtt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// APIVersion is the hub protocol version sent in the MQTT username.
const APIVersion = "2021-04-12"

// Topic prefixes.
const (
	twinResPrefix     = "$iothub/twin/res/"
	twinDesiredPrefix = "$iothub/twin/PATCH/properties/desired/"
	methodPostPrefix  = "$iothub/methods/POST/"
)

// System property keys carried in topic property bags.
const (
	propMessageID       = "$.mid"
	propCorrelationID   = "$.cid"
	propContentType     = "$.ct"
	propContentEncoding = "$.ce"
	propRequestID       = "$rid"
	propVersion         = "$version"
)

// Topics builds hub MQTT topics for one device identity.
type Topics struct {
	DeviceID string
	ModuleID string
}

func (t Topics) base() string {
	if t.ModuleID != "" {
		return "devices/" + t.DeviceID + "/modules/" + t.ModuleID
	}
	return "devices/" + t.DeviceID
}

// Events returns the telemetry topic with an encoded property bag.
//
// Example: devices/dev1/messages/events/$.mid=1&k=v
func (t Topics) Events(props url.Values) string {
	return t.base() + "/messages/events/" + props.Encode()
}

// CloudMessages returns the cloud-to-device subscription filter.
func (t Topics) CloudMessages() string {
	if t.ModuleID != "" {
		return t.base() + "/inputs/#"
	}
	return t.base() + "/messages/devicebound/#"
}

// TwinResponses returns the twin response subscription filter.
func (Topics) TwinResponses() string { return twinResPrefix + "#" }

// TwinDesired returns the desired-properties subscription filter.
func (Topics) TwinDesired() string { return twinDesiredPrefix + "#" }

// MethodCalls returns the direct method subscription filter.
func (Topics) MethodCalls() string { return methodPostPrefix + "#" }

// TwinGet returns the topic requesting the full twin document.
func (Topics) TwinGet(rid string) string {
	return "$iothub/twin/GET/?$rid=" + url.QueryEscape(rid)
}

// TwinReport returns the topic for a reported-properties patch.
func (Topics) TwinReport(rid string) string {
	return "$iothub/twin/PATCH/properties/reported/?$rid=" + url.QueryEscape(rid)
}

// MethodResponse returns the topic answering a direct method.
func (Topics) MethodResponse(status int, rid string) string {
	return fmt.Sprintf("$iothub/methods/res/%d/?$rid=%s", status, url.QueryEscape(rid))
}

// Username returns the MQTT username for host.
func (t Topics) Username(host, productInfo string) string {
	id := t.DeviceID
	if t.ModuleID != "" {
		id += "/" + t.ModuleID
	}
	user := host + "/" + id + "/?api-version=" + APIVersion
	if productInfo != "" {
		user += "&DeviceClientType=" + url.QueryEscape(productInfo)
	}
	return user
}

// ClientID returns the MQTT client identifier.
func (t Topics) ClientID() string {
	if t.ModuleID != "" {
		return t.DeviceID + "/" + t.ModuleID
	}
	return t.DeviceID
}

// twinResponse is a parsed $iothub/twin/res topic.
type twinResponse struct {
	Status  int
	RID     string
	Version int64
}

func parseTwinResponse(topic string) (twinResponse, bool) {
	rest, ok := strings.CutPrefix(topic, twinResPrefix)
	if !ok {
		return twinResponse{}, false
	}
	statusStr, query, _ := strings.Cut(rest, "/")
	status, err := strconv.Atoi(statusStr)
	if err != nil {
		return twinResponse{}, false
	}
	vals := parseBag(strings.TrimPrefix(query, "?"))
	r := twinResponse{Status: status, RID: vals.Get(propRequestID)}
	if v := vals.Get(propVersion); v != "" {
		r.Version, _ = strconv.ParseInt(v, 10, 64)
	}
	return r, r.RID != ""
}

func parseDesiredVersion(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, twinDesiredPrefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(parseBag(strings.TrimPrefix(rest, "?")).Get(propVersion), 10, 64)
	if err != nil {
		return 0, true
	}
	return v, true
}

// methodCall is a parsed $iothub/methods/POST topic.
type methodCall struct {
	Name string
	RID  string
}

func parseMethodCall(topic string) (methodCall, bool) {
	rest, ok := strings.CutPrefix(topic, methodPostPrefix)
	if !ok {
		return methodCall{}, false
	}
	name, query, found := strings.Cut(rest, "/")
	if !found || name == "" {
		return methodCall{}, false
	}
	rid := parseBag(strings.TrimPrefix(query, "?")).Get(propRequestID)
	return methodCall{Name: name, RID: rid}, rid != ""
}

// parseCloudMessage splits a cloud-to-device topic into its property bag.
func (t Topics) parseCloudMessage(topic string) (url.Values, bool) {
	prefix := t.base() + "/messages/devicebound/"
	if t.ModuleID != "" {
		prefix = t.base() + "/inputs/"
	}
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return nil, false
	}
	if t.ModuleID != "" {
		// inputs/{name}/{props}
		_, rest, _ = strings.Cut(rest, "/")
	}
	return parseBag(rest), true
}

// parseBag parses a property bag, tolerating malformed escapes.
func parseBag(s string) url.Values {
	vals, err := url.ParseQuery(s)
	if err != nil {
		return url.Values{}
	}
	return vals
}
