package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeGatewayTXT creates TXT records for gateway discovery.
func EncodeGatewayTXT(info *GatewayInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyHub:      info.HubHost,
		TXTKeyProtocol: info.Protocol,
	}
	if info.Version != "" {
		txt[TXTKeyVersion] = info.Version
	}
	return txt
}

// DecodeGatewayTXT parses TXT records from gateway discovery.
func DecodeGatewayTXT(txt TXTRecordMap) (*GatewayInfo, error) {
	hub, ok := txt[TXTKeyHub]
	if !ok || hub == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHub)
	}
	proto, ok := txt[TXTKeyProtocol]
	if !ok || proto == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocol)
	}
	return &GatewayInfo{
		HubHost:  hub,
		Protocol: strings.ToLower(proto),
		Version:  txt[TXTKeyVersion],
	}, nil
}

// EncodeDeviceTXT creates TXT records for a device announcement.
func EncodeDeviceTXT(info *DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyHub:    info.HubHost,
		TXTKeyDevice: info.DeviceID,
	}
	if info.ModuleID != "" {
		txt[TXTKeyModule] = info.ModuleID
	}
	return txt
}

// DecodeDeviceTXT parses TXT records from a device announcement.
func DecodeDeviceTXT(txt TXTRecordMap) (*DeviceInfo, error) {
	hub, ok := txt[TXTKeyHub]
	if !ok || hub == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHub)
	}
	dev, ok := txt[TXTKeyDevice]
	if !ok || dev == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDevice)
	}
	return &DeviceInfo{
		HubHost:  hub,
		DeviceID: dev,
		ModuleID: txt[TXTKeyModule],
	}, nil
}

// TXTRecordsToStrings converts a map to key=value strings in key order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// StringsToTXTRecords parses key=value strings. Entries without '=' map to "".
func StringsToTXTRecords(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		if k == "" {
			continue
		}
		txt[strings.ToLower(k)] = v
	}
	return txt
}
