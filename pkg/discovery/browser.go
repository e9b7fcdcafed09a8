package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/hubclient/hubclient-go/pkg/version"
)

// Browser finds hub gateways.
type Browser interface {
	// BrowseGateways streams gateways as they are found. The channel is
	// closed when ctx is done.
	BrowseGateways(ctx context.Context) (<-chan *GatewayService, error)

	// FindGateway returns the first gateway relaying to hubHost.
	FindGateway(ctx context.Context, hubHost string) (*GatewayService, error)
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindGateway when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// ServiceEntry is a resolved mDNS entry independent of the mDNS library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToGatewayService converts a ServiceEntry to a GatewayService.
func (e *ServiceEntry) ToGatewayService() (*GatewayService, error) {
	if e.Port == 0 {
		return nil, ErrInvalidPort
	}
	info, err := DecodeGatewayTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	return &GatewayService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		GatewayInfo:  *info,
	}, nil
}

// ToDeviceInfo converts a ServiceEntry to a DeviceInfo.
func (e *ServiceEntry) ToDeviceInfo() (*DeviceInfo, error) {
	info, err := DecodeDeviceTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	info.InstanceName = e.Instance
	info.Port = e.Port
	return info, nil
}

// MatchHub reports whether a gateway relays to hubHost.
func MatchHub(svc *GatewayService, hubHost string) bool {
	return hubHost == "" || equalFoldHost(svc.HubHost, hubHost)
}

func equalFoldHost(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}

// mergeAddresses adds new addresses to existing, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops every address in gone.
func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// gatewayAggregator folds per-interface entries into one service per instance.
type gatewayAggregator struct {
	hubHost  string
	services map[string]*GatewayService
}

func newGatewayAggregator(hubHost string) *gatewayAggregator {
	return &gatewayAggregator{hubHost: hubHost, services: make(map[string]*GatewayService)}
}

// add returns the service when it is new and matches the hub filter.
func (a *gatewayAggregator) add(e *ServiceEntry) *GatewayService {
	svc, err := e.ToGatewayService()
	if err != nil || !MatchHub(svc, a.hubHost) || !version.SupportsGateway(svc.Version) {
		return nil
	}
	if existing, ok := a.services[svc.InstanceName]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return nil
	}
	a.services[svc.InstanceName] = svc
	return svc
}

func (a *gatewayAggregator) remove(e *ServiceEntry) {
	existing, ok := a.services[e.Instance]
	if !ok {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, e.Addrs)
	if len(existing.Addresses) == 0 {
		delete(a.services, e.Instance)
	}
}
