package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{config: config}
}

// BrowseGateways searches for gateways. Addresses seen on several
// interfaces are merged into a single service.
func (b *MDNSBrowser) BrowseGateways(ctx context.Context) (<-chan *GatewayService, error) {
	return b.browse(ctx, "")
}

func (b *MDNSBrowser) browse(ctx context.Context, hubHost string) (<-chan *GatewayService, error) {
	out := make(chan *GatewayService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	agg := newGatewayAggregator(hubHost)

	go func() {
		defer close(out)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := agg.add(fromZeroconf(entry))
				if svc == nil {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}
			case entry, ok := <-removed:
				if !ok {
					continue
				}
				agg.remove(fromZeroconf(entry))
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeGateway, Domain, entries, removed, b.clientOptions()...)
	}()

	return out, nil
}

// FindGateway returns the first gateway relaying to hubHost.
func (b *MDNSBrowser) FindGateway(ctx context.Context, hubHost string) (*GatewayService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results, err := b.browse(ctx, hubHost)
	if err != nil {
		return nil, err
	}
	select {
	case svc, ok := <-results:
		if !ok {
			return nil, ErrNotFound
		}
		return svc, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: gateway for %s", ErrNotFound, hubHost)
	}
}

func (b *MDNSBrowser) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := lookupInterface(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

func fromZeroconf(entry *zeroconf.ServiceEntry) *ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return &ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// lookupInterface returns nil to mean all interfaces.
func lookupInterface(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Announcer advertises a device with zeroconf.
type Announcer struct {
	mu     sync.Mutex
	iface  string
	server *zeroconf.Server
}

// NewAnnouncer creates an announcer bound to iface, or all interfaces when empty.
func NewAnnouncer(iface string) *Announcer {
	return &Announcer{iface: iface}
}

// Announce starts advertising info, replacing any earlier announcement.
func (a *Announcer) Announce(info *DeviceInfo) error {
	if info.Port == 0 {
		return ErrInvalidPort
	}
	if info.DeviceID == "" || info.HubHost == "" {
		return fmt.Errorf("%w: device announcement", ErrMissingRequired)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	instance := info.InstanceName
	if instance == "" {
		instance = InstanceNameFor(info.DeviceID, info.ModuleID)
	}

	server, err := zeroconf.Register(
		instance,
		ServiceTypeDevice,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeDeviceTXT(info)),
		lookupInterface(a.iface),
		zeroconf.TTL(uint32(DefaultTTL.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to register device service: %w", err)
	}
	a.server = server
	return nil
}

// Stop withdraws the announcement.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

var _ Browser = (*MDNSBrowser)(nil)
