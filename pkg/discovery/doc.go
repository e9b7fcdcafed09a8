// Package discovery finds hub gateways on the local network with mDNS/DNS-SD.
//
// Two service types are used:
//
// # Gateway Discovery (_hubgw._tcp)
//
// Edge gateways that relay device traffic to a hub advertise this service.
// A device whose connection string names no GatewayHostName can browse for
// a gateway serving its hub and connect through it.
// TXT records include: hub (upstream hub host name), proto (transport
// protocol) and optionally ver (gateway version).
//
// # Device Announcement (_hubdev._tcp)
//
// A running device may announce itself for local diagnostics. The port is
// the device's metrics endpoint.
// TXT records include: hub, dev (device ID) and optionally mod (module ID).
package discovery
