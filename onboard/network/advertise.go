package network

import (
	"net"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
)

const (
	MDNS_SERVICE = "_http._tcp"
	MDNS_DOMAIN  = "local."
)

// Advertise registers <hostname>.local for the control page. The
// returned server must be shut down on exit.
func Advertise(hostname string, port int, ip net.IP, iface *net.Interface, version string) (*zeroconf.Server, error) {
	var ifaces []net.Interface
	if iface != nil {
		ifaces = append(ifaces, *iface)
	}

	server, err := zeroconf.RegisterProxy(
		hostname,
		MDNS_SERVICE,
		MDNS_DOMAIN,
		port,
		hostname,
		[]string{ip.String()},
		txtRecords(version),
		ifaces,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to advertise %s.local", hostname)
	}
	return server, nil
}

func txtRecords(version string) []string {
	return []string{
		"path=/",
		"ws=/ws/control",
		"version=" + version,
	}
}
