package network

import (
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

const HOSTNAME_PREFIX = "rccar-"

// InterfaceStation watches a host interface. Association itself is left
// to the operating system; the station only reports when the interface
// is up with an IPv4 address.
type InterfaceStation struct {
	Name string
}

func (s *InterfaceStation) Begin() error {
	_, err := net.InterfaceByName(s.Name)
	return errors.Wrapf(err, "interface %s", s.Name)
}

func (s *InterfaceStation) Status() Status {
	iface, err := net.InterfaceByName(s.Name)
	if err != nil {
		return StatusIdle
	}
	if iface.Flags&net.FlagUp == 0 {
		return StatusIdle
	}
	if ipv4(iface) == nil {
		return StatusConnecting
	}
	return StatusConnected
}

func (s *InterfaceStation) LocalIP() net.IP {
	iface, err := net.InterfaceByName(s.Name)
	if err != nil {
		return nil
	}
	return ipv4(iface)
}

func (s *InterfaceStation) Interface() *net.Interface {
	iface, err := net.InterfaceByName(s.Name)
	if err != nil {
		return nil
	}
	return iface
}

func ipv4(iface *net.Interface) net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ip := ipnet.IP.To4(); ip != nil {
				return ip
			}
		}
	}
	return nil
}

// SimulatedStation connects after a fixed number of status polls. A
// negative ConnectAfter never connects.
type SimulatedStation struct {
	ConnectAfter int
	IP           net.IP
	BeginErr     error

	polls int
}

func (s *SimulatedStation) Begin() error {
	s.polls = 0
	return s.BeginErr
}

func (s *SimulatedStation) Status() Status {
	s.polls++
	if s.ConnectAfter >= 0 && s.polls > s.ConnectAfter {
		return StatusConnected
	}
	return StatusConnecting
}

func (s *SimulatedStation) LocalIP() net.IP {
	if s.IP == nil {
		return net.IPv4(127, 0, 0, 1)
	}
	return s.IP
}

func (s *SimulatedStation) Polls() int {
	return s.polls
}

// Hostname returns the configured name, or one derived from the tail of
// the hardware address.
func Hostname(configured string, hw net.HardwareAddr) string {
	if configured != "" {
		return strings.ToLower(configured)
	}
	if len(hw) < 4 {
		return HOSTNAME_PREFIX + "0000"
	}
	tail := hw[len(hw)-4:]
	return fmt.Sprintf("%s%02x%02x%02x%02x", HOSTNAME_PREFIX, tail[0], tail[1], tail[2], tail[3])
}
