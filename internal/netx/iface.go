package netx

import (
	"fmt"
	"net"
)

// LookupInterface resolves name to an interface and its first IPv4 address.
// An empty name selects the system default and returns (nil, nil, nil). On
// error the caller should fall back to the default interface.
func LookupInterface(name string) (*net.Interface, net.IP, error) {
	if name == "" {
		return nil, nil, nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, nil, fmt.Errorf("interface %q does not match OS interfaces or does not have an IPv4: %w", name, err)
	}
	ip := interfaceIPv4(ifi)
	if ip == nil {
		return nil, nil, fmt.Errorf("interface %q does not match OS interfaces or does not have an IPv4", name)
	}
	return ifi, ip, nil
}

func interfaceIPv4(ifi *net.Interface) net.IP {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP == nil {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}

// MulticastInterfaces lists the interfaces that are up, support multicast
// and carry an IPv4 address.
func MulticastInterfaces() ([]net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]net.Interface, 0, len(ifaces))
	for _, it := range ifaces {
		if it.Flags&net.FlagUp == 0 || it.Flags&net.FlagMulticast == 0 {
			continue
		}
		// skip point-to-point/tunnel-ish
		if it.Flags&net.FlagPointToPoint != 0 {
			continue
		}
		if interfaceIPv4(&it) == nil {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
