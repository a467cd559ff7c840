// Package urls prepares the addresses printed to the operator and opened in the browser.
package urls

import (
	"net"
	"net/url"
	"strconv"
)

// URLs holds every address form the development server advertises.
type URLs struct {
	LocalURLForTerminal string
	LocalURLForBrowser  string
	// LANURLForConfig is the bare LAN IP, empty when none was found.
	LANURLForConfig   string
	LANURLForTerminal string
}

// Interfaces lists candidate local addresses. Replaced in tests.
var Interfaces = net.InterfaceAddrs

// Prepare computes URLs for protocol ("http" or "https"), host and port.
// Unspecified hosts ("", 0.0.0.0, ::) are shown as localhost and also
// advertised on the first private IPv4 address found.
func Prepare(protocol, host string, port int) URLs {
	format := func(h string) string {
		u := url.URL{Scheme: protocol, Host: hostPort(protocol, h, port), Path: "/"}
		return u.String()
	}

	isUnspecified := host == "" || host == "0.0.0.0" || host == "::"
	prettyHost := host
	if isUnspecified {
		prettyHost = "localhost"
	}

	out := URLs{
		LocalURLForTerminal: format(prettyHost),
		LocalURLForBrowser:  format(prettyHost),
	}
	if isUnspecified {
		if ip := privateIPv4(); ip != "" {
			out.LANURLForConfig = ip
			out.LANURLForTerminal = format(ip)
		}
	}
	return out
}

func hostPort(protocol, host string, port int) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		host = "[" + host + "]"
	}
	if port <= 0 || (protocol == "http" && port == 80) || (protocol == "https" && port == 443) {
		return host
	}
	return host + ":" + strconv.Itoa(port)
}

func privateIPv4() string {
	addrs, err := Interfaces()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	return ""
}
