package netutil

import "net"

// ClassifyClientSource categorizes the IP origin for access logs.
func ClassifyClientSource(ip net.IP) string {
	if ip == nil {
		return "unknown"
	}
	if ip.IsLoopback() {
		return "loopback"
	}
	if IsDockerBridgeIP(ip) {
		return "docker_bridge"
	}
	if ip.IsPrivate() {
		return "private"
	}
	return "public"
}

// IsDockerBridgeIP detects Docker default bridge range.
func IsDockerBridgeIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 172 && ip4[1] == 17
	}
	return false
}
