// Package netutil classifies the network origin of inbound callers.
package netutil

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientSource classifies the caller of c using gin's ClientIP, which honors
// the engine's trusted proxies.
func ClientSource(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	return ClassifyClientSource(net.ParseIP(strings.TrimSpace(c.ClientIP())))
}

// ClassifyClientSource categorizes the IP origin.
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
