package router

import (
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClientIPExtractor decides what c.RealIP() returns, and with it the network
// part of every rate-limit key. Without trusted proxies forwarding headers are
// ignored. With them, X-Forwarded-For is walked from the right and the first
// address outside the trusted ranges wins.
func ClientIPExtractor(trustedProxies []string, logger *slog.Logger) echo.IPExtractor {
	ranges := parseProxyRanges(trustedProxies, logger)
	if len(ranges) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, r := range ranges {
		opts = append(opts, echo.TrustIPRange(r))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func parseProxyRanges(entries []string, logger *slog.Logger) []*net.IPNet {
	var out []*net.IPNet
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			if ip := net.ParseIP(entry); ip != nil {
				bits := 128
				if ip.To4() != nil {
					bits = 32
				}
				entry += "/" + strconv.Itoa(bits)
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn("ignoring invalid trusted proxy", "entry", entry, "err", err)
			continue
		}
		out = append(out, ipNet)
	}
	return out
}
