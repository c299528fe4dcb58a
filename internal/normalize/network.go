package normalize

import (
	"regexp"
)

var (
	bandwidthRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(gbps|gb/s|gbit|mbps|mb/s|mbit|megas?|mb|m|kbps|kb/s|kbit|kb|k)?\b`)
	latencyRe   = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(ms|mseg|milisegundos?|s|seg|segundos?)?\b`)
)

// ParseBandwidthMbps reads a link speed such as "50 Mbps", "1 Gbps" or
// "512 kbps". A bare number is taken as Mbps.
func ParseBandwidthMbps(raw string) (float64, bool) {
	m := bandwidthRe.FindStringSubmatch(Fold(raw))
	if m == nil {
		return 0, false
	}
	v, ok := parseDecimal(m[1])
	if !ok || v < 0 {
		return 0, false
	}
	switch m[2] {
	case "gbps", "gb/s", "gbit":
		v *= 1000
	case "kbps", "kb/s", "kbit", "kb", "k":
		v /= 1000
	}
	return v, true
}

// ParseLatencyMs reads a latency such as "35 ms" or "0.2 s".
func ParseLatencyMs(raw string) (float64, bool) {
	m := latencyRe.FindStringSubmatch(Fold(raw))
	if m == nil {
		return 0, false
	}
	v, ok := parseDecimal(m[1])
	if !ok || v < 0 {
		return 0, false
	}
	switch m[2] {
	case "s", "seg", "segundo", "segundos":
		v *= 1000
	}
	return v, true
}
