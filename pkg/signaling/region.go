package signaling

import (
	"sort"
	"strings"
)

// DefaultChannel is the global presence channel joined when the region
// is unknown or unset.
const DefaultChannel = "presence-global"

// regionChannels maps a region to its presence channel.
var regionChannels = map[string]string{
	"us":   "presence-us",
	"eu":   "presence-eu",
	"asia": "presence-asia",
}

// ChannelForRegion resolves the presence channel for a region. Unknown
// regions fall back to the global channel.
func ChannelForRegion(region string) string {
	region = strings.ToLower(strings.TrimSpace(region))
	if ch, ok := regionChannels[region]; ok {
		return ch
	}
	return DefaultChannel
}

// Regions lists the regions with a dedicated presence channel, sorted.
func Regions() []string {
	out := make([]string, 0, len(regionChannels))
	for r := range regionChannels {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
