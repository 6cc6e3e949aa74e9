package inventory

import "regexp"

// ipv4Pattern matches four dot-separated groups of one to three digits.
// Octet ranges are not checked; the registry metadata is loose and a
// pattern match is all the extractor promises.
var ipv4Pattern = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Extract derives the normalised DeviceInfo for a registry record.
//
// Precedence:
//   - DisplayName: NameByUser, then Name, then Unknown
//   - MAC: first connection of type "mac" (case-sensitive), then NotFound
//   - IP: first connection of type "ip", then the first IPv4-shaped substring
//     of ConfigurationURL, then NotFound
//   - Manufacturer, Model: the value, then Unknown
//   - ConfigURL: ConfigurationURL, then NotFound
//
// Extract is total: any record, however sparse, yields a fully populated
// DeviceInfo. Entities are left empty; see Snapshot.Info.
func Extract(rec DeviceRecord) DeviceInfo {
	return DeviceInfo{
		ID:           rec.ID,
		DisplayName:  DisplayName(rec),
		Manufacturer: orDefault(rec.Manufacturer, Unknown),
		Model:        orDefault(rec.Model, Unknown),
		MAC:          orDefault(firstConnection(rec.Connections, ConnectionMAC), NotFound),
		IP:           extractIP(rec),
		ConfigURL:    orDefault(rec.ConfigurationURL, NotFound),
	}
}

// DisplayName returns the human-facing name used for matching.
func DisplayName(rec DeviceRecord) string {
	if rec.NameByUser != "" {
		return rec.NameByUser
	}
	if rec.Name != "" {
		return rec.Name
	}
	return Unknown
}

// IPFromURL returns the first IPv4-shaped substring of a URL, or "".
func IPFromURL(rawURL string) string {
	return ipv4Pattern.FindString(rawURL)
}

func extractIP(rec DeviceRecord) string {
	if ip := firstConnection(rec.Connections, ConnectionIP); ip != "" {
		return ip
	}
	if ip := IPFromURL(rec.ConfigurationURL); ip != "" {
		return ip
	}
	return NotFound
}

// firstConnection returns the value of the first pair whose type equals kind.
// Later pairs of the same kind are never consulted, even when the first
// value is empty.
func firstConnection(pairs []Pair, kind string) string {
	for _, p := range pairs {
		if p.Type == kind {
			return p.Value
		}
	}
	return ""
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
