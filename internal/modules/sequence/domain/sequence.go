package domain

import "strings"

// BuildSequence derives the task order for one session. The terminal task is
// always last and appears exactly once. Calling it twice with the same inputs
// yields the same sequence, so resume can recompute instead of trusting storage.
func BuildSequence(catalog Catalog, device DeviceClass, seed int32) []string {
	shuffled := Shuffle(catalog.TasksFor(device), seed)
	out := make([]string, 0, len(shuffled)+1)
	for _, code := range shuffled {
		if code == catalog.Terminal {
			continue
		}
		out = append(out, code)
	}
	return append(out, catalog.Terminal)
}

// Normalize repairs a stored sequence against the current catalog: duplicates
// and unknown codes are dropped and the terminal task is moved to the end.
func Normalize(catalog Catalog, sequence []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(sequence)+1)
	for _, code := range sequence {
		if code == catalog.Terminal || seen[code] {
			continue
		}
		if _, ok := catalog.Tasks[code]; !ok {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return append(out, catalog.Terminal)
}

// DeviceClassFromUserAgent classifies a browser user agent string.
func DeviceClassFromUserAgent(ua string) DeviceClass {
	lower := strings.ToLower(ua)
	for _, marker := range []string{"android", "iphone", "ipad", "ipod", "mobile"} {
		if strings.Contains(lower, marker) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

// ParseDeviceClass maps free text onto a known device class.
func ParseDeviceClass(raw string) DeviceClass {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mobile", "phone", "tablet":
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
