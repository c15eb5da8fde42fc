package ingest

import (
	"regexp"
	"strings"
)

// UnknownDevice is the device code used when nothing identifies the camera.
const UnknownDevice = "Unknown"

const maxDeviceCodeLen = 50

// DeviceIdentifier maps a set of metadata field values to a device code.
// Every field must match for the identifier to apply.
type DeviceIdentifier struct {
	Code   string
	Fields map[string]string
}

// DeviceRules is the device configuration consumed by the resolver.
// Identifiers are tried in slice order.
type DeviceRules struct {
	Identifiers []DeviceIdentifier
	Mappings    map[string]string
}

var (
	manufacturerPrefixes = []string{
		"NIKON CORPORATION", "NIKON", "Canon", "Sony", "Fujifilm",
		"Olympus", "Panasonic", "Leica", "DJI",
	}
	invalidPathChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	separatorRuns    = regexp.MustCompile(`[\s_]+`)
)

// DeviceResolver maps metadata to a folder-safe device code.
type DeviceResolver struct {
	rules DeviceRules
	lower map[string]string
}

func NewDeviceResolver(rules DeviceRules) *DeviceResolver {
	lower := make(map[string]string, len(rules.Mappings))
	for model := range rules.Mappings {
		key := strings.ToLower(model)
		// first wins so the lookup does not depend on map order
		if existing, ok := lower[key]; !ok || model < existing {
			lower[key] = model
		}
	}
	return &DeviceResolver{rules: rules, lower: lower}
}

// Resolve returns the device code for md. It never returns an empty string.
func (r *DeviceResolver) Resolve(md Metadata) string {
	for _, id := range r.rules.Identifiers {
		if id.Code != "" && matchesAll(md, id.Fields) {
			return id.Code
		}
	}

	model := md.CameraModel()
	if model == "" {
		return UnknownDevice
	}
	if code, ok := r.rules.Mappings[model]; ok {
		return code
	}
	if original, ok := r.lower[strings.ToLower(model)]; ok {
		return r.rules.Mappings[original]
	}

	if code := SanitizeDeviceName(model); code != "" {
		return code
	}
	return UnknownDevice
}

func matchesAll(md Metadata, fields map[string]string) bool {
	if len(fields) == 0 {
		return false
	}
	for field, want := range fields {
		got, ok := md.Get(field)
		if !ok {
			return false
		}
		if !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}

// SanitizeDeviceName turns a camera model string into a folder name.
func SanitizeDeviceName(model string) string {
	name := strings.TrimSpace(model)
	for _, prefix := range manufacturerPrefixes {
		if len(name) > len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	name = invalidPathChars.ReplaceAllString(name, "_")
	name = separatorRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if runes := []rune(name); len(runes) > maxDeviceCodeLen {
		name = strings.TrimRight(string(runes[:maxDeviceCodeLen]), "_")
	}
	return name
}
