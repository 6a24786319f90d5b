// Package bledb provides UUID normalization and name lookup for the GATT
// services and characteristics this tool cares about. The table is
// hand-maintained: it covers the Bluetooth SIG assigned numbers the probe
// exposes plus the vendor-specific soil characteristics.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format
// (lowercase, no dashes). Strips an optional 0x prefix and surrounding braces.
// Full 128-bit UUIDs in the Bluetooth SIG base format are reduced to their
// 16-bit short form.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	// 0000xxxx + SIG base suffix -> xxxx
	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}

// Service names, keyed by normalized UUID.
var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180a": "Device Information",
	"180f": "Battery",
	"181a": "Environmental Sensing",
}

// Characteristic names, keyed by normalized UUID.
var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a19": "Battery Level",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
	// Vendor-specific soil pH characteristic exposed by the SoilSense probe.
	"7e4e170138f447a9b1ce61a8a4f35d5b": "Soil pH",
}

// LookupService returns the known name for a service UUID, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name for a characteristic UUID,
// or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}
