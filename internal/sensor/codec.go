// Package sensor defines the SoilSense probe GATT layout and the value
// codecs for its characteristics.
package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DeviceName is the local name SoilSense probes advertise.
const DeviceName = "SoilSense"

// Probe GATT layout. Temperature and moisture ride on the standard
// Environmental Sensing service; pH has no assigned number and uses a
// vendor characteristic under the same service.
const (
	ServiceEnvironmental = "181a"
	CharTemperature      = "2a6e"
	CharMoisture         = "2a6f"
	CharPH               = "7e4e1701-38f4-47a9-b1ce-61a8a4f35d5b"
)

// DecodeTemperature decodes a Temperature characteristic value: sint16,
// little-endian, hundredths of a degree Celsius.
func DecodeTemperature(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("temperature value is %d bytes, need 2", len(data))
	}
	raw := int16(binary.LittleEndian.Uint16(data))
	return float64(raw) / 100.0, nil
}

// DecodeMoisture decodes a Humidity characteristic value: uint16,
// little-endian, hundredths of a percent. The probe reports volumetric soil
// moisture through this characteristic.
func DecodeMoisture(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("moisture value is %d bytes, need 2", len(data))
	}
	raw := binary.LittleEndian.Uint16(data)
	return float64(raw) / 100.0, nil
}

// DecodePH decodes the vendor pH characteristic: IEEE-754 float32,
// little-endian.
func DecodePH(data []byte) (float64, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("pH value is %d bytes, need 4", len(data))
	}
	bits := binary.LittleEndian.Uint32(data)
	v := math.Float32frombits(bits)
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return 0, fmt.Errorf("pH value is not finite")
	}
	return float64(v), nil
}

// EncodeTemperature is the inverse of DecodeTemperature. Used by simulated
// probes in tests.
func EncodeTemperature(celsius float64) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(int16(math.Round(celsius*100))))
	return buf
}

// EncodeMoisture is the inverse of DecodeMoisture.
func EncodeMoisture(percent float64) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(math.Round(percent*100)))
	return buf
}

// EncodePH is the inverse of DecodePH.
func EncodePH(ph float64) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(ph)))
	return buf
}
