package goble

import (
	"sort"

	"github.com/srg/soilsense/internal/bledb"
	"github.com/srg/soilsense/internal/device"
)

// BLEService is a discovered GATT service with its characteristics keyed by
// normalized UUID.
type BLEService struct {
	uuid            string
	knownName       string
	characteristics map[string]*BLECharacteristic
}

// NewBLEService builds a service entry for a raw UUID as reported by the
// adapter. The stored UUID is normalized; the raw form is used for the
// assigned-name lookup.
func NewBLEService(rawUUID string) *BLEService {
	return &BLEService{
		uuid:            device.NormalizeUUID(rawUUID),
		knownName:       bledb.LookupService(rawUUID),
		characteristics: make(map[string]*BLECharacteristic),
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

// addCharacteristic registers a characteristic under its normalized UUID.
// Duplicates reported by the adapter are ignored.
func (s *BLEService) addCharacteristic(uuid string, char *BLECharacteristic) {
	if _, ok := s.characteristics[uuid]; !ok {
		s.characteristics[uuid] = char
	}
}

// characteristic returns the characteristic with the given normalized UUID.
func (s *BLEService) characteristic(uuid string) (*BLECharacteristic, bool) {
	char, ok := s.characteristics[uuid]
	return char, ok
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, len(s.characteristics))
	for _, char := range s.characteristics {
		result = append(result, char)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}
