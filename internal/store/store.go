// Package store provides the device/plant configuration stores the dosing
// and calibration engines read and write. Storage is an injected interface;
// the engines never assume a particular backend.
package store

import (
	"sync"

	"github.com/plantio/autowater/internal/model/entities"
)

// PumpStore is the device-configuration boundary for pumps. Calibration data
// is embedded in the pump record and rewritten atomically per operation.
type PumpStore interface {
	GetPump(pumpID string) (entities.Pump, bool)
	SaveCalibration(pumpID string, data *entities.PumpCalibrationData) bool
	ListPumps(unitID *int) []entities.Pump
}

// PlantStore exposes the plant fields the dosing calculator reads.
type PlantStore interface {
	GetPlant(plantID string) (entities.Plant, bool)
}

// MemoryPumpStore is a mutex-guarded in-memory PumpStore, used in tests and
// as the cache layer of the file store.
type MemoryPumpStore struct {
	mu    sync.RWMutex
	pumps map[string]entities.Pump
}

func NewMemoryPumpStore(pumps ...entities.Pump) *MemoryPumpStore {
	m := &MemoryPumpStore{pumps: make(map[string]entities.Pump, len(pumps))}
	for _, p := range pumps {
		m.pumps[p.ID] = p
	}
	return m
}

func (m *MemoryPumpStore) GetPump(pumpID string) (entities.Pump, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pumps[pumpID]
	return p, ok
}

func (m *MemoryPumpStore) SaveCalibration(pumpID string, data *entities.PumpCalibrationData) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pumps[pumpID]
	if !ok {
		return false
	}
	p.Calibration = data
	m.pumps[pumpID] = p
	return true
}

func (m *MemoryPumpStore) ListPumps(unitID *int) []entities.Pump {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entities.Pump, 0, len(m.pumps))
	for _, p := range m.pumps {
		if unitID != nil && p.UnitID != *unitID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Put inserts or replaces a pump record.
func (m *MemoryPumpStore) Put(p entities.Pump) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pumps[p.ID] = p
}

// MemoryPlantStore is a fixed in-memory PlantStore.
type MemoryPlantStore struct {
	mu     sync.RWMutex
	plants map[string]entities.Plant
}

func NewMemoryPlantStore(plants ...entities.Plant) *MemoryPlantStore {
	m := &MemoryPlantStore{plants: make(map[string]entities.Plant, len(plants))}
	for _, p := range plants {
		m.plants[p.ID] = p
	}
	return m
}

func (m *MemoryPlantStore) GetPlant(plantID string) (entities.Plant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plants[plantID]
	return p, ok
}
