package store

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
)

// FilePumpStore keeps pump records in a JSON file, mirroring the whole list
// back to disk on every calibration save. Suits the human-paced interaction
// of calibration; last writer wins.
type FilePumpStore struct {
	mu    sync.Mutex
	path  string
	cache *MemoryPumpStore
}

func NewFilePumpStore(path string) (*FilePumpStore, error) {
	pumps, err := loadPumps(path)
	if err != nil {
		return nil, errors.Wrap(err, "load pumps")
	}
	return &FilePumpStore{path: path, cache: NewMemoryPumpStore(pumps...)}, nil
}

func (f *FilePumpStore) GetPump(pumpID string) (entities.Pump, bool) {
	return f.cache.GetPump(pumpID)
}

func (f *FilePumpStore) ListPumps(unitID *int) []entities.Pump {
	return f.cache.ListPumps(unitID)
}

func (f *FilePumpStore) SaveCalibration(pumpID string, data *entities.PumpCalibrationData) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.cache.SaveCalibration(pumpID, data) {
		return false
	}
	if err := f.flush(); err != nil {
		logrus.WithError(err).Errorf("pump store: flush after calibration of %s", pumpID)
		return false
	}
	return true
}

func (f *FilePumpStore) flush() error {
	pumps := f.cache.ListPumps(nil)
	b, err := json.MarshalIndent(pumps, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal pumps")
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return errors.Wrap(err, "write pumps file")
	}
	return errors.Wrap(os.Rename(tmp, f.path), "rename pumps file")
}

// loadPumps reads the pump list, tolerating field aliases from older
// provisioning files ("type" for "actuator_type", string unit ids).
func loadPumps(path string) ([]entities.Pump, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var recs []map[string]any
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}

	out := make([]entities.Pump, 0, len(recs))
	for _, rec := range recs {
		var p entities.Pump
		if v, ok := rec["id"].(string); ok {
			p.ID = v
		}
		if p.ID == "" {
			return nil, errors.New("pump record without id")
		}
		if v, ok := rec["name"].(string); ok {
			p.Name = v
		}
		if v, ok := rec["actuator_type"].(string); ok && v != "" {
			p.ActuatorType = v
		} else if v, ok := rec["type"].(string); ok {
			p.ActuatorType = v
		}
		p.UnitID = toInt(rec["unit_id"])
		p.GPIOPin = toInt(rec["gpio_pin"])

		if blob, ok := rec["calibration"]; ok && blob != nil {
			b, err := json.Marshal(blob)
			if err == nil {
				var cal entities.PumpCalibrationData
				if err := json.Unmarshal(b, &cal); err == nil {
					p.Calibration = &cal
				} else {
					logrus.Warnf("pump store: bad calibration blob for %s: %v", p.ID, err)
				}
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// FilePlantStore loads plant records once at startup; plants are managed by
// the upstream plant service, this store only reads them.
type FilePlantStore struct {
	cache *MemoryPlantStore
}

func NewFilePlantStore(path string) (*FilePlantStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read plants file")
	}
	var plants []entities.Plant
	if err := json.Unmarshal(raw, &plants); err != nil {
		return nil, errors.Wrap(err, "parse plants file")
	}
	return &FilePlantStore{cache: NewMemoryPlantStore(plants...)}, nil
}

func (f *FilePlantStore) GetPlant(plantID string) (entities.Plant, bool) {
	return f.cache.GetPlant(plantID)
}

// toInt converts ints, floats and numeric strings.
func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}
