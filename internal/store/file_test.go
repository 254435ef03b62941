package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plantio/autowater/internal/model/entities"
)

func writeTempJSON(t *testing.T, name string, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFilePumpStoreRoundTrip(t *testing.T) {
	path := writeTempJSON(t, "pumps.json", []map[string]any{
		{"id": "p1", "unit_id": 2, "actuator_type": "pump", "gpio_pin": 17},
		{"id": "fan1", "actuator_type": "fan"},
	})

	st, err := NewFilePumpStore(path)
	if err != nil {
		t.Fatalf("NewFilePumpStore: %v", err)
	}

	p, ok := st.GetPump("p1")
	if !ok || p.UnitID != 2 || p.GPIOPin != 17 {
		t.Fatalf("GetPump = %+v, %v", p, ok)
	}

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	data := &entities.PumpCalibrationData{
		FlowRateMlPerSecond:     3.2,
		CalibrationVolumeML:     96,
		CalibrationDurationSecs: 30,
		CalibratedAt:            at,
		Confidence:              1.0,
	}
	data.PushHistory(entities.CalibrationHistoryEntry{
		FlowRateMlPerSecond: 3.2,
		MeasuredVolumeML:    96,
		DurationSeconds:     30,
		CalibratedAt:        at,
		Confidence:          1.0,
		Method:              entities.MethodManual,
	})
	if !st.SaveCalibration("p1", data) {
		t.Fatal("SaveCalibration refused")
	}

	// A fresh store must read the calibration back from disk.
	st2, err := NewFilePumpStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	p2, ok := st2.GetPump("p1")
	if !ok || p2.Calibration == nil {
		t.Fatalf("calibration not persisted: %+v", p2)
	}
	if p2.Calibration.FlowRateMlPerSecond != 3.2 {
		t.Errorf("flow = %v, want 3.2", p2.Calibration.FlowRateMlPerSecond)
	}
	if len(p2.Calibration.History) != 1 || p2.Calibration.History[0].Method != entities.MethodManual {
		t.Errorf("history = %+v", p2.Calibration.History)
	}
}

func TestFilePumpStoreLegacyAliases(t *testing.T) {
	path := writeTempJSON(t, "pumps.json", []map[string]any{
		{"id": "p1", "type": "pump", "unit_id": "4"},
	})

	st, err := NewFilePumpStore(path)
	if err != nil {
		t.Fatalf("NewFilePumpStore: %v", err)
	}
	p, ok := st.GetPump("p1")
	if !ok {
		t.Fatal("pump not loaded")
	}
	if !entities.IsPump(p.ActuatorType) {
		t.Errorf("legacy type alias not honored: %+v", p)
	}
	if p.UnitID != 4 {
		t.Errorf("string unit id not parsed: %d", p.UnitID)
	}
}

func TestFilePumpStoreRejectsRecordWithoutID(t *testing.T) {
	path := writeTempJSON(t, "pumps.json", []map[string]any{
		{"actuator_type": "pump"},
	})

	if _, err := NewFilePumpStore(path); err == nil {
		t.Fatal("expected an error for a pump record without id")
	}
}

func TestFilePumpStoreSaveUnknownPump(t *testing.T) {
	path := writeTempJSON(t, "pumps.json", []map[string]any{
		{"id": "p1", "actuator_type": "pump"},
	})
	st, err := NewFilePumpStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.SaveCalibration("ghost", &entities.PumpCalibrationData{}) {
		t.Error("saving calibration for an unknown pump must fail")
	}
}

func TestFilePlantStore(t *testing.T) {
	path := writeTempJSON(t, "plants.json", []entities.Plant{
		{ID: "basil-1", PlantType: "herb", PotSizeLiters: 5, GrowingMedium: "coco", GrowthStage: "flowering"},
	})

	st, err := NewFilePlantStore(path)
	if err != nil {
		t.Fatalf("NewFilePlantStore: %v", err)
	}
	p, ok := st.GetPlant("basil-1")
	if !ok || p.PlantType != "herb" || p.PotSizeLiters != 5 {
		t.Fatalf("GetPlant = %+v, %v", p, ok)
	}
	if _, ok := st.GetPlant("ghost"); ok {
		t.Error("unknown plant must not be found")
	}
}

func TestMemoryPumpStoreListFilter(t *testing.T) {
	st := NewMemoryPumpStore(
		entities.Pump{ID: "a", UnitID: 1, ActuatorType: "pump"},
		entities.Pump{ID: "b", UnitID: 2, ActuatorType: "pump"},
		entities.Pump{ID: "c", UnitID: 1, ActuatorType: "pump"},
	)

	if got := len(st.ListPumps(nil)); got != 3 {
		t.Errorf("unfiltered list len = %d, want 3", got)
	}
	unit := 1
	if got := len(st.ListPumps(&unit)); got != 2 {
		t.Errorf("unit 1 list len = %d, want 2", got)
	}
}
