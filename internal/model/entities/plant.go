package entities

// Plant holds the slice of plant data the dosing engine reads. The full
// plant record (species, notes, photos...) lives with the plant service;
// only these fields matter for volume computation.
type Plant struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	PlantType     string  `json:"plant_type"`
	PotSizeLiters float64 `json:"pot_size_liters"`
	GrowingMedium string  `json:"growing_medium"`
	GrowthStage   string  `json:"growth_stage"`
	UnitID        int     `json:"unit_id,omitempty"`
	PumpID        string  `json:"pump_id,omitempty"`
}
