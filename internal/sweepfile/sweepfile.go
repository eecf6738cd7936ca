// Package sweepfile loads a sweep definition from YAML: a flat list of
// parameter points, each a per-pump volume vector, a feed speed, and a
// repeat count, mirroring internal/programfile's conversion idiom for
// the sweep domain.
package sweepfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enose-rig/enosectl/internal/program"
	"github.com/enose-rig/enosectl/internal/sweep"
)

type doc struct {
	Points []pointDoc `yaml:"points"`
}

type pointDoc struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name"`
	PumpVolumesML []float64 `yaml:"pump_volumes_ml"`
	SpeedMMPerS   float64   `yaml:"speed_mm_s"`
	Cycles        int       `yaml:"cycles"`
}

// Load reads path and converts it into the ordered list of ParamSets a
// sweep run executes in sequence.
func Load(path string) ([]sweep.ParamSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file: %w", err)
	}

	var d doc
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse sweep yaml: %w", err)
	}

	points := make([]sweep.ParamSet, 0, len(d.Points))
	for i, pd := range d.Points {
		if len(pd.PumpVolumesML) > program.PumpCount {
			return nil, fmt.Errorf("sweep point %d: %d pump volumes exceeds the %d available pumps", i, len(pd.PumpVolumesML), program.PumpCount)
		}

		id := pd.ID
		if id == "" {
			id = sweep.NewParamSetID()
		}

		cycles := pd.Cycles
		if cycles <= 0 {
			cycles = 1
		}

		var volumes [program.PumpCount]float64
		copy(volumes[:], pd.PumpVolumesML)

		points = append(points, sweep.ParamSet{
			ID:            id,
			Name:          pd.Name,
			PumpVolumesML: volumes,
			SpeedMMPerS:   pd.SpeedMMPerS,
			Cycles:        cycles,
		})
	}

	return points, nil
}
