package pipeline

import (
	"fmt"

	"hydroinvert/internal/models"
	"hydroinvert/pkg/forward"
	"hydroinvert/pkg/spectral"
)

// LandReflectance fills simulated pixels that are not water.
const LandReflectance = 0.25

// Simulate returns a cube of modeled reflectance sampled at the sensor
// bands. truth gives the concentrations of each pixel; a nil map marks land,
// which gets a flat LandReflectance spectrum.
func Simulate(model *forward.Model, bands []float64, rows, cols int, truth func(row, col int) map[string]float64) (*models.Cube, error) {
	sensor, err := spectral.NewGrid(bands)
	if err != nil {
		return nil, fmt.Errorf("pipeline: sensor bands: %w", err)
	}
	grid := model.IOPModel().Grid()
	land := make([]float64, sensor.Len())
	for i := range land {
		land[i] = LandReflectance
	}

	cube := models.NewCube(rows, cols, bands)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			params := truth(i, j)
			if params == nil {
				cube.SetPixel(i, j, land)
				continue
			}
			rrs, err := model.Forward(params)
			if err != nil {
				return nil, fmt.Errorf("pipeline: pixel (%d, %d): %w", i, j, err)
			}
			px, err := spectral.Resample(rrs, grid, sensor, spectral.Linear)
			if err != nil {
				return nil, err
			}
			cube.SetPixel(i, j, px)
		}
	}
	return cube, nil
}
