package forward

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// CoefficientFile is the YAML layout of a polynomial coefficient table:
// one exponent pair per term and one coefficient row per band.
type CoefficientFile struct {
	Description  string       `yaml:"description,omitempty"`
	Wavelengths  []float64    `yaml:"wavelengths,omitempty"`
	Powers       [][2]float64 `yaml:"powers"`
	Coefficients [][]float64  `yaml:"coefficients"`
}

// Polynomial builds the polynomial described by the file.
func (f *CoefficientFile) Polynomial() (*Polynomial, error) {
	if len(f.Coefficients) == 0 {
		return nil, fmt.Errorf("%w: no coefficient rows", ErrDimensionMismatch)
	}
	if len(f.Wavelengths) > 0 && len(f.Wavelengths) != len(f.Coefficients) {
		return nil, fmt.Errorf("%w: %d wavelengths for %d coefficient rows",
			ErrDimensionMismatch, len(f.Wavelengths), len(f.Coefficients))
	}
	coef := mat.NewDense(len(f.Coefficients), len(f.Powers), nil)
	for i, row := range f.Coefficients {
		if len(row) != len(f.Powers) {
			return nil, fmt.Errorf("%w: row %d has %d coefficients for %d terms",
				ErrDimensionMismatch, i, len(row), len(f.Powers))
		}
		coef.SetRow(i, row)
	}
	return NewPolynomial(coef, f.Powers)
}

// LoadCoefficients reads a YAML coefficient file.
func LoadCoefficients(path string) (*CoefficientFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading coefficient file: %w", err)
	}
	var f CoefficientFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error parsing coefficient file: %w", err)
	}
	return &f, nil
}

// SaveCoefficients writes the coefficient table of p as YAML.
func SaveCoefficients(path string, p *Polynomial, wavelengths []float64, description string) error {
	f := CoefficientFile{
		Description: description,
		Wavelengths: wavelengths,
		Powers:      p.powers,
	}
	for i := 0; i < p.Bands(); i++ {
		f.Coefficients = append(f.Coefficients, mat.Row(nil, i, p.coef))
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("error marshaling coefficients: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing coefficient file: %w", err)
	}
	return nil
}
