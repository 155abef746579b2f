package models

// Mask selects the pixels to invert: 1 keeps a pixel, 0 skips it.
type Mask struct {
	Rows, Cols int
	Data       []uint8
}

// NewMask returns a mask with every pixel skipped.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]uint8, rows*cols)}
}

// FullMask returns a mask keeping every pixel.
func FullMask(rows, cols int) *Mask {
	m := NewMask(rows, cols)
	for i := range m.Data {
		m.Data[i] = 1
	}
	return m
}

// Keep reports whether (row, col) is selected.
func (m *Mask) Keep(row, col int) bool { return m.Data[row*m.Cols+col] != 0 }

// Set selects or deselects (row, col).
func (m *Mask) Set(row, col int, keep bool) {
	var v uint8
	if keep {
		v = 1
	}
	m.Data[row*m.Cols+col] = v
}

// Count returns the number of kept pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
