/*
Copyright © 2024 the TEF authors.
This file is part of TEF.

TEF is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TEF is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TEF.  If not, see <http://www.gnu.org/licenses/>.
*/

package tef

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
)

// JI is an index on the rho grid: row J (south to north) and
// column I (west to east).
type JI struct {
	J, I int
}

func (ji JI) String() string { return fmt.Sprintf("(%d,%d)", ji.J, ji.I) }

// less reports whether ji comes before o in row-major order.
func (ji JI) less(o JI) bool {
	if ji.J != o.J {
		return ji.J < o.J
	}
	return ji.I < o.I
}

// Grid is the rho grid of a ROMS model. A Grid is never modified
// after it is created.
type Grid struct {
	NJ, NI int

	// Mask is true over water. It is stored row-major, so
	// the value for (j, i) is Mask[j*NI+i].
	Mask []bool

	// H is the bathymetric depth [m], and Lon and Lat are
	// the coordinates of the rho points. All three have
	// shape (NJ, NI) and any of them may be nil.
	H, Lon, Lat *sparse.DenseArray
}

// NewGrid creates a grid from a water mask indexed as mask[j][i].
func NewGrid(mask [][]bool) (*Grid, error) {
	if len(mask) == 0 || len(mask[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	g := &Grid{NJ: len(mask), NI: len(mask[0])}
	g.Mask = make([]bool, g.NJ*g.NI)
	for j, row := range mask {
		if len(row) != g.NI {
			return nil, ErrNonRectangular
		}
		copy(g.Mask[j*g.NI:(j+1)*g.NI], row)
	}
	return g, nil
}

// InBounds reports whether ji is inside of the grid.
func (g *Grid) InBounds(ji JI) bool {
	return ji.J >= 0 && ji.J < g.NJ && ji.I >= 0 && ji.I < g.NI
}

// Water reports whether ji is inside of the grid and is a water cell.
func (g *Grid) Water(ji JI) bool {
	return g.InBounds(ji) && g.Mask[g.index(ji)]
}

func (g *Grid) index(ji JI) int { return ji.J*g.NI + ji.I }

func (g *Grid) ji(index int) JI { return JI{J: index / g.NI, I: index % g.NI} }

// MaskRho returns the water mask as an array of ones (water)
// and zeros (land).
func (g *Grid) MaskRho() *sparse.DenseArray {
	o := sparse.ZerosDense(g.NJ, g.NI)
	for k, w := range g.Mask {
		if w {
			o.Elements[k] = 1
		}
	}
	return o
}

// MaskU returns the mask on the u grid, which is water only where
// the rho points on both sides are water.
func (g *Grid) MaskU() *sparse.DenseArray {
	return g.staggerMask(0, 1)
}

// MaskV returns the mask on the v grid, which is water only where
// the rho points on both sides are water.
func (g *Grid) MaskV() *sparse.DenseArray {
	return g.staggerMask(1, 0)
}

// MaskPsi returns the mask on the psi grid, which is water only where
// all four surrounding rho points are water.
func (g *Grid) MaskPsi() *sparse.DenseArray {
	return g.staggerMask(1, 1)
}

// staggerMask returns a mask of shape (NJ-dj, NI-di) that is water
// wherever every rho point in the (dj+1)×(di+1) block is water.
func (g *Grid) staggerMask(dj, di int) *sparse.DenseArray {
	nj, ni := g.NJ-dj, g.NI-di
	if nj < 1 || ni < 1 {
		return sparse.ZerosDense(0)
	}
	o := sparse.ZerosDense(nj, ni)
	for j := 0; j < nj; j++ {
		for i := 0; i < ni; i++ {
			water := true
			for jj := j; jj <= j+dj; jj++ {
				for ii := i; ii <= i+di; ii++ {
					water = water && g.Mask[jj*g.NI+ii]
				}
			}
			if water {
				o.Set(1, j, i)
			}
		}
	}
	return o
}

// LoadGrid reads a ROMS grid from a NetCDF file. The variable
// mask_rho is required; h, lon_rho and lat_rho are read if they
// are present.
func LoadGrid(rw cdf.ReaderWriterAt) (*Grid, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("tef.LoadGrid: %v", err)
	}
	mask, err := readVar(f, "mask_rho")
	if err != nil {
		return nil, fmt.Errorf("tef.LoadGrid: %v", err)
	}
	if len(mask.Shape) != 2 {
		return nil, fmt.Errorf("tef.LoadGrid: mask_rho has %d dimensions but should have 2", len(mask.Shape))
	}
	g := &Grid{NJ: mask.Shape[0], NI: mask.Shape[1]}
	if g.NJ == 0 || g.NI == 0 {
		return nil, ErrEmptyGrid
	}
	g.Mask = make([]bool, len(mask.Elements))
	for k, v := range mask.Elements {
		g.Mask[k] = v != 0
	}

	for name, dst := range map[string]**sparse.DenseArray{"h": &g.H, "lon_rho": &g.Lon, "lat_rho": &g.Lat} {
		if !hasVar(f, name) {
			continue
		}
		d, err := readVar(f, name)
		if err != nil {
			return nil, fmt.Errorf("tef.LoadGrid: %v", err)
		}
		if len(d.Shape) != 2 || d.Shape[0] != g.NJ || d.Shape[1] != g.NI {
			return nil, fmt.Errorf("tef.LoadGrid: %s has shape %v but mask_rho has shape %v", name, d.Shape, mask.Shape)
		}
		*dst = d
	}
	return g, nil
}

// WriteExtras writes the grid to w with the derived u, v and psi masks
// added. If minDepth > 0, depths shallower than minDepth are set
// to minDepth.
func (g *Grid) WriteExtras(w *os.File, minDepth float64) error {
	if g.NJ < 2 || g.NI < 2 {
		return fmt.Errorf("tef: grid of shape (%d, %d) is too small for staggered masks", g.NJ, g.NI)
	}
	h := cdf.NewHeader(
		[]string{"eta_rho", "xi_rho", "eta_u", "xi_u", "eta_v", "xi_v", "eta_psi", "xi_psi"},
		[]int{g.NJ, g.NI, g.NJ, g.NI - 1, g.NJ - 1, g.NI, g.NJ - 1, g.NI - 1})
	h.AddAttribute("", "comment", "ROMS grid with derived u, v and psi masks")
	h.AddAttribute("", "spherical", "T")

	vars := []struct {
		name string
		dims []string
		data *sparse.DenseArray
	}{
		{"mask_rho", []string{"eta_rho", "xi_rho"}, g.MaskRho()},
		{"mask_u", []string{"eta_u", "xi_u"}, g.MaskU()},
		{"mask_v", []string{"eta_v", "xi_v"}, g.MaskV()},
		{"mask_psi", []string{"eta_psi", "xi_psi"}, g.MaskPsi()},
	}
	if g.H != nil {
		depth := g.H.Copy()
		if minDepth > 0 {
			for k, v := range depth.Elements {
				if v <= minDepth {
					depth.Elements[k] = minDepth
				}
			}
		}
		vars = append(vars, struct {
			name string
			dims []string
			data *sparse.DenseArray
		}{"h", []string{"eta_rho", "xi_rho"}, depth})
	}
	for _, name := range []string{"lon_rho", "lat_rho"} {
		d := g.Lon
		if name == "lat_rho" {
			d = g.Lat
		}
		if d == nil {
			continue
		}
		vars = append(vars, struct {
			name string
			dims []string
			data *sparse.DenseArray
		}{name, []string{"eta_rho", "xi_rho"}, d})
	}

	for _, v := range vars {
		h.AddVariable(v.name, v.dims, []float64{0})
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return fmt.Errorf("tef: writing grid: %v", err)
	}
	for _, v := range vars {
		if err = writeVar(f, v.name, v.data); err != nil {
			return fmt.Errorf("tef: writing variable %s to netcdf file: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// lonAxis returns the longitudes of the first row of rho points.
func (g *Grid) lonAxis() []float64 {
	o := make([]float64, g.NI)
	for i := range o {
		o[i] = g.Lon.Get(0, i)
	}
	return o
}

// latAxis returns the latitudes of the first column of rho points.
func (g *Grid) latAxis() []float64 {
	o := make([]float64, g.NJ)
	for j := range o {
		o[j] = g.Lat.Get(j, 0)
	}
	return o
}

// Bounds returns the longitude-latitude extent of the rho points.
func (g *Grid) Bounds() (*geom.Bounds, error) {
	if g.Lon == nil || g.Lat == nil {
		return nil, fmt.Errorf("tef: grid has no lon_rho and lat_rho coordinates")
	}
	lon, lat := g.lonAxis(), g.latAxis()
	b := geom.NewBoundsPoint(geom.Point{X: lon[0], Y: lat[0]})
	b.Extend(geom.NewBoundsPoint(geom.Point{X: lon[len(lon)-1], Y: lat[len(lat)-1]}))
	return b, nil
}

// checkInside returns ErrOutOfBounds if (lon, lat) is outside of the grid.
func (g *Grid) checkInside(lon, lat float64) error {
	b, err := g.Bounds()
	if err != nil {
		return err
	}
	if !b.Overlaps(geom.Point{X: lon, Y: lat}.Bounds()) {
		return fmt.Errorf("%w: lon=%g lat=%g is outside of [%g, %g]×[%g, %g]",
			ErrOutOfBounds, lon, lat, b.Min.X, b.Max.X, b.Min.Y, b.Max.Y)
	}
	return nil
}

// nearestIndex returns the index of the value in vals closest to v.
func nearestIndex(vals []float64, v float64) int {
	best, dmin := 0, math.Inf(1)
	for i, x := range vals {
		if d := math.Abs(x - v); d < dmin {
			best, dmin = i, d
		}
	}
	return best
}

// MooringIndex returns the rho-grid index nearest to (lon, lat).
// ErrOutOfBounds is returned if the location is outside of the grid and
// ErrLand if the rho point is on land. If checkUV is true, the u and v
// points associated with the rho point must also be water.
func (g *Grid) MooringIndex(lon, lat float64, checkUV bool) (JI, error) {
	if err := g.checkInside(lon, lat); err != nil {
		return JI{}, err
	}
	ji := JI{J: nearestIndex(g.latAxis(), lat), I: nearestIndex(g.lonAxis(), lon)}
	if !g.Water(ji) {
		return ji, fmt.Errorf("%w: rho point %v", ErrLand, ji)
	}
	if checkUV {
		if !g.Water(JI{J: ji.J, I: ji.I + 1}) {
			return ji, fmt.Errorf("%w: u point %v", ErrLand, ji)
		}
		if !g.Water(JI{J: ji.J + 1, I: ji.I}) {
			return ji, fmt.Errorf("%w: v point %v", ErrLand, ji)
		}
	}
	return ji, nil
}
