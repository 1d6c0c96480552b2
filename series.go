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
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// table is a set of time series stored in a NetCDF file. Each
// variable has either dimensions (time) or (time, col).
type table struct {
	time  []time.Time
	names []string // column names; may be nil
	vars  map[string]*sparse.DenseArray
}

// loadTable reads a table whose second dimension is colDim. If
// namesAttr is not empty, the column names are read from the global
// attribute of that name, separated by commas.
func loadTable(rw cdf.ReaderWriterAt, colDim, namesAttr string) (*table, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	t := &table{vars: make(map[string]*sparse.DenseArray)}
	if t.time, err = readTime(f); err != nil {
		return nil, err
	}
	for _, v := range f.Header.Variables() {
		if v == "time" {
			continue
		}
		dims := f.Header.Dimensions(v)
		switch {
		case len(dims) == 1 && dims[0] == "time":
		case len(dims) == 2 && dims[0] == "time" && dims[1] == colDim:
		default:
			continue
		}
		if t.vars[v], err = readVar(f, v); err != nil {
			return nil, err
		}
	}
	if namesAttr != "" {
		if s := stringAttribute(f, namesAttr); s != "" {
			t.names = strings.Split(s, ",")
		}
	}
	return t, nil
}

// write writes t to w, with ncol columns along colDim.
func (t *table) write(w *os.File, colDim string, ncol int, namesAttr string) error {
	h := cdf.NewHeader([]string{"time", colDim}, []int{len(t.time), ncol})
	if namesAttr != "" {
		h.AddAttribute("", namesAttr, strings.Join(t.names, ","))
	}
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(t.vars))
	for n := range t.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if len(t.vars[n].Shape) == 1 {
			h.AddVariable(n, []string{"time"}, []float64{0})
		} else {
			h.AddVariable(n, []string{"time", colDim}, []float64{0})
		}
	}
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return err
	}
	if err = writeVar(f, "time", timeArray(t.time)); err != nil {
		return err
	}
	for _, n := range names {
		if err = writeVar(f, n, t.vars[n]); err != nil {
			return fmt.Errorf("tef: writing variable %s to netcdf file: %v", n, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

// column returns the index of name in names.
func column(names []string, name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// sumColumns returns the sum over the named columns of data at each
// time. A name that is not a column is reported wrapped in unknown.
func sumColumns(data *sparse.DenseArray, names, want []string, unknown error) ([]float64, error) {
	nt := data.Shape[0]
	o := make([]float64, nt)
	for _, w := range want {
		c, ok := column(names, w)
		if !ok {
			return nil, fmt.Errorf("%w: %s", unknown, w)
		}
		for t := 0; t < nt; t++ {
			o[t] += data.Get(t, c)
		}
	}
	return o, nil
}

// LoadBulk reads binned section transport from a NetCDF file with
// dimensions time and bin, containing the variables time, q, any
// number of tracers and optionally qnet.
func LoadBulk(rw cdf.ReaderWriterAt) (*Bulk, error) {
	t, err := loadTable(rw, "bin", "")
	if err != nil {
		return nil, fmt.Errorf("tef.LoadBulk: %v", err)
	}
	q, ok := t.vars["q"]
	if !ok {
		return nil, fmt.Errorf("tef.LoadBulk: variable q not in file")
	}
	toDense := func(d *sparse.DenseArray) *mat.Dense {
		return mat.NewDense(d.Shape[0], d.Shape[1], d.Elements)
	}
	b := &Bulk{Time: t.time, Q: toDense(q), Tracers: make(map[string]*mat.Dense)}
	for n, d := range t.vars {
		switch {
		case n == "q":
		case n == "qnet":
			b.QNet = d.Elements
		case len(d.Shape) == 2:
			b.Tracers[n] = toDense(d)
		}
	}
	return b, nil
}

// Write writes b to NetCDF file w.
func (b *Bulk) Write(w *os.File) error {
	fromDense := func(m *mat.Dense) *sparse.DenseArray {
		r, c := m.Dims()
		o := sparse.ZerosDense(r, c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				o.Set(m.At(i, j), i, j)
			}
		}
		return o
	}
	_, nb := b.Q.Dims()
	t := &table{time: b.Time, vars: map[string]*sparse.DenseArray{"q": fromDense(b.Q)}}
	for n, c := range b.Tracers {
		t.vars[n] = fromDense(c)
	}
	if b.QNet != nil {
		qnet := sparse.ZerosDense(len(b.QNet))
		copy(qnet.Elements, b.QNet)
		t.vars["qnet"] = qnet
	}
	return t.write(w, "bin", nb, "")
}

// SegmentSeries holds hourly time series of the volume of each segment
// and the volume-mean tracer concentrations in it.
type SegmentSeries struct {
	Time     []time.Time
	Segments []string

	// Volume is the segment volume [m3], one row per time and
	// one column per segment.
	Volume *sparse.DenseArray

	// Tracers are volume-mean concentrations with the same shape as Volume.
	Tracers map[string]*sparse.DenseArray
}

// LoadSegmentSeries reads segment time series from a NetCDF file
// with dimensions time and seg.
func LoadSegmentSeries(rw cdf.ReaderWriterAt) (*SegmentSeries, error) {
	t, err := loadTable(rw, "seg", "segments")
	if err != nil {
		return nil, fmt.Errorf("tef.LoadSegmentSeries: %v", err)
	}
	s := &SegmentSeries{Time: t.time, Segments: t.names, Tracers: make(map[string]*sparse.DenseArray)}
	for n, d := range t.vars {
		if n == "volume" {
			s.Volume = d
		} else if len(d.Shape) == 2 {
			s.Tracers[n] = d
		}
	}
	if s.Volume == nil {
		return nil, fmt.Errorf("tef.LoadSegmentSeries: variable volume not in file")
	}
	if len(s.Segments) != s.Volume.Shape[1] {
		return nil, fmt.Errorf("tef.LoadSegmentSeries: %d segment names for %d segments", len(s.Segments), s.Volume.Shape[1])
	}
	return s, nil
}

// Write writes s to NetCDF file w.
func (s *SegmentSeries) Write(w *os.File) error {
	t := &table{time: s.Time, names: s.Segments, vars: map[string]*sparse.DenseArray{"volume": s.Volume}}
	for n, d := range s.Tracers {
		t.vars[n] = d
	}
	return t.write(w, "seg", len(s.Segments), "segments")
}

// TotalVolume returns the combined volume of the segments with the given
// IDs at each time.
func (s *SegmentSeries) TotalVolume(ids []string) ([]float64, error) {
	return sumColumns(s.Volume, s.Segments, ids, ErrUnknownSegment)
}

// RiverSeries holds daily time series of river transport.
type RiverSeries struct {
	Time   []time.Time
	Rivers []string

	// Transport is the river flow [m3/s], one row per time and one
	// column per river.
	Transport *sparse.DenseArray
}

// LoadRiverSeries reads river time series from a NetCDF file with
// dimensions time and riv.
func LoadRiverSeries(rw cdf.ReaderWriterAt) (*RiverSeries, error) {
	t, err := loadTable(rw, "riv", "rivers")
	if err != nil {
		return nil, fmt.Errorf("tef.LoadRiverSeries: %v", err)
	}
	r := &RiverSeries{Time: t.time, Rivers: t.names, Transport: t.vars["transport"]}
	if r.Transport == nil {
		return nil, fmt.Errorf("tef.LoadRiverSeries: variable transport not in file")
	}
	if len(r.Rivers) != r.Transport.Shape[1] {
		return nil, fmt.Errorf("tef.LoadRiverSeries: %d river names for %d rivers", len(r.Rivers), r.Transport.Shape[1])
	}
	return r, nil
}

// Write writes r to NetCDF file w.
func (r *RiverSeries) Write(w *os.File) error {
	t := &table{time: r.Time, names: r.Rivers, vars: map[string]*sparse.DenseArray{"transport": r.Transport}}
	return t.write(w, "riv", len(r.Rivers), "rivers")
}

// TotalTransport returns the combined flow of the named rivers at each time.
func (r *RiverSeries) TotalTransport(names []string) ([]float64, error) {
	return sumColumns(r.Transport, r.Rivers, names, ErrUnknownRiver)
}
