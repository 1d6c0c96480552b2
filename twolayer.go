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
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Bulk holds the TEF transport through one section, binned by
// salinity, at each output time.
type Bulk struct {
	Time []time.Time

	// Q is the transport in each salinity bin [m3/s],
	// with one row per time and one column per bin.
	Q *mat.Dense

	// Tracers holds the transport-weighted tracer concentrations
	// in each bin, with the same shape as Q. It must include "salt".
	Tracers map[string]*mat.Dense

	// QNet is the net transport through the section [m3/s].
	// It may be nil.
	QNet []float64
}

// TwoLayerSeries holds two-layer TEF time series for one section.
// The sign convention is chosen so that Qin, the transport of the
// saltier layer, is positive.
type TwoLayerSeries struct {
	Time      []time.Time
	Qin, Qout []float64

	// In and Out hold the transport-weighted concentration of
	// each tracer in the inflowing and outflowing layers.
	In, Out map[string][]float64

	// InSign is 1 if the inflow is in the positive direction of the
	// section and -1 otherwise.
	InSign int
}

func (b *Bulk) check() error {
	if b.Q == nil {
		return fmt.Errorf("tef: bulk transport is missing")
	}
	nt, nb := b.Q.Dims()
	if nt != len(b.Time) {
		return fmt.Errorf("tef: bulk transport has %d times but there are %d time values", nt, len(b.Time))
	}
	if _, ok := b.Tracers["salt"]; !ok {
		return fmt.Errorf("tef: bulk data is missing salt")
	}
	for vn, c := range b.Tracers {
		if r, cc := c.Dims(); r != nt || cc != nb {
			return fmt.Errorf("tef: bulk %s has shape (%d, %d) but q has shape (%d, %d)", vn, r, cc, nt, nb)
		}
	}
	if b.QNet != nil && len(b.QNet) != nt {
		return fmt.Errorf("tef: bulk qnet has %d times but q has %d", len(b.QNet), nt)
	}
	return nil
}

// TwoLayer forms two-layer TEF time series from the binned transport.
// At each time, the positive and negative bins are summed into two
// layers and each tracer is averaged over each layer weighted by
// transport. The layer with the higher time-mean salinity is the
// inflow. If neither layer is saltier, ErrAmbiguousSign is returned.
func (b *Bulk) TwoLayer() (*TwoLayerSeries, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	nt, nb := b.Q.Dims()

	names := make([]string, 0, len(b.Tracers))
	for vn := range b.Tracers {
		names = append(names, vn)
	}
	sort.Strings(names)

	qp, qm := make([]float64, nt), make([]float64, nt)
	cp, cm := make(map[string][]float64), make(map[string][]float64)
	for _, vn := range names {
		cp[vn], cm[vn] = make([]float64, nt), make([]float64, nt)
	}
	for t := 0; t < nt; t++ {
		qcp, qcm := make(map[string]float64), make(map[string]float64)
		for k := 0; k < nb; k++ {
			q := b.Q.At(t, k)
			if q == 0 || math.IsNaN(q) {
				continue
			}
			if q > 0 {
				qp[t] += q
			} else {
				qm[t] += q
			}
			for _, vn := range names {
				c := b.Tracers[vn].At(t, k)
				if math.IsNaN(c) {
					continue
				}
				if q > 0 {
					qcp[vn] += q * c
				} else {
					qcm[vn] += q * c
				}
			}
		}
		for _, vn := range names {
			cp[vn][t] = qcp[vn] / qp[t]
			cm[vn][t] = qcm[vn] / qm[t]
		}
	}

	sp, sm := nanMean(cp["salt"]), nanMean(cm["salt"])
	o := &TwoLayerSeries{Time: b.Time}
	switch {
	case sp > sm:
		o.Qin, o.Qout = qp, qm
		o.In, o.Out = cp, cm
		o.InSign = 1
	case sm > sp:
		floats.Scale(-1, qm)
		floats.Scale(-1, qp)
		o.Qin, o.Qout = qm, qp
		o.In, o.Out = cm, cp
		o.InSign = -1
	default:
		return nil, fmt.Errorf("%w: mean salinity is %g in the positive layer and %g in the negative layer",
			ErrAmbiguousSign, sp, sm)
	}
	return o, nil
}

// Mean returns the time means of Qin, Qout and the concentration of
// tracer vn in the inflowing and outflowing layers, ignoring undefined
// values.
func (s *TwoLayerSeries) Mean(vn string) (qin, qout, in, out float64) {
	return nanMean(s.Qin), nanMean(s.Qout), nanMean(s.In[vn]), nanMean(s.Out[vn])
}

// nanMean returns the mean of the values in x that are not NaN,
// or NaN if there are none.
func nanMean(x []float64) float64 {
	v := make([]float64, 0, len(x))
	for _, xx := range x {
		if !math.IsNaN(xx) {
			v = append(v, xx)
		}
	}
	if len(v) == 0 {
		return math.NaN()
	}
	return floats.Sum(v) / float64(len(v))
}
