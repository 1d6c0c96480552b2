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
	"io"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// SectionSign is a section bounding a volume. Sign is 1 if the positive
// direction of the section points into the volume and -1 otherwise.
type SectionSign struct {
	Name string `toml:"name"`
	Sign int    `toml:"sign"`
}

// Volume is a control volume made up of segments.
type Volume struct {
	Name string `toml:"name"`

	// Sections are the open boundaries of the volume.
	Sections []SectionSign `toml:"sections"`

	// Bases are substrings of the names of the sections whose
	// segments may be part of the volume.
	Bases []string `toml:"bases"`

	// Outer are segment IDs that match a base but are
	// outside of the volume.
	Outer []string `toml:"outer"`
}

// LoadVolumes reads volume definitions from TOML, where each volume is
// a [[volume]] table.
func LoadVolumes(r io.Reader) ([]Volume, error) {
	var c struct {
		Volume []Volume `toml:"volume"`
	}
	if _, err := toml.DecodeReader(r, &c); err != nil {
		return nil, fmt.Errorf("tef: reading volume definitions: %v", err)
	}
	for _, v := range c.Volume {
		for _, s := range v.Sections {
			if s.Sign != 1 && s.Sign != -1 {
				return nil, fmt.Errorf("tef: volume %q: section %s has sign %d; it must be 1 or -1", v.Name, s.Name, s.Sign)
			}
		}
	}
	return c.Volume, nil
}

// SegmentIDs returns the IDs of both sides of every section in
// sectionNames that contains one of the volume's bases, excluding
// the outer IDs. The result is in section order without duplicates.
func (v *Volume) SegmentIDs(sectionNames []string) []string {
	outer := make(map[string]bool)
	for _, o := range v.Outer {
		outer[o] = true
	}
	var o []string
	seen := make(map[string]bool)
	for _, base := range v.Bases {
		for _, sn := range sectionNames {
			if !strings.Contains(sn, base) {
				continue
			}
			for _, side := range []Side{Plus, Minus} {
				id := SegmentID(sn, side)
				if !outer[id] && !seen[id] {
					seen[id] = true
					o = append(o, id)
				}
			}
		}
	}
	return o
}

// Select returns the IDs of the segments in segs that are part of the
// volume, sorted, along with the rivers that flow into them.
func (v *Volume) Select(segs Segments, sectionNames []string) (ids, rivers []string) {
	valid := make(map[string]bool)
	for _, id := range v.SegmentIDs(sectionNames) {
		valid[id] = true
	}
	for _, id := range segs.IDs() {
		if !valid[id] {
			continue
		}
		ids = append(ids, id)
		rivers = append(rivers, segs[id].Rivers...)
	}
	return ids, rivers
}

// BudgetInput holds the data needed to calculate the budget of a volume.
type BudgetInput struct {
	Volume       *Volume
	Segments     Segments
	SectionNames []string

	// SegmentSeries holds hourly segment volumes.
	SegmentSeries *SegmentSeries

	// Rivers holds daily river transport. It may be nil
	// if no rivers flow into the volume.
	Rivers *RiverSeries

	// Bulk holds the daily TEF output for each section bounding
	// the volume, which must include QNet.
	Bulk map[string]*Bulk

	// LowPass is the tidal filter applied to hourly volumes.
	// Godin is used if it is nil.
	LowPass LowPass

	Log logrus.FieldLogger
}

// Budget is a daily volume budget. All transports are positive into
// the volume and are in m3/s; Volume is in m3.
type Budget struct {
	Name     string
	Segments []string
	Rivers   []string

	Time   []time.Time
	Volume []float64
	Qr     []float64
	Qnet   []float64
	DVDt   []float64

	// Error is the residual DVDt - Qnet - Qr.
	Error []float64

	MeanVolume                            *unit.Unit
	MeanQr, MeanQnet, MeanDVDt, MeanError *unit.Unit
}

const (
	// budgetPad is the number of hours removed from the start of the
	// low-passed record; it leaves daily values at noon.
	budgetPad     = 36
	hoursPerDay   = 24
	secondsPerDay = 86400
)

// VolumeBudget calculates the daily volume budget of in.Volume.
func VolumeBudget(in *BudgetInput) (*Budget, error) {
	log := in.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	lowPass := in.LowPass
	if lowPass == nil {
		lowPass = Godin
	}
	b := &Budget{Name: in.Volume.Name}
	b.Segments, b.Rivers = in.Volume.Select(in.Segments, in.SectionNames)
	log.WithFields(logrus.Fields{
		"volume":   b.Name,
		"segments": len(b.Segments),
		"rivers":   len(b.Rivers),
	}).Info("selected budget segments")

	vol, err := in.SegmentSeries.TotalVolume(b.Segments)
	if err != nil {
		return nil, fmt.Errorf("tef: volume %q: %w", b.Name, err)
	}
	lp := lowPass(vol)
	for k := budgetPad; k < len(lp)-budgetPad+1; k += hoursPerDay {
		b.Time = append(b.Time, in.SegmentSeries.Time[k])
		b.Volume = append(b.Volume, lp[k])
	}

	b.Qr = make([]float64, len(b.Time))
	if len(b.Rivers) > 0 {
		if in.Rivers == nil {
			return nil, fmt.Errorf("tef: volume %q has rivers %v but no river data", b.Name, b.Rivers)
		}
		qr, err := in.Rivers.TotalTransport(b.Rivers)
		if err != nil {
			return nil, fmt.Errorf("tef: volume %q: %w", b.Name, err)
		}
		b.Qr = align(b.Time, in.Rivers.Time, qr)
	}

	b.Qnet = make([]float64, len(b.Time))
	for _, s := range in.Volume.Sections {
		bulk, ok := in.Bulk[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: volume %q has no bulk data for section %s", ErrUnknownSection, b.Name, s.Name)
		}
		if bulk.QNet == nil {
			return nil, fmt.Errorf("tef: volume %q: bulk data for section %s has no qnet", b.Name, s.Name)
		}
		if len(bulk.QNet) != len(bulk.Time) {
			return nil, fmt.Errorf("tef: volume %q: section %s has %d qnet values for %d times", b.Name, s.Name, len(bulk.QNet), len(bulk.Time))
		}
		q := align(b.Time, bulk.Time, bulk.QNet)
		floats.AddScaled(b.Qnet, float64(s.Sign), q)
	}

	b.DVDt = make([]float64, len(b.Time))
	for i := range b.DVDt {
		if i == 0 || i == len(b.DVDt)-1 {
			b.DVDt[i] = math.NaN()
			continue
		}
		b.DVDt[i] = (b.Volume[i+1] - b.Volume[i-1]) / (2 * secondsPerDay)
	}

	b.Error = make([]float64, len(b.Time))
	floats.SubTo(b.Error, b.DVDt, b.Qnet)
	floats.Sub(b.Error, b.Qr)

	b.setMeans()
	return b, nil
}

// align returns the values of x (at times t) at each of the times in
// at, or NaN where t has no matching time.
func align(at, t []time.Time, x []float64) []float64 {
	idx := make(map[int64]int, len(t))
	for i, tt := range t {
		idx[tt.Unix()] = i
	}
	o := make([]float64, len(at))
	for i, tt := range at {
		if k, ok := idx[tt.Unix()]; ok {
			o[i] = x[k]
		} else {
			o[i] = math.NaN()
		}
	}
	return o
}

// RelativeError returns the mean budget error as a fraction of the
// mean river flow.
func (b *Budget) RelativeError() float64 {
	return b.MeanError.Value() / b.MeanQr.Value()
}

// Season returns the part of b that falls within r.
func (b *Budget) Season(r DateRange) *Budget {
	o := &Budget{Name: b.Name, Segments: b.Segments, Rivers: b.Rivers}
	for i, t := range b.Time {
		if !r.Contains(t) {
			continue
		}
		o.Time = append(o.Time, t)
		o.Volume = append(o.Volume, b.Volume[i])
		o.Qr = append(o.Qr, b.Qr[i])
		o.Qnet = append(o.Qnet, b.Qnet[i])
		o.DVDt = append(o.DVDt, b.DVDt[i])
		o.Error = append(o.Error, b.Error[i])
	}
	o.setMeans()
	return o
}

func (b *Budget) setMeans() {
	b.MeanVolume = unit.New(nanMean(b.Volume), unit.Meter3)
	b.MeanQr = unit.New(nanMean(b.Qr), unit.Meter3PerSecond)
	b.MeanQnet = unit.New(nanMean(b.Qnet), unit.Meter3PerSecond)
	b.MeanDVDt = unit.New(nanMean(b.DVDt), unit.Meter3PerSecond)
	b.MeanError = unit.New(nanMean(b.Error), unit.Meter3PerSecond)
}
