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

package tefutil

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/tef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// The section crosses the u faces between columns 2 and 3.
const sectionLines = `
- name: a
  x0: -124.75
  x1: -124.75
  y0: 47.01
  y1: 47.39
`

const riverLocations = `
- {name: skagit, jrho: 1, irho: 0}
- {name: fraser, jrho: 3, irho: 4}
`

const volumes = `
[[volume]]
name = "East"
bases = ["a"]
outer = ["a_m"]

  [[volume.sections]]
  name = "a"
  sign = 1
`

// writeGrid writes an all-water 5×5 grid with 0.1° spacing starting
// at 125°W, 47°N.
func writeGrid(t *testing.T, dir string) string {
	mask := make([][]bool, 5)
	for j := range mask {
		mask[j] = []bool{true, true, true, true, true}
	}
	g, err := tef.NewGrid(mask)
	require.NoError(t, err)
	g.Lon, g.Lat, g.H = sparse.ZerosDense(5, 5), sparse.ZerosDense(5, 5), sparse.ZerosDense(5, 5)
	for j := 0; j < 5; j++ {
		for i := 0; i < 5; i++ {
			g.Lon.Set(-125+0.1*float64(i), j, i)
			g.Lat.Set(47+0.1*float64(j), j, i)
			g.H.Set(float64(1+j), j, i)
		}
	}
	path := filepath.Join(dir, "grid.nc")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, g.WriteExtras(f, 0))
	require.NoError(t, f.Close())
	return path
}

func writeFile(t *testing.T, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func execute(t *testing.T, args ...string) {
	Root.SetArgs(args)
	require.NoError(t, Root.Execute())
}

// makeSegments runs the sections and segments commands in dir.
func makeSegments(t *testing.T, dir string) {
	Cfg.Set("GridFile", writeGrid(t, dir))
	Cfg.Set("SectionLines", writeFile(t, dir, "lines.yaml", sectionLines))
	Cfg.Set("SectionsFile", filepath.Join(dir, "sections.yaml"))
	execute(t, "sections")

	Cfg.Set("RiversFile", writeFile(t, dir, "rivers.yaml", riverLocations))
	Cfg.Set("Seeds", []string{})
	Cfg.Set("SegmentsFile", filepath.Join(dir, "segments.yaml"))
	execute(t, "segments")
}

func TestGridExtras(t *testing.T) {
	dir := t.TempDir()
	Cfg.Set("GridFile", writeGrid(t, dir))
	Cfg.Set("ExtrasFile", filepath.Join(dir, "extras.nc"))
	Cfg.Set("MinDepth", 3.0)
	execute(t, "grid", "extras")

	f, err := os.Open(filepath.Join(dir, "extras.nc"))
	require.NoError(t, err)
	defer f.Close()
	g, err := tef.LoadGrid(f)
	require.NoError(t, err)
	assert.Equal(t, 3.0, g.H.Get(0, 0))
	assert.Equal(t, 5.0, g.H.Get(4, 0))
}

func TestSegments(t *testing.T) {
	dir := t.TempDir()
	makeSegments(t, dir)

	f, err := os.Open(filepath.Join(dir, "sections.yaml"))
	require.NoError(t, err)
	sections, err := tef.LoadSections(f)
	f.Close()
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, []tef.JI{{J: 0, I: 2}, {J: 1, I: 2}, {J: 2, I: 2}, {J: 3, I: 2}, {J: 4, I: 2}}, sections[0].Minus)
	assert.Equal(t, []tef.JI{{J: 0, I: 3}, {J: 1, I: 3}, {J: 2, I: 3}, {J: 3, I: 3}, {J: 4, I: 3}}, sections[0].Plus)

	f, err = os.Open(filepath.Join(dir, "segments.yaml"))
	require.NoError(t, err)
	segs, err := tef.LoadSegments(f)
	f.Close()
	require.NoError(t, err)
	require.Equal(t, []string{"a_m", "a_p"}, segs.IDs())
	assert.Len(t, segs["a_m"].JI, 15)
	assert.Len(t, segs["a_p"].JI, 10)
	assert.Equal(t, []string{"a_m"}, segs["a_m"].Bounding)
	assert.Equal(t, []string{"a_p"}, segs["a_p"].Bounding)
	assert.Equal(t, []string{"skagit"}, segs["a_m"].Rivers)
	assert.Equal(t, []string{"fraser"}, segs["a_p"].Rivers)
}

func TestSegmentsFingerprint(t *testing.T) {
	dir := t.TempDir()
	makeSegments(t, dir)
	grid, sections := filepath.Join(dir, "grid.nc"), filepath.Join(dir, "sections.yaml")
	h1, err := MakeSegments(grid, sections, "", nil, filepath.Join(dir, "s1.yaml"))
	require.NoError(t, err)
	h2, err := MakeSegments(grid, sections, "", []string{"a"}, filepath.Join(dir, "s2.yaml"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := MakeSegments(grid, sections, filepath.Join(dir, "rivers.yaml"), nil, filepath.Join(dir, "s3.yaml"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	_, err = MakeSegments(grid, sections, "", []string{"b"}, filepath.Join(dir, "s4.yaml"))
	assert.ErrorIs(t, err, tef.ErrUnknownSection)
}

func TestSectionsOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	Cfg.Set("GridFile", writeGrid(t, dir))
	Cfg.Set("SectionLines", writeFile(t, dir, "lines.yaml", `
- {name: far, x0: -120, x1: -120, y0: 47.01, y1: 47.39}
`))
	Cfg.Set("SectionsFile", filepath.Join(dir, "sections.yaml"))
	Root.SetArgs([]string{"sections"})
	err := Root.Execute()
	assert.ErrorIs(t, err, tef.ErrOutOfBounds)
}

// writeBulk writes daily two-bin bulk TEF output for a section.
func writeBulk(t *testing.T, dir, section string, times []time.Time, q, salt [2]float64) {
	nt := len(times)
	qm, sm := mat.NewDense(nt, 2, nil), mat.NewDense(nt, 2, nil)
	qnet := make([]float64, nt)
	for i := 0; i < nt; i++ {
		qm.SetRow(i, q[:])
		sm.SetRow(i, salt[:])
		qnet[i] = q[0] + q[1]
	}
	b := &tef.Bulk{Time: times, Q: qm, Tracers: map[string]*mat.Dense{"salt": sm}, QNet: qnet}
	require.NoError(t, os.MkdirAll(dir, os.ModePerm))
	f, err := os.Create(filepath.Join(dir, section+".nc"))
	require.NoError(t, err)
	require.NoError(t, b.Write(f))
	require.NoError(t, f.Close())
}

func days(start time.Time, n int) []time.Time {
	o := make([]time.Time, n)
	for i := range o {
		o[i] = start.Add(time.Duration(24*i) * time.Hour)
	}
	return o
}

func TestTwoLayer(t *testing.T) {
	dir := t.TempDir()
	tt := days(time.Date(2022, time.January, 1, 12, 0, 0, 0, time.UTC), 3)
	writeBulk(t, dir, "a", tt, [2]float64{8, -2}, [2]float64{31, 30})
	writeBulk(t, dir, "b", tt, [2]float64{-5, 1}, [2]float64{32, 29})
	writeBulk(t, dir, "c", tt, [2]float64{1, -1}, [2]float64{30, 30})

	hook := test.NewLocal(Log)
	defer hook.Reset()
	var buf bytes.Buffer
	outputs := map[string]string{"salt_transport": "qin * salt_in + qout * salt_out"}
	require.NoError(t, TwoLayer(dir, []string{"a", "b", "c"}, outputs, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"section", "in_sign", "qin", "qout", "salt_in", "salt_out", "salt_transport"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"a", "1", "8", "-2", "31", "30", "188"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"b", "-1", "5", "-1", "32", "29", "131"}, strings.Fields(lines[2]))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["section"] == "c" {
			warned = true
		}
	}
	assert.True(t, warned, "ambiguous section should be logged")

	assert.Error(t, TwoLayer(dir, []string{"d"}, nil, &buf))
	assert.Error(t, TwoLayer(dir, []string{"a"}, map[string]string{"x": "qin *"}, &buf))
	assert.Error(t, TwoLayer(dir, []string{"a"}, map[string]string{"x": "temp_in"}, &buf))
}

func TestTwoLayerCommand(t *testing.T) {
	dir := t.TempDir()
	makeSegments(t, dir)
	tt := days(time.Date(2022, time.January, 1, 12, 0, 0, 0, time.UTC), 3)
	writeBulk(t, filepath.Join(dir, "bulk"), "a", tt, [2]float64{-5, 1}, [2]float64{32, 29})

	var buf bytes.Buffer
	Root.SetOutput(&buf)
	defer Root.SetOutput(nil)
	Cfg.Set("BulkDir", filepath.Join(dir, "bulk"))
	Cfg.Set("SectionNames", []string{})
	Cfg.Set("TwoLayerOutputs", `{"knudsen": "salt_in / (salt_in - salt_out)"}`)
	execute(t, "twolayer")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "knudsen", strings.Fields(lines[0])[6])
	assert.Equal(t, []string{"a", "-1", "5", "-1", "32", "29", "10.67"}, strings.Fields(lines[1]))
}

func TestBudget(t *testing.T) {
	dir := t.TempDir()
	makeSegments(t, dir)

	start := time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)
	const nt = 6 * 24
	hours := make([]time.Time, nt)
	vol := sparse.ZerosDense(nt, 2)
	for h := range hours {
		hours[h] = start.Add(time.Duration(h) * time.Hour)
		vol.Set(2e9, h, 0)
		vol.Set(1e9+10*3600*float64(h), h, 1)
	}
	ss := &tef.SegmentSeries{Time: hours, Segments: []string{"a_m", "a_p"}, Volume: vol}
	f, err := os.Create(filepath.Join(dir, "segments.nc"))
	require.NoError(t, err)
	require.NoError(t, ss.Write(f))
	require.NoError(t, f.Close())

	noon := days(start.Add(12*time.Hour), 6)
	riv := sparse.ZerosDense(len(noon), 2)
	for d := range noon {
		riv.Set(50, d, 0)
		riv.Set(4, d, 1)
	}
	rs := &tef.RiverSeries{Time: noon, Rivers: []string{"skagit", "fraser"}, Transport: riv}
	f, err = os.Create(filepath.Join(dir, "rivers.nc"))
	require.NoError(t, err)
	require.NoError(t, rs.Write(f))
	require.NoError(t, f.Close())

	writeBulk(t, filepath.Join(dir, "bulk"), "a", noon, [2]float64{8, -2}, [2]float64{31, 30})

	Cfg.Set("VolumesFile", writeFile(t, dir, "volumes.toml", volumes))
	Cfg.Set("SegmentSeries", filepath.Join(dir, "segments.nc"))
	Cfg.Set("RiverSeries", filepath.Join(dir, "rivers.nc"))
	Cfg.Set("BulkDir", filepath.Join(dir, "bulk"))
	Cfg.Set("OutputDir", dir)
	Cfg.Set("Volumes", []string{"East"})
	Cfg.Set("Year", 2022)

	hook := test.NewLocal(Log)
	defer hook.Reset()
	execute(t, "budget")
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "potential sign error")
	}

	r, err := os.Open(filepath.Join(dir, "East_2022.yaml"))
	require.NoError(t, err)
	defer r.Close()
	var out budgetFile
	require.NoError(t, yaml.NewDecoder(r).Decode(&out))
	assert.Equal(t, "East", out.Volume)
	assert.Equal(t, []string{"a_p"}, out.Segments)
	assert.Equal(t, []string{"fraser"}, out.Rivers)
	require.Len(t, out.Seasons, len(tef.SeasonNames))
	for _, s := range out.Seasons[:2] { // full and winter
		assert.InDelta(t, 4, s.Qr, 1e-9, s.Season)
		assert.InDelta(t, 6, s.Qnet, 1e-9, s.Season)
		assert.InDelta(t, 10, s.DVDt, 1e-3, s.Season)
		assert.InDelta(t, 0, s.Error, 1e-3, s.Season)
	}
	assert.True(t, math.IsNaN(out.Seasons[2].Volume), "spring has no data")

	x, err := xlsx.OpenFile(filepath.Join(dir, "East_2022.xlsx"))
	require.NoError(t, err)
	sheet, ok := x.Sheet["daily"]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 5)
	assert.Equal(t, "time", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "2022-01-03T12:00:00Z", sheet.Rows[2].Cells[0].Value)
	qr, err := strconv.ParseFloat(sheet.Rows[2].Cells[2].Value, 64)
	require.NoError(t, err)
	assert.Equal(t, 4.0, qr)

	Cfg.Set("Volumes", []string{"West"})
	Root.SetArgs([]string{"budget"})
	assert.Error(t, Root.Execute())
	Cfg.Set("Volumes", []string{})
}

// recorder records the commands it is asked to run.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) Run(ctx context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil
}

func (r *recorder) count(name string) int {
	var n int
	for _, c := range r.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}

func setExtract(t *testing.T, dir string) *recorder {
	rec := new(recorder)
	executor = rec
	t.Cleanup(func() { executor = nil })
	Cfg.Set("HistoryRoot", filepath.Join(dir, "roms"))
	Cfg.Set("Gtagex", "cas6_v3_lo8b")
	Cfg.Set("StartDate", "2019.07.04")
	Cfg.Set("EndDate", "")
	Cfg.Set("TempDir", filepath.Join(dir, "temp"))
	Cfg.Set("OutputDir", filepath.Join(dir, "out"))
	Cfg.Set("KeepTemp", false)
	Cfg.Set("MaxProcs", 10)
	Cfg.Set("MaxRetries", 0)
	Cfg.Set("Bio", false)
	return rec
}

func TestExtractMooring(t *testing.T) {
	dir := t.TempDir()
	rec := setExtract(t, dir)
	Cfg.Set("GridFile", writeGrid(t, dir))
	Cfg.Set("ListType", "hourly")
	Cfg.Set("Moor.Name", "ORCA")
	Cfg.Set("Moor.Lon", -124.9)
	Cfg.Set("Moor.Lat", 47.2)
	Cfg.Set("Moor.TSA", true)
	Cfg.Set("Moor.Vel", false)
	Cfg.Set("Moor.SurfBot", false)
	execute(t, "extract", "moor")

	assert.Equal(t, 25, rec.count("ncks"))
	require.Equal(t, 1, rec.count("ncrcat"))
	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, filepath.Join(dir, "out", "ORCA_2019.07.04_2019.07.04.nc"), last[len(last)-1])
	assert.Contains(t, strings.Join(rec.calls[0], " "), "-d xi_rho,1 -d eta_rho,2")

	_, err := os.Stat(filepath.Join(dir, "temp"))
	assert.True(t, os.IsNotExist(err), "temporary directory should be removed")

	Cfg.Set("Moor.Lon", -100.0)
	Root.SetArgs([]string{"extract", "moor"})
	assert.ErrorIs(t, Root.Execute(), tef.ErrOutOfBounds)
	Cfg.Set("Moor.Lon", -124.9)

	Cfg.Set("ListType", "weekly")
	Root.SetArgs([]string{"extract", "moor"})
	assert.Error(t, Root.Execute())
	Cfg.Set("ListType", "hourly")
}

func TestExtractSections(t *testing.T) {
	dir := t.TempDir()
	makeSegments(t, dir)
	rec := setExtract(t, dir)
	Cfg.Set("KeepTemp", true)
	Cfg.Set("SectionNames", []string{"a"})
	execute(t, "extract", "sections")

	assert.Equal(t, 25, rec.count("ncks"))
	require.Equal(t, 1, rec.count("ncrcat"))
	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, filepath.Join(dir, "out", "a.nc"), last[len(last)-1])
	_, err := os.Stat(filepath.Join(dir, "temp"))
	assert.NoError(t, err)

	Cfg.Set("SectionNames", []string{"missing"})
	Root.SetArgs([]string{"extract", "sections"})
	assert.ErrorIs(t, Root.Execute(), tef.ErrUnknownSection)
	Cfg.Set("SectionNames", []string{})
}

func TestVersion(t *testing.T) {
	var buf bytes.Buffer
	Root.SetOutput(&buf)
	defer Root.SetOutput(nil)
	execute(t, "version")
	assert.Equal(t, "tef v"+tef.Version+"\n", buf.String())
}
