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
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Knetic/govaluate"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/tef"
	"github.com/spatialmodel/tef/extract"
	"github.com/spatialmodel/tef/internal/hash"
	"github.com/tealeg/xlsx"
	"gopkg.in/yaml.v3"
)

// GridExtras reads the ROMS grid in gridFile and writes it to outFile
// with the u, v and psi masks added.
func GridExtras(gridFile, outFile string, minDepth float64) error {
	g, err := loadGrid(gridFile)
	if err != nil {
		return err
	}
	f, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("tef: creating grid extras file: %v", err)
	}
	if err = g.WriteExtras(f, minDepth); err != nil {
		f.Close()
		return err
	}
	Log.WithFields(logrus.Fields{"file": outFile, "nj": g.NJ, "ni": g.NI}).Info("wrote grid extras")
	return f.Close()
}

// MakeSections converts the section lines in linesFile to sections on
// the grid in gridFile and writes them to outFile.
func MakeSections(gridFile, linesFile, outFile string) error {
	g, err := loadGrid(gridFile)
	if err != nil {
		return err
	}
	r, err := os.Open(linesFile)
	if err != nil {
		return fmt.Errorf("tef: opening section lines: %v", err)
	}
	defer r.Close()
	lines, err := tef.LoadSectionLines(r)
	if err != nil {
		return err
	}
	sections := make([]*tef.Section, len(lines))
	for i, l := range lines {
		if sections[i], err = g.SectionFromLine(l); err != nil {
			return err
		}
		log := Log.WithFields(logrus.Fields{"section": l.Name, "faces": len(sections[i].Faces)})
		if len(sections[i].Faces) == 0 {
			log.Warn("section crosses no water faces")
		} else {
			log.Debug("made section")
		}
	}
	w, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("tef: creating sections file: %v", err)
	}
	if err = tef.WriteSections(w, sections); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// MakeSegments partitions the grid in gridFile using the sections in
// sectionsFile, attaches the rivers in riversFile (if any) and writes
// the segments to outFile. It returns a fingerprint of the segments.
func MakeSegments(gridFile, sectionsFile, riversFile string, seeds []string, outFile string) (string, error) {
	g, err := loadGrid(gridFile)
	if err != nil {
		return "", err
	}
	sections, err := loadSections(sectionsFile)
	if err != nil {
		return "", err
	}
	var rivers tef.RiverPoints
	if riversFile != "" {
		r, err := os.Open(riversFile)
		if err != nil {
			return "", fmt.Errorf("tef: opening rivers file: %v", err)
		}
		rivers, err = tef.LoadRivers(r)
		r.Close()
		if err != nil {
			return "", err
		}
	}
	p := &tef.Partitioner{Seeds: seeds, Log: Log}
	segs, err := p.Partition(g, sections, rivers)
	if err != nil {
		return "", err
	}
	w, err := os.Create(outFile)
	if err != nil {
		return "", fmt.Errorf("tef: creating segments file: %v", err)
	}
	if err = tef.WriteSegments(w, segs); err != nil {
		w.Close()
		return "", err
	}
	if err = w.Close(); err != nil {
		return "", err
	}
	fingerprint := hash.Hash(segs)
	Log.WithFields(logrus.Fields{
		"segments":    len(segs),
		"file":        outFile,
		"fingerprint": fingerprint,
	}).Info("wrote segments")
	return fingerprint, nil
}

// TwoLayer writes a table of the time-mean two-layer transports and
// salinities of the named sections, read from bulk files in bulkDir,
// to w. Sections with an ambiguous sign are logged and left out.
//
// outputs holds extra columns, keyed by column name. Each is an
// expression of qin, qout and the inflow and outflow concentration of
// each tracer, named <tracer>_in and <tracer>_out.
func TwoLayer(bulkDir string, sections []string, outputs map[string]string, w io.Writer) error {
	names, exprs, err := twoLayerColumns(outputs)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(append([]string{"section", "in_sign", "qin", "qout", "salt_in", "salt_out"}, names...), "\t"))
	for _, sn := range sections {
		b, err := loadBulk(bulkDir, sn)
		if err != nil {
			return err
		}
		tl, err := b.TwoLayer()
		if errors.Is(err, tef.ErrAmbiguousSign) {
			Log.WithField("section", sn).Warn(err)
			continue
		} else if err != nil {
			return fmt.Errorf("tef: section %s: %v", sn, err)
		}
		qin, qout, sin, sout := tl.Mean("salt")
		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g", sn, tl.InSign, qin, qout, sin, sout)

		params := map[string]interface{}{"qin": qin, "qout": qout}
		for vn := range tl.In {
			_, _, in, out := tl.Mean(vn)
			params[vn+"_in"], params[vn+"_out"] = in, out
		}
		for i, e := range exprs {
			v, err := e.Evaluate(params)
			if err != nil {
				return fmt.Errorf("tef: section %s: evaluating %s: %v", sn, names[i], err)
			}
			f, ok := v.(float64)
			if !ok {
				return fmt.Errorf("tef: section %s: %s is %v, not a number", sn, names[i], v)
			}
			fmt.Fprintf(tw, "\t%.4g", f)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// twoLayerColumns parses the expressions of the extra two-layer
// output columns, sorted by name.
func twoLayerColumns(outputs map[string]string) ([]string, []*govaluate.EvaluableExpression, error) {
	names := make([]string, 0, len(outputs))
	for n := range outputs {
		names = append(names, n)
	}
	sort.Strings(names)
	exprs := make([]*govaluate.EvaluableExpression, len(names))
	for i, n := range names {
		var err error
		if exprs[i], err = govaluate.NewEvaluableExpression(outputs[n]); err != nil {
			return nil, nil, fmt.Errorf("tef: two-layer output %s: %v", n, err)
		}
	}
	return names, exprs, nil
}

// BudgetConfig holds the inputs of the budget command.
type BudgetConfig struct {
	VolumesFile, SectionsFile, SegmentsFile string
	SegmentSeriesFile, RiverSeriesFile      string
	BulkDir, OutputDir                      string

	// Volumes are the names of the volumes to calculate budgets for.
	// All volumes are used if it is empty.
	Volumes []string

	Year int
}

type seasonBudget struct {
	Season        string  `yaml:"season"`
	Volume        float64 `yaml:"volume"`
	Qr            float64 `yaml:"qr"`
	Qnet          float64 `yaml:"qnet"`
	DVDt          float64 `yaml:"dvdt"`
	Error         float64 `yaml:"error"`
	RelativeError float64 `yaml:"relative_error"`
}

type budgetFile struct {
	Volume   string         `yaml:"volume"`
	Year     int            `yaml:"year"`
	Segments []string       `yaml:"segments"`
	Rivers   []string       `yaml:"rivers"`
	Seasons  []seasonBudget `yaml:"seasons"`
}

// Budget calculates the volume budgets specified by c and writes the
// seasonal means of each to a YAML file in c.OutputDir, with the daily
// values in a spreadsheet of the same name.
func Budget(c *BudgetConfig) error {
	r, err := os.Open(c.VolumesFile)
	if err != nil {
		return fmt.Errorf("tef: opening volumes file: %v", err)
	}
	volumes, err := tef.LoadVolumes(r)
	r.Close()
	if err != nil {
		return err
	}
	sections, err := loadSections(c.SectionsFile)
	if err != nil {
		return err
	}
	r, err = os.Open(c.SegmentsFile)
	if err != nil {
		return fmt.Errorf("tef: opening segments file: %v", err)
	}
	segs, err := tef.LoadSegments(r)
	r.Close()
	if err != nil {
		return err
	}
	ss, err := os.Open(c.SegmentSeriesFile)
	if err != nil {
		return fmt.Errorf("tef: opening segment time series: %v", err)
	}
	defer ss.Close()
	segSeries, err := tef.LoadSegmentSeries(ss)
	if err != nil {
		return err
	}
	var rivSeries *tef.RiverSeries
	if c.RiverSeriesFile != "" {
		rs, err := os.Open(c.RiverSeriesFile)
		if err != nil {
			return fmt.Errorf("tef: opening river time series: %v", err)
		}
		defer rs.Close()
		if rivSeries, err = tef.LoadRiverSeries(rs); err != nil {
			return err
		}
	}

	want := make(map[string]bool)
	for _, v := range c.Volumes {
		want[v] = true
	}
	found := 0
	for i := range volumes {
		v := &volumes[i]
		if len(want) > 0 && !want[v.Name] {
			continue
		}
		found++
		in := &tef.BudgetInput{
			Volume:        v,
			Segments:      segs,
			SectionNames:  tef.SectionNames(sections),
			SegmentSeries: segSeries,
			Rivers:        rivSeries,
			Bulk:          make(map[string]*tef.Bulk),
			Log:           Log,
		}
		for _, s := range v.Sections {
			b, err := loadBulk(c.BulkDir, s.Name)
			if err != nil {
				return err
			}
			in.Bulk[s.Name] = b
			checkSign(v.Name, s, b)
		}
		b, err := tef.VolumeBudget(in)
		if err != nil {
			return err
		}
		out := budgetFile{Volume: v.Name, Year: c.Year, Segments: b.Segments, Rivers: b.Rivers}
		seasons := tef.Seasons(c.Year)
		for _, name := range tef.SeasonNames {
			sb := b.Season(seasons[name])
			out.Seasons = append(out.Seasons, seasonBudget{
				Season:        name,
				Volume:        sb.MeanVolume.Value(),
				Qr:            sb.MeanQr.Value(),
				Qnet:          sb.MeanQnet.Value(),
				DVDt:          sb.MeanDVDt.Value(),
				Error:         sb.MeanError.Value(),
				RelativeError: sb.RelativeError(),
			})
		}
		fname := volumeFileName(c.OutputDir, v.Name, c.Year)
		if err = writeYAML(fname, out); err != nil {
			return err
		}
		if err = writeDaily(strings.TrimSuffix(fname, ".yaml")+".xlsx", b); err != nil {
			return err
		}
		Log.WithFields(logrus.Fields{
			"volume":         v.Name,
			"mean_volume":    b.MeanVolume,
			"relative_error": b.RelativeError(),
			"file":           fname,
		}).Info("wrote budget")
	}
	if len(want) > 0 && found != len(want) {
		return fmt.Errorf("tef: only %d of the %d requested volumes %v are defined in %s", found, len(want), c.Volumes, c.VolumesFile)
	}
	return nil
}

// checkSign logs a warning if the two-layer inflow through a volume's
// bounding section is not in the direction into the volume.
func checkSign(volume string, s tef.SectionSign, b *tef.Bulk) {
	log := Log.WithFields(logrus.Fields{"volume": volume, "section": s.Name})
	if _, ok := b.Tracers["salt"]; !ok || b.Q == nil {
		return
	}
	tl, err := b.TwoLayer()
	if err != nil {
		log.Warn(err)
		return
	}
	if tl.InSign != s.Sign {
		log.Warnf("potential sign error: inflow sign is %d but the volume sign is %d", tl.InSign, s.Sign)
	}
}

// writeDaily writes the daily terms of b to a spreadsheet. Undefined
// values are left blank.
func writeDaily(fname string, b *tef.Budget) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("daily")
	if err != nil {
		return fmt.Errorf("tef: writing %s: %v", fname, err)
	}
	header := sheet.AddRow()
	for _, h := range []string{"time", "volume", "qr", "qnet", "dvdt", "error"} {
		header.AddCell().SetString(h)
	}
	for i, t := range b.Time {
		row := sheet.AddRow()
		row.AddCell().SetString(t.Format(time.RFC3339))
		for _, v := range []float64{b.Volume[i], b.Qr[i], b.Qnet[i], b.DVDt[i], b.Error[i]} {
			c := row.AddCell()
			if !math.IsNaN(v) {
				c.SetFloat(v)
			}
		}
	}
	if err = f.Save(fname); err != nil {
		return fmt.Errorf("tef: writing %s: %v", fname, err)
	}
	return nil
}

func writeYAML(fname string, v interface{}) error {
	w, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("tef: creating %s: %v", fname, err)
	}
	e := yaml.NewEncoder(w)
	if err = e.Encode(v); err != nil {
		w.Close()
		return fmt.Errorf("tef: writing %s: %v", fname, err)
	}
	if err = e.Close(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ExtractConfig holds the inputs shared by the extraction commands.
type ExtractConfig struct {
	HistoryRoot, Gtagex string
	StartDate, EndDate  string
	ListType            string
	TempDir, OutputDir  string

	// KeepTemp keeps the temporary files after a successful run.
	KeepTemp bool

	Runner *extract.Runner
}

func (c *ExtractConfig) run(ctx context.Context, jobs []extract.Job, cat []extract.Job) error {
	if err := os.MkdirAll(c.TempDir, os.ModePerm); err != nil {
		return fmt.Errorf("tef: creating temporary directory: %v", err)
	}
	if err := os.MkdirAll(c.OutputDir, os.ModePerm); err != nil {
		return fmt.Errorf("tef: creating output directory: %v", err)
	}
	Log.WithFields(logrus.Fields{"jobs": len(jobs), "outputs": len(cat)}).Info("starting extraction")
	if err := c.Runner.Run(ctx, jobs); err != nil {
		return err
	}
	if err := c.Runner.Run(ctx, cat); err != nil {
		return err
	}
	if c.KeepTemp {
		return nil
	}
	return os.RemoveAll(c.TempDir)
}

// MooringConfig specifies a mooring extraction.
type MooringConfig struct {
	Name, GridFile         string
	Lon, Lat               float64
	TSA, Vel, Bio, SurfBot bool
}

// ExtractMooring extracts a time series at a mooring to
// OutputDir/<name>_<start>_<end>.nc.
func ExtractMooring(ctx context.Context, c *ExtractConfig, m *MooringConfig) error {
	g, err := loadGrid(m.GridFile)
	if err != nil {
		return err
	}
	staggered := m.Vel || m.SurfBot
	ji, err := g.MooringIndex(m.Lon, m.Lat, staggered)
	if err != nil {
		return fmt.Errorf("tef: mooring %s: %w", m.Name, err)
	}
	files, err := extract.HistoryFiles(c.HistoryRoot, c.Gtagex, c.StartDate, c.EndDate, c.ListType)
	if err != nil {
		return err
	}
	end := c.EndDate
	if end == "" {
		end = c.StartDate
	}
	out := filepath.Join(c.OutputDir, fmt.Sprintf("%s_%s_%s.nc", m.Name, c.StartDate, end))
	jobs, cat, err := extract.MooringJobs(files, c.TempDir, out, extract.Mooring{
		Name:      m.Name,
		JI:        ji,
		Vars:      extract.MooringVars(m.TSA, m.Vel, m.Bio, m.SurfBot),
		Staggered: staggered,
	})
	if err != nil {
		return err
	}
	Log.WithFields(logrus.Fields{"mooring": m.Name, "j": ji.J, "i": ji.I, "file": out}).Info("extracting mooring")
	return c.run(ctx, jobs, []extract.Job{cat})
}

// ExtractSections extracts hourly fields around the named sections (or
// all sections if names is empty) to OutputDir/<section>.nc.
func ExtractSections(ctx context.Context, c *ExtractConfig, sectionsFile string, names []string, bio bool) error {
	all, err := loadSections(sectionsFile)
	if err != nil {
		return err
	}
	sections, err := selectSections(all, names)
	if err != nil {
		return err
	}
	files, err := extract.HistoryFiles(c.HistoryRoot, c.Gtagex, c.StartDate, c.EndDate, extract.Hourly)
	if err != nil {
		return err
	}
	jobs, cat, err := extract.SectionJobs(files, c.TempDir, c.OutputDir, sections, extract.SectionVars(bio))
	if err != nil {
		return err
	}
	return c.run(ctx, jobs, cat)
}
