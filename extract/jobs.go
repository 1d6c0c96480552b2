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

package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/tef"
)

// Job is one external command.
type Job struct {
	Name string
	Args []string
}

func (j Job) String() string {
	return strings.Join(append([]string{j.Name}, j.Args...), " ")
}

// Variable groups that can be extracted at a mooring.
var (
	TSAVars     = []string{"salt", "temp", "AKs", "AKv"}
	VelVars     = []string{"u", "v", "w"}
	BioVars     = []string{"NO3", "phytoplankton", "zooplankton", "detritus", "Ldetritus", "oxygen", "alkalinity", "TIC"}
	SurfBotVars = []string{"Pair", "Uwind", "Vwind", "shflux", "ssflux", "latent", "sensible", "lwrad", "swrad", "sustr", "svstr", "bustr", "bvstr"}
)

// Mooring is a location where a time series is extracted.
type Mooring struct {
	Name string
	JI   tef.JI

	// Vars are the variables to extract.
	Vars []string

	// Staggered indicates that u and v grid variables are extracted,
	// which requires subsetting the u and v dimensions too.
	Staggered bool
}

// MooringVars returns the variables to extract at a mooring for the
// requested variable groups. Depth and free surface height are always
// included.
func MooringVars(tsa, vel, bio, surfBot bool) []string {
	o := []string{"h", "zeta"}
	for _, g := range []struct {
		on   bool
		vars []string
	}{{tsa, TSAVars}, {vel, VelVars}, {bio, BioVars}, {surfBot, SurfBotVars}} {
		if g.on {
			o = append(o, g.vars...)
		}
	}
	return o
}

func tempName(prefix string, i int) string {
	return fmt.Sprintf("%s_temp_%06d.nc", prefix, i)
}

// concat returns the job that joins the temporary files into out.
func concat(tempDir string, names []string, out string) Job {
	args := []string{"-p", tempDir, "-O"}
	args = append(args, names...)
	return Job{Name: "ncrcat", Args: append(args, out)}
}

// MooringJobs returns a job extracting m from each history file into
// tempDir, and the job that concatenates the results into out.
func MooringJobs(files []string, tempDir, out string, m Mooring) (extract []Job, cat Job, err error) {
	if len(files) == 0 {
		return nil, Job{}, fmt.Errorf("extract: no history files for mooring %s", m.Name)
	}
	if len(m.Vars) == 0 {
		return nil, Job{}, fmt.Errorf("extract: no variables for mooring %s", m.Name)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = tempName("moor", i)
		args := []string{"-v", strings.Join(m.Vars, ","),
			"-d", fmt.Sprintf("xi_rho,%d", m.JI.I), "-d", fmt.Sprintf("eta_rho,%d", m.JI.J)}
		if m.Staggered {
			for _, g := range []string{"u", "v"} {
				args = append(args,
					"-d", fmt.Sprintf("xi_%s,%d", g, m.JI.I), "-d", fmt.Sprintf("eta_%s,%d", g, m.JI.J))
			}
		}
		args = append(args, "-O", f, filepath.Join(tempDir, names[i]))
		extract = append(extract, Job{Name: "ncks", Args: args})
	}
	return extract, concat(tempDir, names, out), nil
}

// SectionVars returns the tracers extracted at sections.
func SectionVars(bio bool) []string {
	if bio {
		return []string{"salt", "temp", "oxygen", "NO3", "TIC", "alkalinity"}
	}
	return []string{"salt"}
}

// sectionBox returns the index ranges of the faces of s on the u or v
// grid.
func sectionBox(s *tef.Section) (uv string, j0, j1, i0, i1 int, err error) {
	if len(s.Faces) == 0 {
		return "", 0, 0, 0, 0, fmt.Errorf("extract: section %s has no faces", s.Name)
	}
	uv = s.Faces[0].UV
	j0, j1, i0, i1 = s.Faces[0].J, s.Faces[0].J, s.Faces[0].I, s.Faces[0].I
	for _, f := range s.Faces[1:] {
		if f.UV != uv {
			return "", 0, 0, 0, 0, fmt.Errorf("extract: section %s crosses both u and v faces", s.Name)
		}
		if f.J < j0 {
			j0 = f.J
		}
		if f.J > j1 {
			j1 = f.J
		}
		if f.I < i0 {
			i0 = f.I
		}
		if f.I > i1 {
			i1 = f.I
		}
	}
	return uv, j0, j1, i0, i1, nil
}

// SectionJobs returns a job extracting the rho points on both sides of
// each section and the velocity through it from each history file, and
// one concatenation job per section writing outDir/<name>.nc.
func SectionJobs(files []string, tempDir, outDir string, sections []*tef.Section, vars []string) (extract []Job, cat []Job, err error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("extract: no history files")
	}
	for _, s := range sections {
		uv, j0, j1, i0, i1, err := sectionBox(s)
		if err != nil {
			return nil, nil, err
		}
		// The rho points on either side of a u face (j, i) are at
		// i and i+1; for a v face (j, i) they are at j and j+1.
		rj1, ri1 := j1, i1
		if uv == "u" {
			ri1++
		} else {
			rj1++
		}
		v := append([]string{"h", "zeta", uv}, vars...)
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = tempName(s.Name, i)
			args := []string{"-v", strings.Join(v, ","),
				"-d", fmt.Sprintf("eta_rho,%d,%d", j0, rj1), "-d", fmt.Sprintf("xi_rho,%d,%d", i0, ri1),
				"-d", fmt.Sprintf("eta_%s,%d,%d", uv, j0, j1), "-d", fmt.Sprintf("xi_%s,%d,%d", uv, i0, i1),
				"-O", f, filepath.Join(tempDir, names[i])}
			extract = append(extract, Job{Name: "ncks", Args: args})
		}
		cat = append(cat, concat(tempDir, names, filepath.Join(outDir, s.Name+".nc")))
	}
	return extract, cat, nil
}
