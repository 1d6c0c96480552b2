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
	"sort"

	"gopkg.in/yaml.v3"
)

// Side is one of the two sides of a section.
type Side int

// The two sides of a section. Transport from the minus side to the
// plus side is positive.
const (
	Minus Side = -1
	Plus  Side = 1
)

func (s Side) String() string {
	if s == Plus {
		return "p"
	}
	return "m"
}

// Opposite returns the other side.
func (s Side) Opposite() Side { return -s }

// Face is a u or v face of the grid crossed by a section.
// A u face (j, i) lies between rho points (j, i) and (j, i+1);
// a v face (j, i) lies between rho points (j, i) and (j+1, i).
type Face struct {
	UV string `yaml:"uv"`
	J  int    `yaml:"j"`
	I  int    `yaml:"i"`
}

// Section is a named, oriented cut across the grid.
type Section struct {
	Name string `yaml:"name"`

	// Plus and Minus are the rho cells adjacent to the cut on
	// each side, paired by index.
	Plus  []JI `yaml:"plus"`
	Minus []JI `yaml:"minus"`

	// Line holds rho cells lying on the cut itself. They belong to
	// neither side and are never part of a segment.
	Line []JI `yaml:"line,omitempty"`

	// Faces are the grid faces crossed by the cut, when the section
	// was built from faces.
	Faces []Face `yaml:"faces,omitempty"`
}

// Cells returns the cells adjacent to s on the given side.
func (s *Section) Cells(side Side) []JI {
	if side == Plus {
		return s.Plus
	}
	return s.Minus
}

// Reverse returns a copy of s with the plus and minus sides swapped.
func (s *Section) Reverse() *Section {
	o := &Section{
		Name:  s.Name,
		Plus:  append([]JI(nil), s.Minus...),
		Minus: append([]JI(nil), s.Plus...),
		Line:  append([]JI(nil), s.Line...),
		Faces: append([]Face(nil), s.Faces...),
	}
	return o
}

// validate makes sure that s is named and that its sides pair up.
func (s *Section) validate() error {
	if s.Name == "" {
		return fmt.Errorf("tef: section with no name")
	}
	if len(s.Plus) != len(s.Minus) {
		return fmt.Errorf("tef: section %s has %d plus cells but %d minus cells", s.Name, len(s.Plus), len(s.Minus))
	}
	return nil
}

// check makes sure that s is valid and every cell of s is inside of g.
func (s *Section) check(g *Grid) error {
	if err := s.validate(); err != nil {
		return err
	}
	for _, cells := range [][]JI{s.Plus, s.Minus, s.Line} {
		for _, ji := range cells {
			if !g.InBounds(ji) {
				return fmt.Errorf("%w: section %s cell %v in a grid of shape (%d, %d)",
					ErrOutOfBounds, s.Name, ji, g.NJ, g.NI)
			}
		}
	}
	return nil
}

// SectionAlongU returns a section crossing the u faces at column i,
// for rows j0 through j1 inclusive. The minus side is to the west
// and the plus side is to the east. Faces with land on either side
// are left out.
func (g *Grid) SectionAlongU(name string, i, j0, j1 int) (*Section, error) {
	if j1 < j0 {
		j0, j1 = j1, j0
	}
	if i < 0 || i+1 >= g.NI || j0 < 0 || j1 >= g.NJ {
		return nil, fmt.Errorf("%w: u section %s at i=%d, j=%d..%d", ErrOutOfBounds, name, i, j0, j1)
	}
	s := &Section{Name: name}
	for j := j0; j <= j1; j++ {
		m, p := JI{J: j, I: i}, JI{J: j, I: i + 1}
		if !g.Water(m) || !g.Water(p) {
			continue
		}
		s.Minus = append(s.Minus, m)
		s.Plus = append(s.Plus, p)
		s.Faces = append(s.Faces, Face{UV: "u", J: j, I: i})
	}
	return s, nil
}

// SectionAlongV returns a section crossing the v faces at row j,
// for columns i0 through i1 inclusive. The minus side is to the south
// and the plus side is to the north. Faces with land on either side
// are left out.
func (g *Grid) SectionAlongV(name string, j, i0, i1 int) (*Section, error) {
	if i1 < i0 {
		i0, i1 = i1, i0
	}
	if j < 0 || j+1 >= g.NJ || i0 < 0 || i1 >= g.NI {
		return nil, fmt.Errorf("%w: v section %s at j=%d, i=%d..%d", ErrOutOfBounds, name, j, i0, i1)
	}
	s := &Section{Name: name}
	for i := i0; i <= i1; i++ {
		m, p := JI{J: j, I: i}, JI{J: j + 1, I: i}
		if !g.Water(m) || !g.Water(p) {
			continue
		}
		s.Minus = append(s.Minus, m)
		s.Plus = append(s.Plus, p)
		s.Faces = append(s.Faces, Face{UV: "v", J: j, I: i})
	}
	return s, nil
}

// SectionLine defines a section by the longitude (X) and
// latitude (Y) of its end points. The line must be either
// meridional (X0 == X1) or zonal (Y0 == Y1).
type SectionLine struct {
	Name string  `yaml:"name"`
	X0   float64 `yaml:"x0"`
	X1   float64 `yaml:"x1"`
	Y0   float64 `yaml:"y0"`
	Y1   float64 `yaml:"y1"`
}

// SectionFromLine converts l to a section on grid g. A meridional
// line crosses the u faces nearest to its longitude and a zonal line
// crosses the v faces nearest to its latitude.
func (g *Grid) SectionFromLine(l SectionLine) (*Section, error) {
	for _, p := range [][2]float64{{l.X0, l.Y0}, {l.X1, l.Y1}} {
		if err := g.checkInside(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("tef: section %s: %w", l.Name, err)
		}
	}
	lon, lat := g.lonAxis(), g.latAxis()
	switch {
	case l.X0 == l.X1 && l.Y0 != l.Y1:
		i := nearestIndex(midpoints(lon), l.X0)
		return g.SectionAlongU(l.Name, i, nearestIndex(lat, l.Y0), nearestIndex(lat, l.Y1))
	case l.Y0 == l.Y1 && l.X0 != l.X1:
		j := nearestIndex(midpoints(lat), l.Y0)
		return g.SectionAlongV(l.Name, j, nearestIndex(lon, l.X0), nearestIndex(lon, l.X1))
	default:
		return nil, fmt.Errorf("tef: section %s must be either meridional or zonal", l.Name)
	}
}

// midpoints returns the points halfway between adjacent values in x.
func midpoints(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	o := make([]float64, len(x)-1)
	for i := range o {
		o[i] = (x[i] + x[i+1]) / 2
	}
	return o
}

// LoadSectionLines reads a YAML list of section lines.
func LoadSectionLines(r io.Reader) ([]SectionLine, error) {
	var o []SectionLine
	if err := yaml.NewDecoder(r).Decode(&o); err != nil {
		return nil, fmt.Errorf("tef: reading section lines: %v", err)
	}
	return o, nil
}

// LoadSections reads a YAML list of sections.
func LoadSections(r io.Reader) ([]*Section, error) {
	var o []*Section
	if err := yaml.NewDecoder(r).Decode(&o); err != nil {
		return nil, fmt.Errorf("tef: reading sections: %v", err)
	}
	for _, sec := range o {
		if err := sec.validate(); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WriteSections writes sections to w as YAML.
func WriteSections(w io.Writer, sections []*Section) error {
	e := yaml.NewEncoder(w)
	if err := e.Encode(sections); err != nil {
		return fmt.Errorf("tef: writing sections: %v", err)
	}
	return e.Close()
}

// SectionNames returns the names of sections, sorted.
func SectionNames(sections []*Section) []string {
	o := make([]string, len(sections))
	for i, s := range sections {
		o[i] = s.Name
	}
	sort.Strings(o)
	return o
}

// MarshalYAML writes ji as a [j, i] pair.
func (ji JI) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []int{ji.J, ji.I} {
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(v)})
	}
	return n, nil
}

// UnmarshalYAML reads ji from a [j, i] pair.
func (ji *JI) UnmarshalYAML(n *yaml.Node) error {
	var v []int
	if err := n.Decode(&v); err != nil {
		return err
	}
	if len(v) != 2 {
		return fmt.Errorf("tef: grid index %v should have two elements", v)
	}
	ji.J, ji.I = v[0], v[1]
	return nil
}
