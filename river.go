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

	"gopkg.in/yaml.v3"
)

// River is a point source of fresh water at a rho point.
type River struct {
	Name string `yaml:"name"`
	J    int    `yaml:"jrho"`
	I    int    `yaml:"irho"`
}

// RiverPoints maps rho-grid locations to the names of the
// point sources there.
type RiverPoints map[JI]string

// NewRiverPoints indexes rivers by location. Two rivers at the
// same location are an error.
func NewRiverPoints(rivers []River) (RiverPoints, error) {
	o := make(RiverPoints, len(rivers))
	for _, r := range rivers {
		ji := JI{J: r.J, I: r.I}
		if other, ok := o[ji]; ok {
			return nil, fmt.Errorf("tef: rivers %s and %s are both at %v", other, r.Name, ji)
		}
		o[ji] = r.Name
	}
	return o, nil
}

// LoadRivers reads a YAML list of rivers.
func LoadRivers(r io.Reader) (RiverPoints, error) {
	var rivers []River
	if err := yaml.NewDecoder(r).Decode(&rivers); err != nil {
		return nil, fmt.Errorf("tef: reading rivers: %v", err)
	}
	return NewRiverPoints(rivers)
}

// in returns the names of the rivers located at any of cells,
// in the order of cells.
func (rp RiverPoints) in(cells []JI) []string {
	o := []string{}
	if len(rp) == 0 {
		return o
	}
	for _, ji := range cells {
		if name, ok := rp[ji]; ok {
			o = append(o, name)
		}
	}
	return o
}
