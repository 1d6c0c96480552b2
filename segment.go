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

// Segment is a region of water cells bounded by sections.
type Segment struct {
	// JI holds the cells of the segment in the order they were claimed.
	JI []JI `yaml:"ji_list"`

	// Bounding holds the IDs of the section sides that close off the
	// segment, starting with the side that seeded it.
	Bounding []string `yaml:"bounding_list"`

	// Rivers holds the names of the point sources inside the segment.
	Rivers []string `yaml:"riv_list"`
}

// SegmentID returns the identifier of the segment seeded from the
// given side of the named section, for example "ai1_p".
func SegmentID(section string, side Side) string {
	return fmt.Sprintf("%s_%s", section, side)
}

// Segments maps segment IDs to segments.
type Segments map[string]*Segment

// IDs returns the segment IDs in sorted order.
func (s Segments) IDs() []string {
	o := make([]string, 0, len(s))
	for id := range s {
		o = append(o, id)
	}
	sort.Strings(o)
	return o
}

// Bounds returns every section side that bounds any of the segments.
func (s Segments) Bounds() map[string]bool {
	o := make(map[string]bool)
	for _, seg := range s {
		for _, b := range seg.Bounding {
			o[b] = true
		}
	}
	return o
}

// Owner returns the ID of the segment containing ji, or false if no
// segment contains it.
func (s Segments) Owner(ji JI) (string, bool) {
	for _, id := range s.IDs() {
		for _, c := range s[id].JI {
			if c == ji {
				return id, true
			}
		}
	}
	return "", false
}

// WriteSegments writes s to w as YAML keyed by segment ID.
func WriteSegments(w io.Writer, s Segments) error {
	e := yaml.NewEncoder(w)
	if err := e.Encode(map[string]*Segment(s)); err != nil {
		return fmt.Errorf("tef: writing segments: %v", err)
	}
	return e.Close()
}

// LoadSegments reads segments written by WriteSegments.
func LoadSegments(r io.Reader) (Segments, error) {
	o := make(Segments)
	if err := yaml.NewDecoder(r).Decode(&o); err != nil {
		return nil, fmt.Errorf("tef: reading segments: %v", err)
	}
	return o, nil
}
