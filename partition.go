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

	"github.com/sirupsen/logrus"
)

// neighbors are the offsets to the North, East, South and West
// neighbors of a cell, in the order they are checked.
var neighbors = [4]JI{{J: 1, I: 0}, {J: 0, I: 1}, {J: -1, I: 0}, {J: 0, I: -1}}

// visitState tracks which cells are still available during one
// partitioning run. A single visitState is shared by every segment
// in the run, so a cell claimed by one segment is unavailable to
// all later segments.
type visitState struct {
	g *Grid

	// open is true for water cells that have not been claimed
	// and do not lie on a section line.
	open []bool

	// blocked[k] == serial means that cell k may not be claimed by
	// the segment currently being filled.
	blocked []int
	serial  int
}

func newVisitState(g *Grid, sections []*Section) *visitState {
	v := &visitState{
		g:       g,
		open:    append([]bool(nil), g.Mask...),
		blocked: make([]int, len(g.Mask)),
	}
	for _, s := range sections {
		for _, ji := range s.Line {
			v.open[g.index(ji)] = false
		}
	}
	return v
}

// next starts a new segment. Blocks from earlier segments are lifted.
func (v *visitState) next() { v.serial++ }

// block keeps the current segment from claiming cells.
func (v *visitState) block(cells []JI) {
	for _, ji := range cells {
		v.blocked[v.g.index(ji)] = v.serial
	}
}

func (v *visitState) available(ji JI) bool {
	if !v.g.InBounds(ji) {
		return false
	}
	k := v.g.index(ji)
	return v.open[k] && v.blocked[k] != v.serial
}

func (v *visitState) claim(ji JI) { v.open[v.g.index(ji)] = false }

// sideRef refers to one side of a section.
type sideRef struct {
	section int
	side    Side
}

// Partitioner divides the water in a grid into segments bounded
// by sections.
type Partitioner struct {
	// Seeds holds the names of the sections whose sides start new
	// segments, in processing order. If it is empty, every section
	// is a seed, in the order given to Partition. Sections that are
	// not seeds still bound segments.
	Seeds []string

	// Log receives progress messages. If it is nil,
	// logrus.StandardLogger() is used.
	Log logrus.FieldLogger
}

// Partition divides the water in g into segments using the default
// Partitioner.
func Partition(g *Grid, sections []*Section, rivers RiverPoints) (Segments, error) {
	return new(Partitioner).Partition(g, sections, rivers)
}

// Partition divides the water in g into segments bounded by sections.
// For each seed section, the minus side and then the plus side start a
// new segment unless that side already bounds an earlier segment.
// Each segment is flood filled from the first cell on its seeding side,
// and whenever the fill reaches a cell next to another section, that
// section side is added to the segment's bounding list and the fill is
// kept from crossing it. Rivers located in a segment are attached to it.
//
// Water cells that cannot be reached from any seed are not part of
// any segment.
func (p *Partitioner) Partition(g *Grid, sections []*Section, rivers RiverPoints) (Segments, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	byName := make(map[string]int, len(sections))
	for i, s := range sections {
		if err := s.check(g); err != nil {
			return nil, err
		}
		if _, ok := byName[s.Name]; ok {
			return nil, fmt.Errorf("tef: section %s is defined more than once", s.Name)
		}
		byName[s.Name] = i
	}

	var seeds []int
	if len(p.Seeds) == 0 {
		for i := range sections {
			seeds = append(seeds, i)
		}
	} else {
		for _, name := range p.Seeds {
			i, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSection, name)
			}
			seeds = append(seeds, i)
		}
	}

	adj := make(map[JI][]sideRef)
	for i, s := range sections {
		for _, side := range []Side{Plus, Minus} {
			for _, ji := range s.Cells(side) {
				adj[ji] = append(adj[ji], sideRef{section: i, side: side})
			}
		}
	}

	v := newVisitState(g, sections)
	segs := make(Segments)
	done := make(map[string]bool)
	for _, si := range seeds {
		for _, side := range []Side{Minus, Plus} {
			id := SegmentID(sections[si].Name, side)
			if done[id] {
				log.WithField("segment", id).Debug("skipping segment that is already bounded")
				continue
			}
			seg := fill(v, sections, adj, si, side, log)
			seg.Rivers = rivers.in(seg.JI)
			for _, b := range seg.Bounding {
				done[b] = true
			}
			segs[id] = seg
			log.WithFields(logrus.Fields{
				"segment":  id,
				"points":   len(seg.JI),
				"bounding": seg.Bounding,
				"rivers":   len(seg.Rivers),
			}).Info("segment complete")
		}
	}
	return segs, nil
}

// fill flood fills the segment seeded from the given side of
// sections[seed], claiming cells in v.
func fill(v *visitState, sections []*Section, adj map[JI][]sideRef, seed int, side Side, log logrus.FieldLogger) *Segment {
	s := sections[seed]
	seg := &Segment{JI: []JI{}, Bounding: []string{SegmentID(s.Name, side)}}

	v.next()
	v.block(s.Cells(side.Opposite()))
	consumed := map[int]bool{seed: true}

	// The seed is the first cell on the starting side. If it is land or
	// already claimed, the segment is empty.
	var frontier []JI
	if cells := s.Cells(side); len(cells) > 0 && v.available(cells[0]) {
		v.claim(cells[0])
		frontier = append(frontier, cells[0])
	}
	seg.JI = append(seg.JI, frontier...)

	// hits records every other section touched by cells and keeps
	// the fill from crossing it.
	hits := func(cells []JI) {
		for _, ji := range cells {
			for _, ref := range adj[ji] {
				if consumed[ref.section] {
					continue
				}
				consumed[ref.section] = true
				x := sections[ref.section]
				seg.Bounding = append(seg.Bounding, SegmentID(x.Name, ref.side))
				v.block(x.Cells(ref.side.Opposite()))
				log.WithFields(logrus.Fields{
					"segment": seg.Bounding[0],
					"section": x.Name,
					"side":    ref.side.String(),
				}).Debug("reached section")
			}
		}
	}
	hits(frontier)

	for len(frontier) > 0 {
		var next []JI
		for _, ji := range frontier {
			for _, d := range neighbors {
				n := JI{J: ji.J + d.J, I: ji.I + d.I}
				if v.available(n) {
					v.claim(n)
					next = append(next, n)
				}
			}
		}
		seg.JI = append(seg.JI, next...)
		hits(next)
		frontier = next
	}
	return seg
}
