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
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

func TestGodinKernel(t *testing.T) {
	if len(godinKernel) != 71 {
		t.Errorf("want kernel length 71 but have %d", len(godinKernel))
	}
	if s := floats.Sum(godinKernel); math.Abs(s-1) > 1e-12 {
		t.Errorf("kernel should sum to 1 but sums to %g", s)
	}
	for i := range godinKernel {
		if godinKernel[i] != godinKernel[len(godinKernel)-1-i] {
			t.Fatalf("kernel is not symmetric at %d", i)
		}
	}
}

func TestGodin(t *testing.T) {
	x := make([]float64, 200)
	for i := range x {
		// A linear trend plus a semidiurnal tide.
		x[i] = 3*float64(i) + 10*math.Sin(2*math.Pi*float64(i)/12.42)
	}
	y := Godin(x)
	if len(y) != len(x) {
		t.Fatalf("want length %d but have %d", len(x), len(y))
	}
	for i, v := range y {
		undefined := i < 35 || i >= len(x)-35
		if undefined != math.IsNaN(v) {
			t.Errorf("%d: have %g", i, v)
			continue
		}
		if !undefined && math.Abs(v-3*float64(i)) > 0.05 {
			t.Errorf("%d: want about %g but have %g", i, 3*float64(i), v)
		}
	}

	for _, v := range Godin(make([]float64, 70)) {
		if !math.IsNaN(v) {
			t.Errorf("a record shorter than the kernel should be all NaN")
			break
		}
	}
}

func TestSeasons(t *testing.T) {
	s := Seasons(2022)
	if len(s) != len(SeasonNames) {
		t.Fatalf("want %d seasons but have %d", len(SeasonNames), len(s))
	}
	for _, name := range SeasonNames {
		if _, ok := s[name]; !ok {
			t.Errorf("missing season %s", name)
		}
	}
	summer := s["summer"]
	if !summer.Contains(time.Date(2022, time.July, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("summer should contain noon on July 1")
	}
	if summer.Contains(time.Date(2022, time.October, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("summer should not contain October 1")
	}
	if !s["full"].Start.Equal(s["winter"].Start) || !s["full"].End.Equal(s["fall"].End) {
		t.Error("the full year should span winter through fall")
	}
}
