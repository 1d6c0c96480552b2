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
	"errors"
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func testBulk(sign float64) *Bulk {
	q := mat.NewDense(2, 3, []float64{-2, 0, 3, -1, 4, 1})
	q.Scale(sign, q)
	return &Bulk{
		Time: []time.Time{
			time.Date(2022, time.January, 1, 12, 0, 0, 0, time.UTC),
			time.Date(2022, time.January, 2, 12, 0, 0, 0, time.UTC),
		},
		Q: q,
		Tracers: map[string]*mat.Dense{
			"salt": mat.NewDense(2, 3, []float64{30, 0, 32, 29, 31, 33}),
			"temp": mat.NewDense(2, 3, []float64{10, 0, 8, 11, 9, 7}),
		},
	}
}

func TestTwoLayer(t *testing.T) {
	for _, test := range []struct {
		sign   float64
		inSign int
	}{{1, 1}, {-1, -1}} {
		tl, err := testBulk(test.sign).TwoLayer()
		if err != nil {
			t.Fatal(err)
		}
		if tl.InSign != test.inSign {
			t.Errorf("want in sign %d but have %d", test.inSign, tl.InSign)
		}
		if want := []float64{3, 5}; !reflect.DeepEqual(tl.Qin, want) {
			t.Errorf("Qin: want %v but have %v", want, tl.Qin)
		}
		if want := []float64{-2, -1}; !reflect.DeepEqual(tl.Qout, want) {
			t.Errorf("Qout: want %v but have %v", want, tl.Qout)
		}
		if want := []float64{32, 31.4}; !reflect.DeepEqual(tl.In["salt"], want) {
			t.Errorf("salt in: want %v but have %v", want, tl.In["salt"])
		}
		if want := []float64{30, 29}; !reflect.DeepEqual(tl.Out["salt"], want) {
			t.Errorf("salt out: want %v but have %v", want, tl.Out["salt"])
		}
		if want := []float64{8, 8.6}; !reflect.DeepEqual(tl.In["temp"], want) {
			t.Errorf("temp in: want %v but have %v", want, tl.In["temp"])
		}
	}
}

func TestTwoLayerAmbiguous(t *testing.T) {
	b := testBulk(1)
	b.Tracers["salt"] = mat.NewDense(2, 3, []float64{30, 30, 30, 30, 30, 30})
	if _, err := b.TwoLayer(); !errors.Is(err, ErrAmbiguousSign) {
		t.Errorf("want %v but have %v", ErrAmbiguousSign, err)
	}
}

func TestTwoLayerBadInput(t *testing.T) {
	b := testBulk(1)
	delete(b.Tracers, "salt")
	if _, err := b.TwoLayer(); err == nil {
		t.Error("bulk data without salt should be an error")
	}
	b = testBulk(1)
	b.Time = b.Time[:1]
	if _, err := b.TwoLayer(); err == nil {
		t.Error("mismatched times should be an error")
	}
}
