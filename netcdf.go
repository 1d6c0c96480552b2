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
	"math"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// timeUnits is the units attribute of the time variable in
// the files written by this package.
const timeUnits = "seconds since 1970-01-01 00:00:00"

// hasVar reports whether variable name is in f.
func hasVar(f *cdf.File, name string) bool {
	for _, v := range f.Header.Variables() {
		if v == name {
			return true
		}
	}
	return false
}

// readVar reads all of variable name from f. Integer and
// single-precision variables are converted to float64.
func readVar(f *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, fmt.Errorf("variable %s not in file", name)
	}
	n := 1
	for _, d := range dims {
		if d == 0 {
			return nil, fmt.Errorf("variable %s has a record dimension, which is not supported", name)
		}
		n *= d
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading netcdf variable %s: %v", name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []uint8:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("netcdf variable %s has unsupported type %T", name, buf)
	}
	return data, nil
}

// writeVar writes data to the double-precision variable name in f.
func writeVar(f *cdf.File, name string, data *sparse.DenseArray) error {
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	if n == 0 {
		return nil
	}
	// The full extent must be given; with a nil end the writer
	// reports EOF after the last element.
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	w := f.Writer(name, start, end)
	_, err := w.Write(data.Elements)
	return err
}

// readTime reads the time variable of f, in seconds since 1970.
func readTime(f *cdf.File) ([]time.Time, error) {
	d, err := readVar(f, "time")
	if err != nil {
		return nil, err
	}
	o := make([]time.Time, len(d.Elements))
	for i, s := range d.Elements {
		sec, frac := math.Modf(s)
		o[i] = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return o, nil
}

// timeArray converts t to seconds since 1970.
func timeArray(t []time.Time) *sparse.DenseArray {
	o := sparse.ZerosDense(len(t))
	for i, tt := range t {
		o.Elements[i] = float64(tt.UnixNano()) / 1e9
	}
	return o
}

// stringAttribute returns global attribute a of f as a string, or
// "" if it is missing.
func stringAttribute(f *cdf.File, a string) string {
	s, _ := f.Header.GetAttribute("", a).(string)
	return s
}
