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

	"gonum.org/v1/gonum/floats"
)

// godinHalfWidth is the number of hourly values at each end of a
// record that the Godin filter leaves undefined.
const godinHalfWidth = 35

// godinKernel is the normalized convolution of 24, 24 and 25 hour
// boxcar filters.
var godinKernel = func() []float64 {
	box := func(n int) []float64 {
		o := make([]float64, n)
		for i := range o {
			o[i] = 1
		}
		return o
	}
	k := convolve(convolve(box(24), box(24)), box(25))
	floats.Scale(1/floats.Sum(k), k)
	return k
}()

func convolve(a, b []float64) []float64 {
	o := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			o[i+j] += av * bv
		}
	}
	return o
}

// LowPass is a filter applied to an evenly spaced time series.
type LowPass func(x []float64) []float64

// Godin applies the Godin tidal filter to hourly values x. The
// result has the same length as x, with the first and last 35
// values set to NaN.
func Godin(x []float64) []float64 {
	o := make([]float64, len(x))
	for k := range o {
		if k < godinHalfWidth || k >= len(x)-godinHalfWidth {
			o[k] = math.NaN()
			continue
		}
		o[k] = floats.Dot(godinKernel, x[k-godinHalfWidth:k+godinHalfWidth+1])
	}
	return o
}
