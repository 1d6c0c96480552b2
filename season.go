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

import "time"

// DateRange is an inclusive range of dates.
type DateRange struct {
	Start, End time.Time
}

// SeasonNames are the keys of the map returned by Seasons, in
// calendar order.
var SeasonNames = []string{"full", "winter", "spring", "summer", "fall"}

// Seasons returns the full year and its four quarters (JFM, AMJ,
// JAS, OND), each running from noon of the first day to noon of the
// last day.
func Seasons(year int) map[string]DateRange {
	noon := func(m time.Month, d int) time.Time {
		return time.Date(year, m, d, 12, 0, 0, 0, time.UTC)
	}
	return map[string]DateRange{
		"full":   {noon(time.January, 1), noon(time.December, 31)},
		"winter": {noon(time.January, 1), noon(time.March, 31)},
		"spring": {noon(time.April, 1), noon(time.June, 30)},
		"summer": {noon(time.July, 1), noon(time.September, 30)},
		"fall":   {noon(time.October, 1), noon(time.December, 31)},
	}
}

// Contains reports whether t falls within r.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}
