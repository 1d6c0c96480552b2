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

// Package extract builds and runs the external NCO commands that pull
// mooring and section data out of ROMS history files.
package extract

import (
	"fmt"
	"path/filepath"
	"time"
)

// DateFormat is the format of the dates in history directory names.
const DateFormat = "2006.01.02"

// The kinds of history file lists.
const (
	Hourly = "hourly"
	Daily  = "daily"
)

// HistoryFiles returns the paths of the history files under
// root/gtagex for the days ds0 through ds1, which are formatted as
// DateFormat. If ds1 is empty it is set to ds0.
//
// An hourly list has every file of the first day (ocean_his_0001
// through ocean_his_0025) and every file but the first on the following
// days, because ocean_his_0001 of a day repeats ocean_his_0025 of the day
// before. A daily list has ocean_his_0001 of each day.
func HistoryFiles(root, gtagex, ds0, ds1, listType string) ([]string, error) {
	if ds1 == "" {
		ds1 = ds0
	}
	t0, err := time.Parse(DateFormat, ds0)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid start date: %v", err)
	}
	t1, err := time.Parse(DateFormat, ds1)
	if err != nil {
		return nil, fmt.Errorf("extract: invalid end date: %v", err)
	}
	if t1.Before(t0) {
		return nil, fmt.Errorf("extract: end date %s is before start date %s", ds1, ds0)
	}
	var o []string
	for t := t0; !t.After(t1); t = t.AddDate(0, 0, 1) {
		dir := filepath.Join(root, gtagex, "f"+t.Format(DateFormat))
		var first, last int
		switch listType {
		case Hourly:
			first, last = 2, 25
			if t.Equal(t0) {
				first = 1
			}
		case Daily:
			first, last = 1, 1
		default:
			return nil, fmt.Errorf("extract: invalid list type %q", listType)
		}
		for n := first; n <= last; n++ {
			o = append(o, filepath.Join(dir, fmt.Sprintf("ocean_his_%04d.nc", n)))
		}
	}
	return o, nil
}
