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

// Command tef partitions ROMS grids into segments and computes exchange
// flow and volume budgets.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/tef/tefutil"
)

func main() {
	if err := tefutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
