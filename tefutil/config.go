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

package tefutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/tef"
	"github.com/spf13/cast"
)

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(name, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("tef: you need to specify the %s configuration variable", name)
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("tef: the %s directory doesn't exist: %v", name, err)
	}
	return f, nil
}

// checkInputFile makes sure that the input file is specified and exists,
// and expands any environment variables.
func checkInputFile(name, f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf("tef: you need to specify the %s configuration variable", name)
	}
	f = os.ExpandEnv(f)
	if _, err := os.Stat(f); err != nil {
		return f, fmt.Errorf("tef: problem with %s: %v", name, err)
	}
	return f, nil
}

// checkListType makes sure that the history file list type is valid.
func checkListType(t string) (string, error) {
	t = os.ExpandEnv(t)
	if t != "hourly" && t != "daily" {
		return t, fmt.Errorf("tef: ListType must be either hourly or daily but is currently set to `%s`", t)
	}
	return t, nil
}

// volumeFileName returns the output file name for the budget of the
// named volume in the given year.
func volumeFileName(dir, volume string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.yaml", strings.Replace(volume, " ", "_", -1), year))
}

// loadGrid reads a ROMS grid file.
func loadGrid(path string) (*tef.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tef: opening grid file: %v", err)
	}
	defer f.Close()
	return tef.LoadGrid(f)
}

// loadSections reads a sections file.
func loadSections(path string) ([]*tef.Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tef: opening sections file: %v", err)
	}
	defer f.Close()
	return tef.LoadSections(f)
}

// selectSections returns the sections with the given names, in the
// order of names, or all of the sections if names is empty.
func selectSections(sections []*tef.Section, names []string) ([]*tef.Section, error) {
	if len(names) == 0 {
		return sections, nil
	}
	byName := make(map[string]*tef.Section)
	for _, s := range sections {
		byName[s.Name] = s
	}
	o := make([]*tef.Section, len(names))
	for i, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %s", tef.ErrUnknownSection, n)
		}
		o[i] = s
	}
	return o, nil
}

// loadBulk reads the bulk TEF file for a section from dir.
func loadBulk(dir, section string) (*tef.Bulk, error) {
	f, err := os.Open(filepath.Join(dir, section+".nc"))
	if err != nil {
		return nil, fmt.Errorf("tef: opening bulk file for section %s: %v", section, err)
	}
	defer f.Close()
	return tef.LoadBulk(f)
}

// getStringMapString returns a map[string]string from the configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string) (map[string]string, error) {
	i := Cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		if err := json.NewDecoder(bytes.NewBufferString(v)).Decode(&o); err != nil {
			return nil, fmt.Errorf("tef: reading '%s': %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("tef: invalid type for '%s': %#v", varName, i)
	}
}
