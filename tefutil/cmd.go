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

// Package tefutil holds the command-line interface for the tef tools.
package tefutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/tef"
	"github.com/spatialmodel/tef/extract"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log receives the messages of all commands.
var Log = logrus.New()

// executor runs extraction subprocesses. The default runs them locally.
var executor extract.Executor

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	}

	// Options are the configuration options available to tef.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel is the minimum level of the log messages to print:
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "GridFile",
			usage: `
              GridFile is the path to the ROMS grid NetCDF file. It can
              include environment variables.`,
			shorthand:  "g",
			defaultVal: "grid.nc",
			flagsets:   []*pflag.FlagSet{extrasCmd.Flags(), sectionsCmd.Flags(), segmentsCmd.Flags(), moorCmd.Flags()},
		},
		{
			name: "ExtrasFile",
			usage: `
              ExtrasFile is the path where the grid with derived masks is written.`,
			defaultVal: "grid_extras.nc",
			flagsets:   []*pflag.FlagSet{extrasCmd.Flags()},
		},
		{
			name: "MinDepth",
			usage: `
              MinDepth is the minimum bathymetric depth [m]. Shallower depths are
              set to MinDepth. It is not enforced if it is zero.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{extrasCmd.Flags()},
		},
		{
			name: "SectionLines",
			usage: `
              SectionLines is the path to the YAML file listing the end points
              of each section.`,
			defaultVal: "sect_lines.yaml",
			flagsets:   []*pflag.FlagSet{sectionsCmd.Flags()},
		},
		{
			name: "SectionsFile",
			usage: `
              SectionsFile is the path to the YAML file holding the sections
              on the model grid. It is written by the sections command.`,
			defaultVal: "sections.yaml",
			flagsets:   []*pflag.FlagSet{sectionsCmd.Flags(), segmentsCmd.Flags(), twoLayerCmd.Flags(), budgetCmd.Flags(), extractSectionsCmd.Flags()},
		},
		{
			name: "SectionNames",
			usage: `
              SectionNames are the sections to use. All sections in SectionsFile
              are used if it is empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{twoLayerCmd.Flags(), extractSectionsCmd.Flags()},
		},
		{
			name: "TwoLayerOutputs",
			usage: `
              TwoLayerOutputs are extra columns of the twolayer table, as a
              map of column names to expressions. The expressions can use
              qin, qout and the mean inflow and outflow concentration of each
              tracer, for example salt_in and salt_out.`,
			defaultVal: map[string]string{
				"salt_transport": "qin * salt_in + qout * salt_out",
			},
			flagsets: []*pflag.FlagSet{twoLayerCmd.Flags()},
		},
		{
			name: "RiversFile",
			usage: `
              RiversFile is the path to the YAML file listing the river
              point sources and their rho-grid indices. Rivers are not
              attached to segments if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{segmentsCmd.Flags()},
		},
		{
			name: "Seeds",
			usage: `
              Seeds are the names of the sections whose sides start new
              segments, in processing order. All sections are used if it
              is empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{segmentsCmd.Flags()},
		},
		{
			name: "SegmentsFile",
			usage: `
              SegmentsFile is the path to the YAML segment table written by
              the segments command.`,
			defaultVal: "segments.yaml",
			flagsets:   []*pflag.FlagSet{segmentsCmd.Flags(), budgetCmd.Flags()},
		},
		{
			name: "BulkDir",
			usage: `
              BulkDir is the directory holding the bulk TEF NetCDF file of
              each section, named <section>.nc.`,
			defaultVal: "bulk",
			flagsets:   []*pflag.FlagSet{twoLayerCmd.Flags(), budgetCmd.Flags()},
		},
		{
			name: "VolumesFile",
			usage: `
              VolumesFile is the path to the TOML file defining the budget volumes.`,
			defaultVal: "volumes.toml",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags()},
		},
		{
			name: "Volumes",
			usage: `
              Volumes are the names of the volumes to calculate budgets for.
              All volumes in VolumesFile are used if it is empty.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags()},
		},
		{
			name: "SegmentSeries",
			usage: `
              SegmentSeries is the path to the NetCDF file of hourly segment volumes.`,
			defaultVal: "segments.nc",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags()},
		},
		{
			name: "RiverSeries",
			usage: `
              RiverSeries is the path to the NetCDF file of daily river transport.
              River flow is left out of the budget if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags()},
		},
		{
			name: "Year",
			usage: `
              Year is the year of the budget.`,
			defaultVal: 2022,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory where output files are written.
              It can include environment variables.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), extractCmd.PersistentFlags()},
		},
		{
			name: "HistoryRoot",
			usage: `
              HistoryRoot is the directory holding the ROMS output of each run,
              in directories named <gtagex>/f<date>.`,
			defaultVal: "${HOME}/roms_out",
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "Gtagex",
			usage: `
              Gtagex is the name of the model run, for example cas6_v3_lo8b.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the first day to extract, in the format 2006.01.02.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the last day to extract, in the format 2006.01.02.
              It is the same as StartDate if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "ListType",
			usage: `
              ListType is the history file list to use for moorings:
              hourly or daily.`,
			defaultVal: "hourly",
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "TempDir",
			usage: `
              TempDir is the directory for the temporary files of each
              extraction. It is removed when the extraction is finished
              unless KeepTemp is true.`,
			defaultVal: "tef_temp",
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "KeepTemp",
			usage: `
              KeepTemp specifies whether to keep the temporary files.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "MaxProcs",
			usage: `
              MaxProcs is the number of extraction subprocesses that are
              started before waiting for them all to finish.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "MaxRetries",
			usage: `
              MaxRetries is the number of times a failed subprocess is retried.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "Bio",
			usage: `
              Bio specifies whether to extract the biogeochemical tracers.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{extractCmd.PersistentFlags()},
		},
		{
			name: "Moor.Name",
			usage: `
              Moor.Name is the name of the mooring.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "Moor.Lon",
			usage: `
              Moor.Lon is the longitude of the mooring.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "Moor.Lat",
			usage: `
              Moor.Lat is the latitude of the mooring.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "Moor.TSA",
			usage: `
              Moor.TSA specifies whether to extract salinity, temperature and
              the vertical diffusivities.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "Moor.Vel",
			usage: `
              Moor.Vel specifies whether to extract velocities.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
		{
			name: "Moor.SurfBot",
			usage: `
              Moor.SurfBot specifies whether to extract surface and bottom fluxes.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{moorCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("TEF")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
			case bool:
				set.Bool(option.name, option.defaultVal.(bool), option.usage)
			case int:
				set.Int(option.name, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64(option.name, option.defaultVal.(float64), option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				json.NewEncoder(b).Encode(option.defaultVal)
				set.String(option.name, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(gridCmd)
	gridCmd.AddCommand(extrasCmd)
	Root.AddCommand(sectionsCmd)
	Root.AddCommand(segmentsCmd)
	Root.AddCommand(twoLayerCmd)
	Root.AddCommand(budgetCmd)
	Root.AddCommand(extractCmd)
	extractCmd.AddCommand(moorCmd)
	extractCmd.AddCommand(extractSectionsCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and sets the log level.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("tef: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("tef: invalid loglevel: %v", err)
	}
	Log.SetLevel(level)
	return nil
}

// stringSlice returns a configuration variable that holds a list
// of strings, with environment variables expanded.
func stringSlice(varName string) ([]string, error) {
	s, err := cast.ToStringSliceE(Cfg.Get(varName))
	if err != nil {
		return nil, fmt.Errorf("tef: reading '%s': %v", varName, err)
	}
	return expandStringSlice(s), nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "tef",
	Short: "Segment, exchange flow and budget tools for ROMS output.",
	Long: `tef divides the water of a ROMS model grid into segments bounded by
sections, extracts mooring and section time series from model output, and
computes total exchange flow (TEF) and volume budgets.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'TEF_var' where 'var' is the
name of the variable to be set. File and directory paths may contain
environment variables.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of tef.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("tef v%s\n", tef.Version)
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:               "grid",
	Short:             "Grid utilities.",
	Long:              `grid holds commands that process the ROMS grid file.`,
	DisableAutoGenTag: true,
}

var extrasCmd = &cobra.Command{
	Use:   "extras",
	Short: "Add derived masks to a grid file",
	Long: `extras writes the grid in GridFile to ExtrasFile with the u, v and psi
masks added and an optional minimum depth enforced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gridFile, err := checkInputFile("GridFile", Cfg.GetString("GridFile"))
		if err != nil {
			return err
		}
		outFile, err := checkOutputFile("ExtrasFile", Cfg.GetString("ExtrasFile"))
		if err != nil {
			return err
		}
		return GridExtras(gridFile, outFile, Cfg.GetFloat64("MinDepth"))
	},
	DisableAutoGenTag: true,
}

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "Place sections on the grid",
	Long: `sections converts the section end points in SectionLines into
sections on the grid in GridFile and writes them to SectionsFile.
Meridional lines cross u faces and zonal lines cross v faces.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gridFile, err := checkInputFile("GridFile", Cfg.GetString("GridFile"))
		if err != nil {
			return err
		}
		lines, err := checkInputFile("SectionLines", Cfg.GetString("SectionLines"))
		if err != nil {
			return err
		}
		outFile, err := checkOutputFile("SectionsFile", Cfg.GetString("SectionsFile"))
		if err != nil {
			return err
		}
		return MakeSections(gridFile, lines, outFile)
	},
	DisableAutoGenTag: true,
}

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Partition the grid into segments",
	Long: `segments divides the water in GridFile into segments bounded by the
sections in SectionsFile, attaches the rivers in RiversFile and writes
the segment table to SegmentsFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gridFile, err := checkInputFile("GridFile", Cfg.GetString("GridFile"))
		if err != nil {
			return err
		}
		sectionsFile, err := checkInputFile("SectionsFile", Cfg.GetString("SectionsFile"))
		if err != nil {
			return err
		}
		var riversFile string
		if Cfg.GetString("RiversFile") != "" {
			if riversFile, err = checkInputFile("RiversFile", Cfg.GetString("RiversFile")); err != nil {
				return err
			}
		}
		seeds, err := stringSlice("Seeds")
		if err != nil {
			return err
		}
		outFile, err := checkOutputFile("SegmentsFile", Cfg.GetString("SegmentsFile"))
		if err != nil {
			return err
		}
		_, err = MakeSegments(gridFile, sectionsFile, riversFile, seeds, outFile)
		return err
	},
	DisableAutoGenTag: true,
}

var twoLayerCmd = &cobra.Command{
	Use:   "twolayer",
	Short: "Summarize two-layer exchange flow",
	Long: `twolayer splits the bulk TEF transport of each section into inflowing
and outflowing layers and prints the time-mean transports and salinities,
along with the columns in TwoLayerOutputs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sectionsFile, err := checkInputFile("SectionsFile", Cfg.GetString("SectionsFile"))
		if err != nil {
			return err
		}
		all, err := loadSections(sectionsFile)
		if err != nil {
			return err
		}
		names, err := stringSlice("SectionNames")
		if err != nil {
			return err
		}
		sections, err := selectSections(all, names)
		if err != nil {
			return err
		}
		sn := make([]string, len(sections))
		for i, s := range sections {
			sn[i] = s.Name
		}
		outputs, err := getStringMapString("TwoLayerOutputs")
		if err != nil {
			return err
		}
		return TwoLayer(os.ExpandEnv(Cfg.GetString("BulkDir")), sn, outputs, cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Calculate volume budgets",
	Long: `budget calculates the daily volume budget of each volume in VolumesFile
from the segment volumes, river flow and section transport, and writes the
annual and seasonal means to OutputDir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &BudgetConfig{Year: Cfg.GetInt("Year")}
		var err error
		for _, f := range []struct {
			name string
			dst  *string
		}{
			{"VolumesFile", &c.VolumesFile},
			{"SectionsFile", &c.SectionsFile},
			{"SegmentsFile", &c.SegmentsFile},
			{"SegmentSeries", &c.SegmentSeriesFile},
		} {
			if *f.dst, err = checkInputFile(f.name, Cfg.GetString(f.name)); err != nil {
				return err
			}
		}
		if Cfg.GetString("RiverSeries") != "" {
			if c.RiverSeriesFile, err = checkInputFile("RiverSeries", Cfg.GetString("RiverSeries")); err != nil {
				return err
			}
		}
		c.BulkDir = os.ExpandEnv(Cfg.GetString("BulkDir"))
		c.OutputDir = os.ExpandEnv(Cfg.GetString("OutputDir"))
		if c.Volumes, err = stringSlice("Volumes"); err != nil {
			return err
		}
		return Budget(c)
	},
	DisableAutoGenTag: true,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract data from ROMS history files",
	Long: `extract holds commands that subset ROMS history files with the NCO
tools ncks and ncrcat, which must be installed.`,
	DisableAutoGenTag: true,
}

// extractConfig returns the configuration shared by the extract commands.
func extractConfig() (*ExtractConfig, error) {
	c := &ExtractConfig{
		HistoryRoot: os.ExpandEnv(Cfg.GetString("HistoryRoot")),
		Gtagex:      os.ExpandEnv(Cfg.GetString("Gtagex")),
		StartDate:   Cfg.GetString("StartDate"),
		EndDate:     Cfg.GetString("EndDate"),
		TempDir:     os.ExpandEnv(Cfg.GetString("TempDir")),
		OutputDir:   os.ExpandEnv(Cfg.GetString("OutputDir")),
		KeepTemp:    Cfg.GetBool("KeepTemp"),
		Runner: &extract.Runner{
			MaxProcs:   Cfg.GetInt("MaxProcs"),
			MaxRetries: uint64(Cfg.GetInt("MaxRetries")),
			Exec:       executor,
			Log:        Log,
		},
	}
	if c.Gtagex == "" {
		return nil, fmt.Errorf("tef: you need to specify the Gtagex configuration variable")
	}
	if c.StartDate == "" {
		return nil, fmt.Errorf("tef: you need to specify the StartDate configuration variable")
	}
	return c, nil
}

var moorCmd = &cobra.Command{
	Use:   "moor",
	Short: "Extract a mooring time series",
	Long: `moor extracts the time series at the rho point nearest to Moor.Lon and
Moor.Lat from each history file and concatenates them into
OutputDir/<Moor.Name>_<StartDate>_<EndDate>.nc.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := extractConfig()
		if err != nil {
			return err
		}
		if c.ListType, err = checkListType(Cfg.GetString("ListType")); err != nil {
			return err
		}
		gridFile, err := checkInputFile("GridFile", Cfg.GetString("GridFile"))
		if err != nil {
			return err
		}
		m := &MooringConfig{
			Name:     Cfg.GetString("Moor.Name"),
			GridFile: gridFile,
			Lon:      Cfg.GetFloat64("Moor.Lon"),
			Lat:      Cfg.GetFloat64("Moor.Lat"),
			TSA:      Cfg.GetBool("Moor.TSA"),
			Vel:      Cfg.GetBool("Moor.Vel"),
			Bio:      Cfg.GetBool("Bio"),
			SurfBot:  Cfg.GetBool("Moor.SurfBot"),
		}
		if m.Name == "" {
			return fmt.Errorf("tef: you need to specify the Moor.Name configuration variable")
		}
		return ExtractMooring(context.Background(), c, m)
	},
	DisableAutoGenTag: true,
}

var extractSectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "Extract section fields",
	Long: `sections extracts hourly fields on both sides of each section in
SectionsFile (or those listed in SectionNames) and concatenates them into
OutputDir/<section>.nc.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := extractConfig()
		if err != nil {
			return err
		}
		sectionsFile, err := checkInputFile("SectionsFile", Cfg.GetString("SectionsFile"))
		if err != nil {
			return err
		}
		names, err := stringSlice("SectionNames")
		if err != nil {
			return err
		}
		return ExtractSections(context.Background(), c, sectionsFile, names, Cfg.GetBool("Bio"))
	},
	DisableAutoGenTag: true,
}
