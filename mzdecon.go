// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/524D/mzdecon/internal/param"
)

// Program name and version, stored in the snapshot
const progName = "mzDecon"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// ErrRangeSpec is returned for a range with min > max
var ErrRangeSpec = errors.New("invalid range specified")

// Command line parameters that are not processing parameters
type params struct {
	mzMLFilename  string
	paramFilename string
	outBase       string // Output files are <outBase>_Q1.mgf etc.
	dbFilename    string // SQLite spectrum database, none if empty
	snapFilename  string
	targets       string // Target list to flag identified clusters
	targetRTTol   float64
	charge        string
	rtWindow      string
	lowRT         float64
	upRT          float64
	debugClusters string // Print debug output for given cluster range
	verbosity     int
	proc          param.Params
}

var (
	par     params
	verbose bool
	quiet   bool
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "mzdecon [options] <mzMLfile>",
	Short: "Deconvolve DIA LC-MS data into pseudo MS/MS spectra",
	Long: `mzdecon detects isotope clusters in the MS1 and MS2 data of a
data-independent acquisition run, assigns co-eluting fragments to their
precursors and writes one pseudo MS/MS spectrum per precursor.

Spectra are written to <base>_Q1.mgf (MS1 precursors with 3 or more
isotopes), <base>_Q2.mgf (other MS1 precursors) and <base>_Q3.mgf
(unfragmented precursors found in the MS2 data).`,
	Example: `  mzdecon yeast.mzML
    Write yeast_Q1.mgf, yeast_Q2.mgf, yeast_Q3.mgf and the result
    snapshot yeast-decon.json.zst using default parameters.

  mzdecon -p diaumpire.params --charge 2:3 --db yeast.db yeast.mzML
    Idem, with parameters from diaumpire.params, precursor charges 2 and 3,
    and also store the spectra in SQLite database yeast.db.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			par.verbosity = infoVerbose
		}
		if quiet {
			par.verbosity = infoSilent
		}
		par.mzMLFilename = args[0]
		return sanitizeParams(cmd, &par)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), par)
	},
	SilenceUsage: true,
}

func init() {
	def := param.Default()
	f := rootCmd.Flags()
	f.StringVarP(&par.paramFilename, "params", "p", "",
		"parameter `file` with lines 'Key = value'")
	f.StringVarP(&par.outBase, "out", "o", "",
		"base `name` of output files (default: mzML file name without extension)")
	f.StringVar(&par.dbFilename, "db", "",
		"also write spectra to this SQLite database `file`")
	f.StringVar(&par.snapFilename, "snapshot", "",
		"`filename` of the result snapshot (default: <base>-decon.json.zst)")
	f.StringVar(&par.targets, "targets", "",
		"`file` with target precursors 'mz charge rt', marks matching clusters as identified")
	f.Float64Var(&par.targetRTTol, "target-rt", 1.0,
		"RT tolerance (minutes) for matching targets")
	f.StringVar(&par.charge, "charge", fmt.Sprintf("%d:%d", def.StartCharge, def.EndCharge),
		"precursor charge `range`")
	f.StringVar(&par.rtWindow, "rt", "",
		"only process scans in this RT `range` (minutes), e.g. 10:60")
	f.StringVar(&par.debugClusters, "debug", "",
		"print debug output for given cluster `range` e.g. 3:6")
	f.BoolVar(&verbose, "verbose", false, "print more verbose progress information")
	f.BoolVar(&quiet, "quiet", false, "don't print any output except for errors")

	f.Float64("ms1ppm", def.MS1PPM, "MS1 m/z tolerance (ppm)")
	f.Float64("ms2ppm", def.MS2PPM, "MS2 m/z tolerance (ppm)")
	f.Float64("corr", def.CorrThreshold, "minimum precursor-fragment correlation")
	f.Int("minfrag", def.MinFrag, "minimum number of fragments of a pseudo-spectrum")
	f.Int("threads", def.Threads, "number of worker threads (0: number of CPUs minus one)")
	f.String("smooth", def.SmoothMethod, "smoothing `method`: bspline or linear")
	for key, flag := range map[string]string{
		"MS1PPM":        "ms1ppm",
		"MS2PPM":        "ms2ppm",
		"CorrThreshold": "corr",
		"MinFrag":       "minfrag",
		"Threads":       "threads",
		"SmoothMethod":  "smooth",
	} {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			log.Fatalf("binding flag %s: %v", flag, err)
		}
	}
	rootCmd.Version = progVersion
}

// sanitizeParams reads the parameter file, applies the flags and fills
// missing filenames
func sanitizeParams(cmd *cobra.Command, par *params) error {
	var extension = filepath.Ext(par.mzMLFilename)
	var startName = par.mzMLFilename[0 : len(par.mzMLFilename)-len(extension)]
	if par.outBase == "" {
		par.outBase = startName
	}
	if par.snapFilename == "" {
		par.snapFilename = par.outBase + "-decon.json.zst"
	}

	if par.paramFilename != "" {
		v.SetConfigFile(par.paramFilename)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading parameter file %s: %w", par.paramFilename, err)
		}
	}
	if cmd.Flags().Changed("charge") {
		lo, hi, err := parseIntRange(par.charge, 1, 10)
		if err != nil {
			return fmt.Errorf("invalid charge range %q: %w", par.charge, err)
		}
		v.Set("StartCharge", lo)
		v.Set("EndCharge", hi)
	}
	var err error
	par.lowRT, par.upRT, err = parseFloat64Range(par.rtWindow, -math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return fmt.Errorf("invalid rt range %q: %w", par.rtWindow, err)
	}
	par.proc, err = param.FromViper(v)
	return err
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if progVersion == `Unknown` {
		rootCmd.Version = `Unknown
Please build this program with -ldflags "-X main.progVersion=<version>" so that the version is shown here.`
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
