package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/524D/mzdecon/internal/cluster"
	"github.com/524D/mzdecon/internal/deconv"
	"github.com/524D/mzdecon/internal/detect"
	"github.com/524D/mzdecon/internal/mgf"
	"github.com/524D/mzdecon/internal/mzml"
	"github.com/524D/mzdecon/internal/param"
	"github.com/524D/mzdecon/internal/peakcurve"
	"github.com/524D/mzdecon/internal/scan"
	"github.com/524D/mzdecon/internal/snapshot"
	"github.com/524D/mzdecon/internal/specdb"
	"github.com/524D/mzdecon/internal/workpool"
)

// stageTimer prints the duration of pipeline stages in verbose mode
type stageTimer struct {
	verbosity int
	t         time.Time
	open      bool
}

func (s *stageTimer) start(format string, a ...any) {
	s.done()
	if s.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, format+": ", a...)
	}
	s.t = time.Now()
	s.open = true
}

func (s *stageTimer) done() {
	if s.open && s.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(s.t))
	}
	s.open = false
}

// run reads an mzML file, deconvolves it, and writes the spectra and the
// snapshot
func run(ctx context.Context, par params) error {
	st := stageTimer{verbosity: par.verbosity}
	defer st.done()

	st.start("Reading MS data from %s", par.mzMLFilename)
	coll, err := readCollection(par.mzMLFilename)
	if err != nil {
		return err
	}
	if par.rtWindow != "" {
		if coll, err = restrictRT(coll, par.lowRT, par.upRT); err != nil {
			return err
		}
	}
	if par.verbosity == infoVerbose {
		lo, hi := coll.RTRange()
		st.done()
		fmt.Fprintf(os.Stderr, "%d MS1 scans, %d DIA windows, RT %.2f-%.2f\n",
			len(coll.MS1()), len(coll.Windows()), lo, hi)
	}

	var store cluster.Store
	st.start("Detecting peak curves")
	detectCurves(ctx, coll, par.proc, &store)

	st.start("Grouping isotope clusters")
	groupClusters(ctx, coll, par.proc, &store)

	if par.targets != "" {
		st.start("Matching targets from %s", par.targets)
		targets, err := readTargets(par.targets)
		if err != nil {
			return err
		}
		n := markIdentified(store.ClustersOf(1, -1), targets, par.targetRTTol, par.proc.MS1PPM)
		if par.verbosity != infoSilent {
			st.done()
			fmt.Fprintf(os.Stderr, "%d of %d targets matched a cluster\n", n, len(targets))
		}
	}

	st.start("Deconvolving %d windows", len(coll.Windows()))
	results := deconvolve(ctx, coll, par.proc, &store)
	store.ReleaseCurves()

	st.start("Writing spectra")
	sinks, closeSinks, err := openSinks(par)
	if err != nil {
		return err
	}
	em := deconv.NewEmitter(par.proc.MinFrag, sinks...)
	emitErr := emit(ctx, coll, par.proc, &store, em)
	if err := errors.Join(emitErr, closeSinks()); err != nil {
		return err
	}
	if par.verbosity != infoSilent {
		st.done()
		fmt.Fprintf(os.Stderr, "%d clusters, %d pseudo-spectra written\n", len(store.Clusters), em.Claimed())
	}

	debugLogClusters(par, store.Clusters)

	st.start("Writing snapshot %s", par.snapFilename)
	snap := snapshot.FromRun(store.Clusters, results)
	snap.Program = progName + " " + progVersion
	snap.Input = par.mzMLFilename
	return snapshot.WriteFile(par.snapFilename, snap)
}

func readCollection(fileName string) (*scan.Collection, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mzML, err := mzml.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fileName, err)
	}
	return mzML.Collection()
}

// restrictRT returns a collection with only the scans in [lo,hi]
func restrictRT(coll *scan.Collection, lo, hi float64) (*scan.Collection, error) {
	scans := append([]scan.Scan(nil), scan.ScansInRT(coll.MS1(), lo, hi)...)
	for _, w := range coll.Windows() {
		scans = append(scans, scan.ScansInRT(coll.MS2(w.Index), lo, hi)...)
	}
	return scan.NewCollection(scans)
}

// detectCurves extracts the traces of MS1 and of every DIA window, splits
// them into peak curves and adds the curves to the store
func detectCurves(ctx context.Context, coll *scan.Collection, p param.Params, store *cluster.Store) {
	windows := coll.Windows()
	traces := make([][]*peakcurve.Curve, len(windows)+1)
	workpool.New("traces", p.Threads).Run(ctx, len(traces), func(u int) error {
		if u == 0 {
			traces[u] = detect.ExtractTraces(coll.MS1(), 1, -1, p.Trace(1))
		} else {
			w := windows[u-1].Index
			traces[u] = detect.ExtractTraces(coll.MS2(w), 2, w, p.Trace(2))
		}
		return nil
	})

	var all []*peakcurve.Curve
	for _, t := range traces {
		all = append(all, t...)
	}
	seg := p.Segmenter()
	children := make([][]*peakcurve.Curve, len(all))
	workpool.New("segmentation", p.Threads).Run(ctx, len(all), func(u int) error {
		children[u] = seg.Split(all[u])
		return nil
	})
	for _, cs := range children {
		for _, c := range cs {
			store.AddCurve(c)
		}
	}
}

// groupClusters builds the isotope clusters of MS1 and of every DIA window
// and adds them to the store
func groupClusters(ctx context.Context, coll *scan.Collection, p param.Params, store *cluster.Store) {
	windows := coll.Windows()
	clusters := make([][]*cluster.Cluster, len(windows)+1)
	workpool.New("isotopes", p.Threads).Run(ctx, len(clusters), func(u int) error {
		if u == 0 {
			clusters[u] = detect.GroupIsotopes(store, store.CurvesOf(1, -1), 1, -1, p.Group(1))
		} else {
			w := windows[u-1].Index
			clusters[u] = detect.GroupIsotopes(store, store.CurvesOf(2, w), 2, w, p.Group(2))
		}
		return nil
	})
	for _, cs := range clusters {
		for _, c := range cs {
			store.AddCluster(c)
		}
	}
}

// deconvolve assigns the fragment curves of every window to precursor
// clusters. Results are in window order.
func deconvolve(ctx context.Context, coll *scan.Collection, p param.Params, store *cluster.Store) []deconv.Result {
	windows := coll.Windows()
	ms1 := store.ClustersOf(1, -1)
	d := deconv.Deconvolver{Store: store, Params: p.Deconv()}
	results := make([]deconv.Result, len(windows))
	workpool.New("deconvolution", p.Threads).Run(ctx, len(windows), func(u int) error {
		w := windows[u]
		res := d.Run(deconv.Window{
			Window:      w,
			Precursors:  deconv.PrecursorsOf(w, ms1),
			MS2Clusters: store.ClustersOf(2, w.Index),
			Curves:      store.CurvesOf(2, w.Index),
		})
		d.Assign(res)
		results[u] = res
		return nil
	})
	return results
}

// emit writes the pseudo-spectra of every window. It runs after all windows
// are deconvolved, so each cluster has its final set of fragments.
func emit(ctx context.Context, coll *scan.Collection, p param.Params, store *cluster.Store, em *deconv.Emitter) error {
	windows := coll.Windows()
	errs := make([]error, len(windows))
	workpool.New("emission", p.Threads).Run(ctx, len(windows), func(u int) error {
		_, errs[u] = em.EmitWindow(windows[u].Index, store.Clusters, coll.OwnerWindow)
		return errs[u]
	})
	return errors.Join(errs...)
}

// openSinks creates the MGF files and, if requested, the spectrum database
func openSinks(par params) ([]deconv.Sink, func() error, error) {
	set, err := mgf.Create(filepath.Dir(par.outBase), filepath.Base(par.outBase))
	if err != nil {
		return nil, nil, err
	}
	sinks := []deconv.Sink{set}
	closers := []func() error{set.Close}
	if par.dbFilename != "" {
		db, err := specdb.Create(par.dbFilename)
		if err != nil {
			set.Close()
			return nil, nil, err
		}
		sinks = append(sinks, db)
		closers = append(closers, db.Close)
	}
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if par.verbosity == infoVerbose {
			for _, q := range deconv.Partitions {
				log.Printf("%s: %d spectra", q, set.Counts()[q])
			}
		}
		return errors.Join(errs...)
	}
	return sinks, closeAll, nil
}
