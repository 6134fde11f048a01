package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nagini-lang/nagini"
	"github.com/nagini-lang/nagini/cache"
)

// handleBuildCommand processes `nag build [-o dir] [-j n] [files...]`.
// Without files it compiles every source under the project source dirs.
func handleBuildCommand(p *project, args []string) int {
	flags := flag.NewFlagSet("build", flag.ExitOnError)
	output := flags.String("o", p.manifest.OutputDir(), "Output directory for .nac modules")
	jobs := flags.Int("j", p.manifest.Build.Jobs, "Number of files compiled in parallel")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nag build [options] [files...]\n\n")
		flags.PrintDefaults()
	}
	flags.Parse(args)

	units, err := buildUnits(p, flags.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(units) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to build")
		return 0
	}

	c := p.openCache()
	if c != nil {
		defer c.Close()
	}

	failed, err := build(context.Background(), c, units, *output, *jobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	color := colorEnabled(os.Stderr)
	for _, f := range failed {
		printDiagnostics(os.Stderr, color, f.unit.source, f.diags)
	}
	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d files failed to compile\n", len(failed), len(units))
		return 1
	}
	log.Infof("built %d modules into %s", len(units), *output)
	return 0
}

// buildUnit pairs a source file with its path relative to the output dir.
type buildUnit struct {
	source string
	rel    string
}

type buildFailure struct {
	unit  buildUnit
	diags nagini.Diagnostics
}

// buildUnits lists the files to compile. Explicit files keep their base
// name; project sources keep their path below the source dir.
func buildUnits(p *project, files []string) ([]buildUnit, error) {
	var units []buildUnit
	if len(files) > 0 {
		for _, f := range files {
			units = append(units, buildUnit{source: f, rel: filepath.Base(f)})
		}
		return units, nil
	}

	for _, dir := range p.manifest.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != nagini.SourceExt {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			units = append(units, buildUnit{source: path, rel: rel})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return units, nil
}

// build compiles units in parallel and writes one .nac per unit into out.
// Compile errors are collected and returned sorted by file; I/O errors
// stop the build.
func build(ctx context.Context, c *cache.Cache, units []buildUnit, out string, jobs int) ([]buildFailure, error) {
	var (
		mu     sync.Mutex
		failed []buildFailure
	)

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := nagini.LoadFile(u.source, c)
			if err != nil {
				var diags nagini.Diagnostics
				if errors.As(err, &diags) {
					mu.Lock()
					failed = append(failed, buildFailure{unit: u, diags: diags})
					mu.Unlock()
					return nil
				}
				return err
			}

			data, err := m.MarshalBinary()
			if err != nil {
				return fmt.Errorf("%s: %w", u.source, err)
			}
			dest := filepath.Join(out, strings.TrimSuffix(u.rel, filepath.Ext(u.rel))+nagini.BytecodeExt)
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			log.Debugf("%s -> %s", u.source, dest)
			return os.WriteFile(dest, data, 0644)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].unit.source < failed[j].unit.source })
	return failed, nil
}
