// Command sdfmesh generates volume and surface meshes from voxel volumes
// and surface meshes.
//
//	sdfmesh from-inr volume.inr out.mesh -c 0.5
//	sdfmesh volume-from-surface part.stl out.mesh -c 1 --reorient
//	sdfmesh remesh-surface part.off out.off -s 0.2
//
// Meshing criteria may also be read from a YAML file with --config, flags
// override values of the file.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/engine/lattice"
	"github.com/soypat/sdfmesh/engine/process"
	"github.com/soypat/sdfmesh/meshio"
	"github.com/soypat/sdfmesh/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line args and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// app holds the global flags and state shared by subcommands.
type app struct {
	quiet      bool
	stagingDir string
	enginePath string
	configPath string
	seed       int64

	stderr io.Writer
	logger *zap.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sdfmesh",
		Short: "Volume and surface mesh generation",
		Long: `sdfmesh runs a refinement engine on voxel volumes and surface meshes.

By default the built-in lattice engine is used. An external mesher
executable is selected with --engine.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.logger = newLogger(a.stderr, a.quiet)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	pf := root.PersistentFlags()
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "quiet mode")
	pf.StringVar(&a.stagingDir, "staging-dir", os.TempDir(), "directory for intermediate files")
	pf.StringVar(&a.enginePath, "engine", "", "external mesher executable (default: built-in lattice engine)")
	pf.StringVar(&a.configPath, "config", "", "YAML file with meshing criteria")
	pf.Int64Var(&a.seed, "seed", 0, "random seed")

	root.AddCommand(a.fromINRCmd(), a.remeshCmd(), a.volumeFromSurfaceCmd())
	return root
}

func newLogger(w io.Writer, quiet bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if quiet {
		cfg.Level.SetLevel(zapcore.WarnLevel)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(w), cfg.Level)
	return zap.New(core)
}

func (a *app) mesher() (*pipeline.Mesher, error) {
	var eng engine.Engine
	if a.enginePath == "" {
		eng = lattice.New(a.logger)
	} else {
		p := process.New(a.enginePath, a.logger)
		p.Dir = a.stagingDir
		eng = p
	}
	return pipeline.New(eng, a.stagingDir, pipeline.WithLogger(a.logger))
}

// baseParams returns the criteria of the --config file, if any.
func (a *app) baseParams() (criteria.Params, error) {
	if a.configPath == "" {
		return criteria.Params{}, nil
	}
	fp, err := os.Open(a.configPath)
	if err != nil {
		return criteria.Params{}, err
	}
	defer fp.Close()
	p, err := criteria.LoadParams(fp)
	if err != nil {
		return criteria.Params{}, fmt.Errorf("%s: %w", a.configPath, err)
	}
	return p, nil
}

func (a *app) write(path string, m *meshio.Mesh) error {
	if err := meshio.WriteFile(path, m); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	a.logger.Info("wrote mesh", zap.String("path", path), zap.Int("points", len(m.Points)))
	return nil
}

func (a *app) fromINRCmd() *cobra.Command {
	var f criteriaFlags
	cmd := &cobra.Command{
		Use:   "from-inr INFILE OUTFILE",
		Short: "Create volume mesh from INR voxel files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.params(cmd, &f)
			if err != nil {
				return err
			}
			m, err := a.mesher()
			if err != nil {
				return err
			}
			res, err := m.VolumeFromVoxelFile(args[0], pipeline.VoxelOptions{
				Params:  p,
				Seed:    a.seed,
				Verbose: !a.quiet,
			})
			if err != nil {
				return err
			}
			return a.write(args[1], res)
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) remeshCmd() *cobra.Command {
	var f criteriaFlags
	cmd := &cobra.Command{
		Use:   "remesh-surface INFILE OUTFILE",
		Short: "Remesh surface mesh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.params(cmd, &f)
			if err != nil {
				return err
			}
			m, err := a.mesher()
			if err != nil {
				return err
			}
			res, err := m.RemeshSurface(args[0], pipeline.RemeshOptions{
				Params:  p,
				Seed:    a.seed,
				Verbose: !a.quiet,
			})
			if err != nil {
				return err
			}
			return a.write(args[1], res)
		},
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) volumeFromSurfaceCmd() *cobra.Command {
	var (
		f        criteriaFlags
		reorient bool
	)
	cmd := &cobra.Command{
		Use:   "volume-from-surface INFILE OUTFILE",
		Short: "Generate volume mesh from surface mesh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.params(cmd, &f)
			if err != nil {
				return err
			}
			m, err := a.mesher()
			if err != nil {
				return err
			}
			res, err := m.VolumeFromSurfaceFile(args[0], pipeline.SurfaceFileOptions{
				Params:   p,
				Reorient: reorient,
				Seed:     a.seed,
				Verbose:  !a.quiet,
			})
			if err != nil {
				return err
			}
			return a.write(args[1], res)
		},
	}
	f.register(cmd, true)
	cmd.Flags().BoolVar(&reorient, "reorient", false, "flip surfaces whose facets face inwards")
	return cmd
}

// criteriaFlags are the meshing criteria flags of a subcommand.
type criteriaFlags struct {
	edgeSize      float64
	facetAngle    float64
	facetSize     float64
	facetDistance float64
	ratio         float64
	cellSize      float64
	lloyd         bool
	odt           bool
	perturb       bool
	exude         bool
}

// register adds the flags to cmd. Volume commands also get the cell
// criteria and optimization toggles.
func (f *criteriaFlags) register(cmd *cobra.Command, volume bool) {
	fs := cmd.Flags()
	fs.Float64VarP(&f.edgeSize, "edge-size", "e", 0, "maximum edge size at feature edges")
	fs.Float64VarP(&f.facetAngle, "facet-angle", "a", 0, "minimum facet angle in degrees")
	fs.Float64VarP(&f.facetSize, "facet-size", "s", 0, "maximum radius of the surface facet Delaunay ball")
	fs.Float64VarP(&f.facetDistance, "facet-distance", "d", 0, "maximum facet distance")
	if !volume {
		return
	}
	fs.Float64VarP(&f.ratio, "cell-radius-edge-ratio", "r", 0, "maximum cell circumradius to shortest edge ratio")
	fs.Float64VarP(&f.cellSize, "cell-size", "c", 0, "maximum cell circumradius")
	fs.BoolVarP(&f.lloyd, "lloyd", "l", false, "Lloyd smoothing")
	fs.BoolVarP(&f.odt, "odt", "o", false, "ODT smoothing")
	fs.BoolVarP(&f.perturb, "perturb", "p", false, "perturb vertices")
	fs.BoolVarP(&f.exude, "exude", "x", false, "exude slivers")
}

// params overlays the flags set on the command line on the --config criteria.
func (a *app) params(cmd *cobra.Command, f *criteriaFlags) (criteria.Params, error) {
	p, err := a.baseParams()
	if err != nil {
		return p, err
	}
	fs := cmd.Flags()
	for _, o := range []struct {
		name  string
		apply func()
	}{
		{"edge-size", func() { p.EdgeSize = f.edgeSize }},
		{"facet-angle", func() { p.FacetAngle = f.facetAngle }},
		{"facet-size", func() { p.FacetSize = f.facetSize }},
		{"facet-distance", func() { p.FacetDistance = f.facetDistance }},
		{"cell-radius-edge-ratio", func() { p.CellRadiusEdgeRatio = f.ratio }},
		{"cell-size", func() { p.CellSize = f.cellSize }},
		{"lloyd", func() { p.Lloyd = f.lloyd }},
		{"odt", func() { p.ODT = f.odt }},
		{"perturb", func() { p.Perturb = f.perturb }},
		{"exude", func() { p.Exude = f.exude }},
	} {
		if fs.Changed(o.name) {
			o.apply()
		}
	}
	return p, nil
}
