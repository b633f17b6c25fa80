package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/sdfmesh"
	"github.com/soypat/sdfmesh/criteria"
	"github.com/soypat/sdfmesh/engine"
	"github.com/soypat/sdfmesh/form3"
	"github.com/soypat/sdfmesh/inr"
	"github.com/soypat/sdfmesh/meshio"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// TestHelperProcess is the fake mesher run by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("SDFMESH_HELPER_PROCESS") != "1" {
		return
	}
	os.Exit(fakeMesher(os.Args[len(os.Args)-1]))
}

// fakeMesher checks the staged job and writes a single tetrahedron or
// triangle to its output.
func fakeMesher(jobPath string) int {
	if msg := os.Getenv("SDFMESH_HELPER_FAIL"); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
		return 3
	}
	job, err := ReadJob(jobPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	grids := []string{job.Domain}
	if job.Criteria != nil {
		grids = append(grids, job.Criteria.CellSize.Field)
	}
	for _, path := range grids {
		if path == "" {
			continue
		}
		g, err := inr.ReadFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if g.Dims != sdfmesh.V3i(job.Grid.Dims) {
			fmt.Fprintf(os.Stderr, "grid dims %v, job says %v\n", g.Dims, job.Grid.Dims)
			return 1
		}
	}
	m := &meshio.Mesh{
		Points: []r3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}},
		Cells:  []meshio.CellBlock{{Type: meshio.Tetra, Data: [][]int{{0, 1, 2, 3}}, Labels: []int{1}}},
	}
	if job.Kind == KindPlanar {
		m = &meshio.Mesh{
			Points: []r3.Vec{{}, {X: 1}, {Y: 1}},
			Cells:  []meshio.CellBlock{{Type: meshio.Triangle, Data: [][]int{{0, 1, 2}}}},
		}
	}
	fmt.Println("meshed", job.Kind)
	if err := meshio.WriteFile(job.Output, m); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func helperEngine(t *testing.T, env ...string) *Engine {
	e := New(os.Args[0], nil, "-test.run=TestHelperProcess", "--")
	e.Env = append([]string{"SDFMESH_HELPER_PROCESS=1"}, env...)
	e.Resolution = 8
	e.Dir = t.TempDir()
	return e
}

func TestMeshDomain(t *testing.T) {
	e := helperEngine(t)
	ball, err := form3.Ball(r3.Vec{}, 1)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out.mesh")
	err = e.MeshDomain(&engine.DomainJob{
		Common: engine.Common{
			Criteria: criteria.Bundle{
				CellSize:  criteria.Field(func(p r3.Vec) float64 { return 0.1 + 0.01*p.X }),
				FacetSize: criteria.Constant(0.2),
			},
			Output: out,
		},
		Domain:          ball,
		BoundingRadius2: 1.21,
	})
	require.NoError(t, err)
	m, err := meshio.ReadFile(out)
	require.NoError(t, err)
	require.InDelta(t, 1.0/6, m.Volume(), 1e-12)

	staged, err := os.ReadDir(e.Dir)
	require.NoError(t, err)
	require.Empty(t, staged, "staged files left behind")
}

func TestStagedJob(t *testing.T) {
	e := helperEngine(t)
	s := e.newStager(filepath.Join(e.Dir, "out.mesh"), r3.Box{Max: r3.Vec{X: 1, Y: 2, Z: 3}})
	c, err := s.bundle(criteria.Bundle{
		EdgeSize:   criteria.Constant(0.5),
		CellSize:   criteria.Table{Default: 1, Labels: []int{3}, Values: []float64{0.25}},
		FacetSize:  criteria.Field(func(r3.Vec) float64 { return 0.3 }),
		FacetAngle: 25,
		Exude:      true,
	})
	require.NoError(t, err)
	require.Equal(t, Sizing{Value: 0.5}, c.EdgeSize)
	require.Equal(t, Sizing{Value: 1, Labels: map[int]float64{3: 0.25}}, c.CellSize)
	require.Equal(t, criteria.FieldActive, c.FacetSize.Value)
	require.Len(t, s.paths, 1)
	g, err := inr.ReadFile(c.FacetSize.Field)
	require.NoError(t, err)
	require.Equal(t, sdfmesh.V3i{8, 8, 8}, g.Dims)
	require.InDelta(t, 0.3, g.At(7, 7, 7), 1e-6)

	j := &Job{Kind: KindVolume, Output: "out.mesh", Criteria: c, Grid: s.grid()}
	path := filepath.Join(e.Dir, "job.yaml")
	require.NoError(t, j.write(path))
	got, err := ReadJob(path)
	require.NoError(t, err)
	require.Equal(t, j, got)

	require.NoError(t, s.cleanup())
	_, err = os.Stat(c.FacetSize.Field)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMesherFailure(t *testing.T) {
	e := helperEngine(t, "SDFMESH_HELPER_FAIL=refinement blew up")
	src := filepath.Join(t.TempDir(), "in.inr")
	g, err := inr.NewGrid(sdfmesh.V3i{2, 2, 2}, r3.Vec{X: 1, Y: 1, Z: 1}, make([]uint8, 8))
	require.NoError(t, err)
	require.NoError(t, inr.WriteFile(src, g))

	err = e.MeshVoxelFile(&engine.VoxelJob{
		Common: engine.Common{Output: filepath.Join(t.TempDir(), "out.mesh")},
		Input:  src,
	})
	require.ErrorIs(t, err, sdfmesh.ErrEngine)
	require.ErrorContains(t, err, "refinement blew up")
	staged, err := os.ReadDir(e.Dir)
	require.NoError(t, err)
	require.Empty(t, staged)

	// Caller files are never removed.
	_, err = os.Stat(src)
	require.NoError(t, err)
}

func TestMissingExecutable(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "no-such-mesher"), nil)
	e.Dir = t.TempDir()
	_, err := e.Mesh2D(&engine.PlanarJob{Points: []r2.Vec{{}, {X: 1}, {Y: 1}}})
	require.ErrorIs(t, err, sdfmesh.ErrEngine)
}

func TestMesh2D(t *testing.T) {
	e := helperEngine(t)
	m, err := e.Mesh2D(&engine.PlanarJob{
		Points:      []r2.Vec{{}, {X: 1}, {Y: 1}},
		Constraints: [][2]int{{0, 1}},
		MaxEdgeSize: 0.1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.NumCells(meshio.Triangle))
	staged, err := os.ReadDir(e.Dir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

func TestTail(t *testing.T) {
	long := make([]byte, 3*stderrTail)
	for i := range long {
		long[i] = 'a'
	}
	got := tail(string(long) + "end\n")
	require.Len(t, got, stderrTail+3)
	require.Equal(t, "...", got[:3])
	require.Equal(t, "end", got[len(got)-3:])
}
