package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/metrics"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/observability"
	"github.com/annel0/voxel-surface/internal/seam"
	"github.com/annel0/voxel-surface/internal/world/block"
)

const tracerName = "voxel-surface/runtime"

// worker собирает чанки. Поле занятости и пропагатор принадлежат
// воркеру и переиспользуются от задания к заданию.
type worker struct {
	id      int
	reg     *block.Registry
	builder *micro.Builder
	occ     *micro.Occupancy
	seeder  *micro.SeamSeeder
	engine  *lighting.Engine
	mesher  *mesher.Mesher
	metrics *metrics.Metrics
}

func newWorker(id int, reg *block.Registry, cfg lighting.Config, m *mesher.Mesher, mt *metrics.Metrics) *worker {
	return &worker{
		id:      id,
		reg:     reg,
		builder: micro.NewBuilder(reg),
		seeder:  micro.NewSeamSeeder(reg),
		engine:  lighting.NewEngine(cfg),
		mesher:  m,
		metrics: mt,
	}
}

// process выполняет конвейер: занятость, швы, свет, меш, экспорт границ
func (w *worker) process(ctx context.Context, job *Job) Result {
	_, span := observability.Tracer(tracerName).Start(ctx, "runtime.build")
	defer span.End()
	span.SetAttributes(
		attribute.String("chunk", job.Coord().String()),
		attribute.String("lane", job.Lane.String()),
		attribute.Int64("job.id", int64(job.ID)),
		attribute.Int("worker", w.id),
	)

	res := Result{Job: job}
	start := time.Now()
	c := job.Neighborhood.Center

	if w.occ == nil {
		w.occ = micro.NewOccupancy(c.SX, c.SY, c.SZ)
	}
	occ := w.occ
	w.builder.BuildInto(occ, c)
	var seams [3]micro.SeamInput
	for _, f := range block.NegativeFaces {
		if b := job.Borders[f]; b != nil {
			seams[f.Axis()] = micro.SeamInput{Plane: b.Occupancy, RequiredRev: job.NeighborGeometry[f]}
		}
	}
	tiers := w.seeder.Seed(occ, job.Neighborhood, seams)
	res.Timings.Occupancy = time.Since(start)

	mark := time.Now()
	in := lighting.Inputs{Chunk: c, Registry: w.reg, SkyOpen: job.SkyOpen}
	for _, f := range block.Faces {
		if b := job.Borders[f]; b != nil {
			in.Neighbors[f] = b.Light
		}
	}
	st := w.engine.Run(occ, in, job.PrevLight)
	res.Timings.Lighting = time.Since(mark)
	if ch, cell := lighting.CheckSealed(occ, st.Field); cell >= 0 {
		x, y, z := occ.Coords(cell)
		return w.fail(span, res, fmt.Errorf("%w: свет в непрозрачной ячейке (%d,%d,%d) канала %v чанка %s",
			ErrInvariant, x, y, z, ch, job.Coord()))
	}

	mark = time.Now()
	mesh, err := w.mesher.Mesh(mesher.Input{
		Chunk:        c,
		Neighborhood: job.Neighborhood,
		Occupancy:    occ,
		Light:        &lighting.Sampler{Field: st.Field, Neighbors: in.Neighbors},
		Verify:       job.Verify,
	})
	res.Timings.Mesh = time.Since(mark)
	if err != nil {
		if errors.Is(err, mesher.ErrParityMismatch) {
			err = fmt.Errorf("%w: %w", ErrInvariant, err)
		}
		return w.fail(span, res, err)
	}

	mark = time.Now()
	for _, f := range block.Faces {
		plane := micro.ExportPlane(occ, c, w.reg, f)
		plane.SourceRev = job.Stamp.GeometryRev
		res.Borders[f] = seam.FaceBorder{
			Coord:     job.Coord(),
			Face:      f,
			Occupancy: plane,
			Light:     st.Field.ExportPlane(f),
		}
	}
	if job.ExportLight {
		mesh.LightField = st.Field.Downsample()
	}
	res.Timings.Export = time.Since(mark)
	res.Timings.Total = time.Since(start)

	res.Mesh = mesh
	res.Light = st
	res.Tiers = tiers

	if w.metrics != nil {
		w.metrics.Stage.WithLabelValues("occupancy").Observe(res.Timings.Occupancy.Seconds())
		w.metrics.Stage.WithLabelValues("lighting").Observe(res.Timings.Lighting.Seconds())
		w.metrics.Stage.WithLabelValues("mesh").Observe(res.Timings.Mesh.Seconds())
		w.metrics.Stage.WithLabelValues("total").Observe(res.Timings.Total.Seconds())
		w.metrics.Quads.Observe(float64(mesh.QuadCount()))
	}
	span.SetAttributes(
		attribute.Int("quads", mesh.QuadCount()),
		attribute.String("seam.x", tiers[block.AxisX].String()),
		attribute.String("seam.y", tiers[block.AxisY].String()),
		attribute.String("seam.z", tiers[block.AxisZ].String()),
	)
	return res
}

func (w *worker) fail(span trace.Span, res Result, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	res.Err = err
	return res
}
