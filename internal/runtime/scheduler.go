package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/annel0/voxel-surface/internal/eventbus"
	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/logging"
	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/metrics"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/revision"
	"github.com/annel0/voxel-surface/internal/seam"
	"github.com/annel0/voxel-surface/internal/storage"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// eventSource поле Source конвертов, публикуемых планировщиком
const eventSource = "runtime"

// Options параметры планировщика
type Options struct {
	Registry *block.Registry
	World    *world.Store
	Lighting lighting.Config

	// Workers число воркеров, 0: по числу физических ядер
	Workers int
	// QueueSize ёмкость канала каждой полосы
	QueueSize     int
	ResultsBuffer int

	// Strict паника при нарушении инварианта
	Strict bool
	// Verify сверка паритета в каждом задании (всегда включена при Strict)
	Verify bool
	// ExportLight прикладывать к мешу поле освещённости по блокам
	ExportLight bool

	Sink    MeshSink
	Store   MeshStore
	Bus     eventbus.EventBus
	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// TickReport итог одного тика
type TickReport struct {
	Applied    int
	Stale      int
	Failed     int
	Dispatched int
}

// Stats снимок состояния очередей для отладочного API
type Stats struct {
	Workers     int            `json:"workers"`
	Loaded      int            `json:"loaded"`
	Pending     map[string]int `json:"pending"`
	Queued      map[string]int `json:"queued"`
	Inflight    int            `json:"inflight"`
	Dirty       int            `json:"dirty"`
	Dispatched  uint64         `json:"dispatched"`
	Applied     uint64         `json:"applied"`
	Stale       uint64         `json:"stale"`
	Violations  uint64         `json:"violations"`
	SeamUpdates uint64         `json:"seam_updates"`
}

type counters struct {
	dispatched  uint64
	applied     uint64
	stale       uint64
	violations  uint64
	seamUpdates uint64
}

// Scheduler распределяет задания сборки чанков по воркерам и применяет
// результаты. Tick, Load, Unload и Edit вызываются из одной
// координирующей горутины; Stats безопасен из любой.
type Scheduler struct {
	opts    Options
	log     *logging.Logger
	sink    MeshSink
	revs    *revision.Coordinator
	borders *seam.Store
	mesher  *mesher.Mesher
	workers int

	lanes   [numLanes]chan *Job
	results chan Result
	quit    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup

	mu       sync.Mutex
	running  bool
	nextID   uint64
	pending  map[vec.Vec3]Lane
	inflight map[vec.Vec3]*Job
	dirty    map[vec.Vec3]Lane
	light    map[vec.Vec3]*lighting.State
	// sampled оси, по которым принятая сборка взяла выборку сетки соседа
	sampled  map[vec.Vec3]uint8
	counters counters
}

// WorkerCount число воркеров: явное значение или число физических ядер
func WorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		return cores
	}
	return goruntime.NumCPU()
}

// New создаёт планировщик. Воркеры запускаются через Start.
func New(opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.ResultsBuffer <= 0 {
		opts.ResultsBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetRuntimeLogger()
	}
	sink := opts.Sink
	if sink == nil {
		sink = NewMeshCache()
	}
	s := &Scheduler{
		opts:     opts,
		log:      opts.Logger,
		sink:     sink,
		revs:     revision.NewCoordinator(),
		borders:  seam.NewStore(),
		mesher:   mesher.New(opts.Registry, opts.Lighting),
		workers:  WorkerCount(opts.Workers),
		results:  make(chan Result, opts.ResultsBuffer),
		quit:     make(chan struct{}),
		pending:  make(map[vec.Vec3]Lane),
		inflight: make(map[vec.Vec3]*Job),
		dirty:    make(map[vec.Vec3]Lane),
		light:    make(map[vec.Vec3]*lighting.State),
		sampled:  make(map[vec.Vec3]uint8),
	}
	for _, l := range Lanes {
		s.lanes[l] = make(chan *Job, opts.QueueSize)
	}
	return s
}

// Sink получатель мешей
func (s *Scheduler) Sink() MeshSink { return s.sink }

// Revisions координатор ревизий (только чтение снаружи)
func (s *Scheduler) Revisions() *revision.Coordinator { return s.revs }

// Borders хранилище опубликованных границ
func (s *Scheduler) Borders() *seam.Store { return s.borders }

// Workers число воркеров
func (s *Scheduler) Workers() int { return s.workers }

// Start запускает воркеры
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return ErrClosed
	default:
	}
	if s.running {
		return nil
	}
	s.running = true
	for i := 0; i < s.workers; i++ {
		w := newWorker(i, s.opts.Registry, s.opts.Lighting, s.mesher, s.opts.Metrics)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx, w)
		}()
	}
	s.log.Info("🚀 Планировщик запущен: %d воркеров, очередь %d на полосу", s.workers, s.opts.QueueSize)
	return nil
}

// Stop останавливает воркеры и ждёт их завершения
func (s *Scheduler) Stop() {
	s.stop.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.log.Info("🛑 Планировщик остановлен")
	})
}

func (s *Scheduler) workerLoop(ctx context.Context, w *worker) {
	for {
		job, ok := s.next(ctx)
		if !ok {
			return
		}
		res := w.process(ctx, job)
		select {
		case s.results <- res:
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// next берёт задание из самой приоритетной непустой полосы.
// Запущенное задание не прерывается.
func (s *Scheduler) next(ctx context.Context) (*Job, bool) {
	for _, l := range Lanes {
		select {
		case job := <-s.lanes[l]:
			return job, true
		default:
		}
	}
	select {
	case job := <-s.lanes[LaneEdit]:
		return job, true
	case job := <-s.lanes[LaneLight]:
		return job, true
	case job := <-s.lanes[LaneBackground]:
		return job, true
	case <-s.quit:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Load публикует чанк в мире и ставит его сборку в фоновую полосу.
// Сохранённый меш с тем же содержимым отдаётся сразу, до пересборки.
func (s *Scheduler) Load(c *world.Chunk) {
	s.opts.World.Put(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revs.Loaded(c.Coord) {
		// Замена содержимого загруженного чанка равносильна правке
		if _, err := s.revs.NoteEdit(c.Coord); err != nil {
			s.log.Warn("⚠️ Повторная загрузка %s: %v", c.Coord, err)
		}
	}
	rec := s.revs.Load(c.Coord)
	if s.opts.Store != nil {
		mesh, err := s.opts.Store.LoadMesh(c.Coord, c.Fingerprint())
		switch {
		case err == nil:
			s.sink.ApplyMesh(c.Coord, mesh)
		case !errors.Is(err, storage.ErrNotFound):
			s.log.Warn("⚠️ Не удалось прочитать сохранённый меш %s: %v", c.Coord, err)
		}
	}
	s.requestLocked(c.Coord, LaneBackground)

	// Соседи пересобираются с учётом нового чанка
	for _, f := range block.Faces {
		nb := c.Coord.Add(f.Delta())
		if s.revs.Loaded(nb) {
			s.noteNeighbor(nb, LaneBackground)
		}
	}
	s.log.Debug("📦 Чанк %s загружен, геометрия %d", c.Coord, rec.GeometryRev)
}

// Unload снимает чанк с учёта: границы, меш и свет удаляются,
// соседи пересобираются без него.
func (s *Scheduler) Unload(coord vec.Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.revs.Unload(coord) {
		return false
	}
	s.opts.World.Remove(coord)
	removed := s.borders.Remove(coord)
	s.sink.DropMesh(coord)
	delete(s.light, coord)
	delete(s.sampled, coord)
	delete(s.pending, coord)
	delete(s.dirty, coord)

	for _, f := range block.Faces {
		nb := coord.Add(f.Delta())
		if s.revs.Loaded(nb) {
			s.noteNeighbor(nb, LaneLight)
		}
	}
	s.log.Debug("📤 Чанк %s выгружен, снято границ: %d", coord, removed)
	return true
}

// Edit меняет блок по мировым координатам. Правка увеличивает ревизию
// геометрии чанка и ставит его и затронутых соседей в полосу правок.
func (s *Scheduler) Edit(pos vec.Vec3, b block.Block) (bool, error) {
	size := s.opts.World.ChunkSize()
	coord := pos.ToChunkCoords(size)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.revs.Loaded(coord) {
		return false, fmt.Errorf("правка %s: %w", pos, revision.ErrNotLoaded)
	}
	if _, changed := s.opts.World.SetBlock(pos, b); !changed {
		return false, nil
	}
	if _, err := s.revs.NoteEdit(coord); err != nil {
		return false, err
	}
	s.requestLocked(coord, LaneEdit)
	for _, nb := range world.AffectedChunks(pos, size)[1:] {
		if s.revs.Loaded(nb) {
			s.noteNeighbor(nb, LaneEdit)
		}
	}
	return true, nil
}

// Request ставит чанк в очередь. Для чанка в работе выставляется флаг
// повторной сборки после завершения.
func (s *Scheduler) Request(coord vec.Vec3, lane Lane) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(coord, lane)
}

func (s *Scheduler) requestLocked(coord vec.Vec3, lane Lane) bool {
	if !s.revs.Loaded(coord) {
		return false
	}
	if _, busy := s.inflight[coord]; busy {
		if cur, ok := s.dirty[coord]; !ok || lane < cur {
			s.dirty[coord] = lane
		}
		return true
	}
	if cur, ok := s.pending[coord]; !ok || lane < cur {
		s.pending[coord] = lane
	}
	return true
}

// noteNeighbor помечает устаревшим освещение соседа и ставит его в очередь
func (s *Scheduler) noteNeighbor(coord vec.Vec3, lane Lane) {
	if _, err := s.revs.NoteLighting(coord); err != nil {
		return
	}
	s.requestLocked(coord, lane)
}

// Tick применяет накопленные результаты в порядке ID заданий и
// раздаёт ожидающие задания воркерам. Не блокируется.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	var batch []Result
drain:
	for {
		select {
		case r := <-s.results:
			batch = append(batch, r)
		default:
			break drain
		}
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Job.ID < batch[j].Job.ID })

	s.mu.Lock()
	defer s.mu.Unlock()

	var rep TickReport
	for i := range batch {
		s.apply(ctx, &batch[i], &rep)
	}
	rep.Dispatched = s.dispatchLocked()
	s.updateGauges()
	return rep
}

// Idle нет ожидающих, выполняемых и отложенных заданий
func (s *Scheduler) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.inflight) == 0 && len(s.dirty) == 0
}

// Settle крутит Tick, пока очередь не опустеет или не истечёт контекст
func (s *Scheduler) Settle(ctx context.Context) error {
	for {
		s.Tick(ctx)
		if s.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.quit:
			return ErrClosed
		case <-time.After(time.Millisecond):
		}
	}
}

// Run вызывает Tick с заданным периодом до отмены контекста
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) apply(ctx context.Context, res *Result, rep *TickReport) {
	job := res.Job
	coord := job.Coord()
	if s.inflight[coord] == job {
		delete(s.inflight, coord)
	}

	if res.Err != nil {
		s.fault(coord, job.Lane, res.Err, rep)
		return
	}

	verdict := s.revs.Accept(job.Stamp, s.borders.NeighborRevisions(coord))
	if s.opts.Metrics != nil {
		s.opts.Metrics.Completed.WithLabelValues(job.Lane.String(), verdict.String()).Inc()
	}
	switch verdict {
	case revision.Accepted:
	case revision.Unloaded:
		s.log.Debug("Результат задания %d для выгруженного чанка %s отброшен", job.ID, coord)
		return
	default:
		rep.Stale++
		s.counters.stale++
		s.log.Debug("♻️ Результат задания %d чанка %s устарел (%s), повтор", job.ID, coord, verdict)
		s.requeueLocked(coord, job.Lane)
		s.notify(ctx, eventbus.EventChunkStale, eventbus.PriorityLow, StaleNotice{
			Coord:   coord,
			JobID:   job.ID,
			Verdict: verdict.String(),
		})
		return
	}

	if err := s.revs.Commit(job.Stamp); err != nil {
		s.fault(coord, job.Lane, fmt.Errorf("%w: %w", ErrInvariant, err), rep)
		return
	}
	rep.Applied++
	s.counters.applied++

	s.light[coord] = res.Light
	s.sink.ApplyMesh(coord, res.Mesh)
	if s.opts.Store != nil {
		if err := s.opts.Store.SaveMesh(coord, job.Neighborhood.Center.Fingerprint(), res.Mesh); err != nil {
			s.log.Warn("⚠️ Не удалось сохранить меш %s: %v", coord, err)
		}
	}

	_, updates := s.borders.PublishAll(res.Borders)
	for _, u := range updates {
		s.counters.seamUpdates++
		if s.opts.Metrics != nil {
			s.opts.Metrics.SeamUpdates.Inc()
		}
		s.notify(ctx, eventbus.EventSeamUpdated, eventbus.PriorityNormal, u)

		nb := u.Coord.Add(u.Face.Delta())
		if s.revs.Loaded(nb) {
			s.noteNeighbor(nb, LaneLight)
		}
	}
	s.trackSampled(coord, res.Tiers)

	if lane, ok := s.dirty[coord]; ok {
		delete(s.dirty, coord)
		s.requestLocked(coord, lane)
	}
	s.notify(ctx, eventbus.EventMeshReady, eventbus.PriorityLow, MeshSummary{
		Coord:   coord,
		Quads:   res.Mesh.QuadCount(),
		Batches: len(res.Mesh.Batches),
		Stats:   res.Mesh.Stats,
	})
}

// trackSampled запоминает оси, собранные по выборке сетки соседа, и
// ставит в полосу света чанки, для которых плоскость соседа уже пригодна.
// Повторная публикация тех же данных меняет только SourceRev, ревизия
// грани остаётся прежней.
func (s *Scheduler) trackSampled(coord vec.Vec3, tiers [3]micro.SeamTier) {
	var mask uint8
	ready := false
	for a, tier := range tiers {
		if tier != micro.TierSampled {
			continue
		}
		mask |= 1 << a
		ready = ready || s.planeReady(coord, block.Axis(a))
	}
	if mask == 0 {
		delete(s.sampled, coord)
	} else {
		s.sampled[coord] = mask
	}
	if ready {
		s.requestLocked(coord, LaneLight)
	}

	// Соседи с положительной стороны читают наши положительные грани
	for _, f := range block.Faces {
		if !f.IsPositive() {
			continue
		}
		nb := coord.Add(f.Delta())
		if s.sampled[nb]&(1<<f.Axis()) != 0 && s.planeReady(nb, f.Axis()) {
			s.requestLocked(nb, LaneLight)
		}
	}
}

// planeReady пригодна ли опубликованная плоскость соседа с отрицательной
// стороны оси: она построена не раньше текущей геометрии соседа
func (s *Scheduler) planeReady(coord vec.Vec3, axis block.Axis) bool {
	nb := coord.Add(block.FaceFor(axis, false).Delta())
	if !s.revs.Loaded(nb) {
		return false
	}
	b, ok := s.borders.Get(nb, block.FaceFor(axis, true))
	return ok && b.Occupancy != nil && b.Occupancy.SourceRev >= s.revs.GeometryRev(nb)
}

// requeueLocked повторяет задание; отложенный запрос с более высоким
// приоритетом поглощается
func (s *Scheduler) requeueLocked(coord vec.Vec3, lane Lane) {
	if d, ok := s.dirty[coord]; ok {
		if d < lane {
			lane = d
		}
		delete(s.dirty, coord)
	}
	s.requestLocked(coord, lane)
}

// fault обрабатывает ошибку задания. Нарушение инварианта в строгом
// режиме приводит к панике, иначе пишется в лог и задание повторяется.
func (s *Scheduler) fault(coord vec.Vec3, lane Lane, err error, rep *TickReport) {
	rep.Failed++
	if !errors.Is(err, ErrInvariant) {
		s.log.Error("❌ Сборка чанка %s: %v", coord, err)
		// Само задание не повторяется, но правка во время сборки остаётся в силе
		if d, ok := s.dirty[coord]; ok {
			delete(s.dirty, coord)
			s.requestLocked(coord, d)
		}
		return
	}

	s.counters.violations++
	if s.opts.Metrics != nil {
		s.opts.Metrics.Violations.WithLabelValues(violationKind(err)).Inc()
	}
	if s.opts.Strict {
		panic(err)
	}
	s.log.Error("❌ %v", err)
	s.requeueLocked(coord, lane)
}

func violationKind(err error) string {
	switch {
	case errors.Is(err, mesher.ErrParityMismatch):
		return "parity"
	case errors.Is(err, revision.ErrRegression):
		return "regression"
	default:
		return "sealed"
	}
}

func (s *Scheduler) notify(ctx context.Context, eventType string, priority int, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventSource, eventType, priority, payload)
	if err == nil {
		err = s.opts.Bus.Publish(ctx, ev)
	}
	if err != nil {
		s.log.Warn("⚠️ Событие %s не опубликовано: %v", eventType, err)
	}
}

// dispatchLocked превращает ожидающие запросы в задания. Порядок:
// полоса, затем координата. Переполненная полоса оставляет запрос ждать.
func (s *Scheduler) dispatchLocked() int {
	if len(s.pending) == 0 {
		return 0
	}
	coords := make([]vec.Vec3, 0, len(s.pending))
	for c := range s.pending {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		li, lj := s.pending[coords[i]], s.pending[coords[j]]
		if li != lj {
			return li < lj
		}
		return coords[i].Less(coords[j])
	})

	n := 0
	for _, coord := range coords {
		lane := s.pending[coord]
		job, err := s.snapshot(coord, lane)
		if err != nil {
			s.log.Debug("Запрос %s снят: %v", coord, err)
			delete(s.pending, coord)
			continue
		}
		select {
		case s.lanes[lane] <- job:
		default:
			continue
		}
		s.nextID++
		delete(s.pending, coord)
		s.inflight[coord] = job
		s.counters.dispatched++
		n++
		if s.opts.Metrics != nil {
			s.opts.Metrics.Dispatched.WithLabelValues(lane.String()).Inc()
		}
	}
	return n
}

// snapshot собирает неизменяемый снимок для задания
func (s *Scheduler) snapshot(coord vec.Vec3, lane Lane) (*Job, error) {
	c, ok := s.opts.World.Chunk(coord)
	if !ok {
		return nil, fmt.Errorf("чанк %s отсутствует в мире", coord)
	}
	stamp, err := s.revs.Stamp(coord, s.borders.NeighborRevisions(coord))
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:           s.nextID + 1,
		Lane:         lane,
		Stamp:        stamp,
		Neighborhood: world.SnapshotNeighborhood(s.opts.World, c),
		Borders:      s.borders.NeighborBorders(coord),
		PrevLight:    s.light[coord],
		SkyOpen:      !s.revs.Loaded(coord.Add(block.PosY.Delta())),
		Verify:       s.opts.Verify || s.opts.Strict,
		ExportLight:  s.opts.ExportLight,
	}
	for _, f := range block.Faces {
		job.NeighborGeometry[f] = s.revs.GeometryRev(coord.Add(f.Delta()))
	}
	return job, nil
}

func (s *Scheduler) updateGauges() {
	m := s.opts.Metrics
	if m == nil {
		return
	}
	pending := s.pendingByLane()
	for _, l := range Lanes {
		m.QueueDepth.WithLabelValues(l.String()).Set(float64(pending[l] + len(s.lanes[l])))
	}
	m.Inflight.Set(float64(len(s.inflight)))
}

func (s *Scheduler) pendingByLane() [numLanes]int {
	var out [numLanes]int
	for _, l := range s.pending {
		out[l]++
	}
	return out
}

// Stats снимок очередей и счётчиков
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingByLane()
	st := Stats{
		Workers:     s.workers,
		Loaded:      s.revs.Len(),
		Pending:     make(map[string]int, numLanes),
		Queued:      make(map[string]int, numLanes),
		Inflight:    len(s.inflight),
		Dirty:       len(s.dirty),
		Dispatched:  s.counters.dispatched,
		Applied:     s.counters.applied,
		Stale:       s.counters.stale,
		Violations:  s.counters.violations,
		SeamUpdates: s.counters.seamUpdates,
	}
	for _, l := range Lanes {
		st.Pending[l.String()] = pending[l]
		st.Queued[l.String()] = len(s.lanes[l])
	}
	return st
}

// Light последнее принятое освещение чанка
func (s *Scheduler) Light(coord vec.Vec3) (*lighting.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.light[coord]
	return st, ok
}
