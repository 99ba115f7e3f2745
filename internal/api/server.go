package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-surface/internal/logging"
	"github.com/annel0/voxel-surface/internal/middleware"
	"github.com/annel0/voxel-surface/internal/revision"
	"github.com/annel0/voxel-surface/internal/runtime"
	"github.com/annel0/voxel-surface/internal/seam"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world/block"
)

// Pipeline часть планировщика, доступная отладочному API
type Pipeline interface {
	Stats() runtime.Stats
	Revisions() *revision.Coordinator
	Borders() *seam.Store
	Edit(pos vec.Vec3, b block.Block) (bool, error)
}

// MeshIndex источник сводок по мешам
type MeshIndex interface {
	Summaries() []runtime.MeshSummary
}

// Config содержит конфигурацию отладочного сервера
type Config struct {
	Addr     string
	Service  string
	Pipeline Pipeline
	Meshes   MeshIndex
	Registry *block.Registry
	// Prometheus регистр метрик; nil означает дефолтный
	Prometheus *prometheus.Registry
	Logger     *logging.Logger
}

// Server отладочный HTTP сервер: состояние очередей, ревизии, меши и правки
type Server struct {
	router   *gin.Engine
	http     *http.Server
	pipeline Pipeline
	meshes   MeshIndex
	registry *block.Registry
	metrics  *ServerMetrics
	log      *logging.Logger
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// EditRequest запрос на изменение блока
type EditRequest struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
	Block string `json:"block" binding:"required"`
	State uint16 `json:"state"`
}

// ChunkInfo ревизии чанка и его опубликованных границ
type ChunkInfo struct {
	Coord   vec.Vec3        `json:"coord"`
	Record  revision.Record `json:"record"`
	Borders [6]uint64       `json:"borders"`
}

// NewServer создает отладочный сервер
func NewServer(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8090"
	}
	if cfg.Service == "" {
		cfg.Service = "voxel_api"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetComponentLogger("api")
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware(cfg.Service))
	router.Use(middleware.NewRequestLogger(cfg.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware(cfg.Service, cfg.Prometheus)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	s := &Server{
		router:   router,
		pipeline: cfg.Pipeline,
		meshes:   cfg.Meshes,
		registry: cfg.Registry,
		metrics:  NewServerMetrics(),
		log:      cfg.Logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.setupRoutes()
	return s
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler { return s.router }

// setupRoutes настраивает маршруты
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/stats", s.handleStats)
		v1.GET("/server", s.handleServerInfo)
		v1.GET("/chunks", s.handleChunks)
		v1.GET("/chunks/:x/:y/:z", s.handleChunk)
		v1.GET("/meshes", s.handleMeshes)
		v1.POST("/edit", s.handleEdit)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние планировщика",
		Data:    s.pipeline.Stats(),
	})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Состояние процесса",
		Data:    s.metrics.Snapshot(),
	})
}

func (s *Server) handleChunks(c *gin.Context) {
	revs := s.pipeline.Revisions()
	coords := revs.Coords()
	out := make([]ChunkInfo, 0, len(coords))
	for _, coord := range coords {
		if info, ok := s.chunkInfo(coord); ok {
			out = append(out, info)
		}
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Загружено чанков: %d", len(out)),
		Data:    out,
	})
}

func (s *Server) handleChunk(c *gin.Context) {
	coord, err := parseCoord(c.Param("x"), c.Param("y"), c.Param("z"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	info, ok := s.chunkInfo(coord)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Чанк %s не загружен", coord),
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Чанк", Data: info})
}

func (s *Server) handleMeshes(c *gin.Context) {
	summaries := s.meshes.Summaries()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Мешей: %d", len(summaries)),
		Data:    summaries,
	})
}

func (s *Server) handleEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	id, ok := s.registry.IDByName(req.Block)
	if !ok {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Неизвестный блок %q", req.Block),
		})
		return
	}

	pos := vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}
	changed, err := s.pipeline.Edit(pos, block.Block{ID: id, State: req.State})
	switch {
	case errors.Is(err, revision.ErrNotLoaded):
		c.JSON(http.StatusConflict, GenericResponse{Success: false, Message: err.Error()})
		return
	case err != nil:
		s.log.Error("❌ Правка %s: %v", pos, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: "Внутренняя ошибка сервера"})
		return
	}

	s.log.Info("✏️ Правка %s -> %s (изменено: %v)", pos, req.Block, changed)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Правка принята",
		Data:    gin.H{"changed": changed},
	})
}

func (s *Server) chunkInfo(coord vec.Vec3) (ChunkInfo, bool) {
	rec, ok := s.pipeline.Revisions().Record(coord)
	if !ok {
		return ChunkInfo{}, false
	}
	info := ChunkInfo{Coord: coord, Record: rec}
	for _, f := range block.Faces {
		info.Borders[f] = s.pipeline.Borders().Revision(coord, f)
	}
	return info, true
}

func parseCoord(xs, ys, zs string) (vec.Vec3, error) {
	var v [3]int
	for i, s := range []string{xs, ys, zs} {
		n, err := strconv.Atoi(s)
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("неверная координата %q", s)
		}
		v[i] = n
	}
	return vec.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// Start запускает сервер. Блокируется до остановки.
func (s *Server) Start() error {
	s.log.Info("🌐 Отладочный API слушает %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
