package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-surface/internal/api"
	"github.com/annel0/voxel-surface/internal/cache"
	"github.com/annel0/voxel-surface/internal/config"
	"github.com/annel0/voxel-surface/internal/eventbus"
	"github.com/annel0/voxel-surface/internal/lighting"
	"github.com/annel0/voxel-surface/internal/logging"
	"github.com/annel0/voxel-surface/internal/metrics"
	"github.com/annel0/voxel-surface/internal/micro"
	"github.com/annel0/voxel-surface/internal/observability"
	"github.com/annel0/voxel-surface/internal/runtime"
	"github.com/annel0/voxel-surface/internal/storage"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// === ЛОГИРОВАНИЕ ===
	if cfg.Log.Files {
		if err := logging.InitDefaultLogger("meshd"); err != nil {
			log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
		}
		logging.GetLoggerManager().EnableFileOutput(true)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	level := logging.ParseLevel(cfg.Log.Level)
	for _, component := range []string{"runtime", "mesher", "lighting", "storage", "api", "eventbus"} {
		logging.GetComponentLogger(component).SetLevels(level, logging.TRACE)
	}

	logging.Info("🧊 Запуск сервиса мешинга voxel-surface...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
	logging.Info("👋 Сервис успешно остановлен")
}

func run(ctx context.Context, cfg *config.Config) error {
	// === ТРАССИРОВКА ===
	if cfg.Server.Tracing {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Server.ServiceName)
		if err != nil {
			return fmt.Errorf("трассировка: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logging.Warn("⚠️ Остановка трассировки: %v", err)
			}
		}()
	}

	// === РЕЕСТР БЛОКОВ ===
	reg := block.DefaultRegistry()
	if cfg.Blocks.Path != "" {
		loaded, err := block.LoadRegistryFile(cfg.Blocks.Path)
		if err != nil {
			return fmt.Errorf("реестр блоков: %w", err)
		}
		reg = loaded
	}
	logging.Info("🧱 Реестр блоков: %d типов", len(reg.Names()))

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)

	promReg := prometheus.NewRegistry()
	exporter := eventbus.NewMetricsExporter(bus, promReg, 5*time.Second)
	exporter.Start()
	defer exporter.Stop()

	if sub, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("eventbus")); err == nil {
		defer sub.Unsubscribe()
	} else {
		logging.Warn("⚠️ Логирование событий недоступно: %v", err)
	}

	// === ХРАНИЛИЩЕ ===
	var store *storage.WorldStorage
	if cfg.Storage.Enabled {
		store, err = storage.NewWorldStorage(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("хранилище: %w", err)
		}
		defer store.Close()
	}

	// === ПЛАНИРОВЩИК ===
	meshes := runtime.NewMeshCache()
	opts := runtime.Options{
		Registry:      reg,
		World:         world.NewStore(cfg.World.ChunkSize),
		Lighting:      lightingConfig(cfg.Lighting),
		Workers:       cfg.Runtime.GetWorkers(),
		QueueSize:     cfg.Runtime.QueueSize,
		ResultsBuffer: cfg.Runtime.ResultsBuffer,
		Strict:        cfg.Debug.StrictInvariants,
		ExportLight:   cfg.Lighting.ExportField,
		Sink:          meshes,
		Bus:           bus,
		Metrics:       metrics.New("voxel", promReg),
		Logger:        logging.GetRuntimeLogger(),
	}
	switch {
	case cfg.Cache.RedisURL != "":
		var cold cache.ColdStorage
		if store != nil {
			cold = store
		}
		hot, err := cache.NewRedisMeshStore(&cache.CacheConfig{
			RedisURL:           cfg.Cache.RedisURL,
			RedisDB:            cfg.Cache.RedisDB,
			KeyPrefix:          cfg.Cache.KeyPrefix,
			TTL:                cfg.Cache.TTL(),
			WriteBehindEnabled: cfg.Cache.WriteBehind,
		}, cold)
		if err != nil {
			return fmt.Errorf("кеш мешей: %w", err)
		}
		defer hot.Close()
		opts.Store = hot
	case store != nil:
		opts.Store = store
	}
	sched := runtime.New(opts)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	coords, err := loadWorld(cfg, opts.World, store, sched)
	if err != nil {
		return err
	}
	logging.Info("🌍 Загружено чанков: %d", len(coords))

	go sched.Run(ctx, cfg.Runtime.TickInterval())

	// === ОТЛАДОЧНЫЙ API ===
	server := api.NewServer(api.Config{
		Addr:       fmt.Sprintf(":%d", cfg.Server.GetAPIPort()),
		Service:    "voxel_api",
		Pipeline:   sched,
		Meshes:     meshes,
		Registry:   reg,
		Prometheus: promReg,
	})
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logging.Info("✅ Сервис запущен: %d воркеров", sched.Workers())
	logging.Info("   🌐 API: http://localhost:%d/api/v1/stats", cfg.Server.GetAPIPort())
	logging.Info("   📊 Метрики: http://localhost:%d/metrics", cfg.Server.GetAPIPort())

	// Канал для получения сигналов ОС
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("📡 Получен сигнал %v, завершение работы...", sig)
	case err := <-serverErr:
		if err != nil {
			logging.Error("❌ API сервер: %v", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки API: %v", err)
	}
	if store != nil {
		saveWorld(opts.World, store)
	}
	return nil
}

func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, cfg.RetentionDuration())
	if err != nil {
		return nil, fmt.Errorf("шина событий: %w", err)
	}
	logging.Info("📨 JetStream подключён: %s, стрим %s", cfg.URL, cfg.Stream)
	return bus, nil
}

// loadWorld читает сохранённые чанки, недостающие генерирует
func loadWorld(cfg *config.Config, ws *world.Store, store *storage.WorldStorage, sched *runtime.Scheduler) ([]vec.Vec3, error) {
	gen := world.NewGenerator(cfg.World.Seed, cfg.World.ChunkSize)
	coords := gen.Populate(ws, cfg.World.Radius, cfg.World.Height)
	for _, coord := range coords {
		c, _ := ws.Chunk(coord)
		if store != nil {
			saved, err := store.LoadChunk(coord)
			switch {
			case err == nil:
				c = saved
			case !errors.Is(err, storage.ErrNotFound):
				return nil, fmt.Errorf("чанк %s: %w", coord, err)
			}
		}
		sched.Load(c)
	}
	return coords, nil
}

func saveWorld(ws *world.Store, store *storage.WorldStorage) {
	saved := 0
	for _, coord := range ws.Coords() {
		c, ok := ws.Chunk(coord)
		if !ok {
			continue
		}
		if err := store.SaveChunk(c); err != nil {
			logging.Error("❌ Сохранение чанка %s: %v", coord, err)
			continue
		}
		saved++
	}
	logging.Info("💾 Сохранено чанков: %d", saved)
}

func lightingConfig(lc config.LightingConfig) lighting.Config {
	cfg := lighting.DefaultConfig()
	cfg.MaxLight = uint8(lc.MaxLight)
	cfg.Attenuation[micro.Sky] = uint8(lc.SkyAttenuation)
	cfg.Attenuation[micro.BlockLight] = uint8(lc.BlockAttenuation)
	cfg.Attenuation[micro.Beacon] = uint8(lc.BlockAttenuation)
	cfg.BeaconUp = uint8(lc.BeaconAttenuation)
	cfg.Bins = lc.LightBins
	return cfg
}
