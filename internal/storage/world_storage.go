package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-surface/internal/mesher"
	"github.com/annel0/voxel-surface/internal/vec"
	"github.com/annel0/voxel-surface/internal/world"
	"github.com/annel0/voxel-surface/internal/world/block"
)

var (
	// ErrNotFound запись отсутствует или устарела
	ErrNotFound = errors.New("запись не найдена")
	// ErrNotReady хранилище закрыто
	ErrNotReady = errors.New("хранилище не готово")
)

// WorldStorage хранилище чанков и собранных мешей в BadgerDB.
// Значения сериализуются в JSON и сжимаются zstd.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// chunkRecord сериализованный чанк
type chunkRecord struct {
	Coord  vec.Vec3      `json:"coord"`
	SX     int           `json:"sx"`
	SY     int           `json:"sy"`
	SZ     int           `json:"sz"`
	Blocks []block.Block `json:"blocks"`
}

// meshRecord меш вместе с отпечатком содержимого, из которого он собран
type meshRecord struct {
	Fingerprint uint64            `json:"fingerprint"`
	Mesh        *mesher.ChunkMesh `json:"mesh"`
}

// NewWorldStorage открывает хранилище в каталоге dataPath/world
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		enc:     enc,
		dec:     dec,
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.enc.Close()
	ws.dec.Close()
	return ws.db.Close()
}

func chunkKey(c vec.Vec3) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d", c.X, c.Y, c.Z))
}

func meshKey(c vec.Vec3) []byte {
	return []byte(fmt.Sprintf("mesh:%d:%d:%d", c.X, c.Y, c.Z))
}

// put сериализует значение, сжимает и пишет по ключу
func (ws *WorldStorage) put(key []byte, v interface{}) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", key, err)
	}
	packed := ws.enc.EncodeAll(data, make([]byte, 0, len(data)/4))

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// get читает, распаковывает и разбирает значение
func (ws *WorldStorage) get(key []byte, v interface{}) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	var packed []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			packed = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := ws.dec.DecodeAll(packed, nil)
	if err != nil {
		return fmt.Errorf("ошибка распаковки %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ошибка десериализации %s: %w", key, err)
	}
	return nil
}

func (ws *WorldStorage) delete(key []byte) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}
	return ws.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// SaveChunk сохраняет блоки чанка
func (ws *WorldStorage) SaveChunk(c *world.Chunk) error {
	return ws.put(chunkKey(c.Coord), chunkRecord{
		Coord:  c.Coord,
		SX:     c.SX,
		SY:     c.SY,
		SZ:     c.SZ,
		Blocks: c.Blocks(),
	})
}

// LoadChunk загружает чанк; отсутствующий чанк даёт ErrNotFound
func (ws *WorldStorage) LoadChunk(coord vec.Vec3) (*world.Chunk, error) {
	var rec chunkRecord
	if err := ws.get(chunkKey(coord), &rec); err != nil {
		return nil, err
	}
	return world.ChunkFromBlocks(rec.Coord, rec.SX, rec.SY, rec.SZ, rec.Blocks)
}

// SaveMesh сохраняет меш чанка с отпечатком содержимого
func (ws *WorldStorage) SaveMesh(coord vec.Vec3, fingerprint uint64, mesh *mesher.ChunkMesh) error {
	return ws.put(meshKey(coord), meshRecord{Fingerprint: fingerprint, Mesh: mesh})
}

// LoadMesh возвращает меш, только если он собран из содержимого с тем же
// отпечатком; иначе ErrNotFound
func (ws *WorldStorage) LoadMesh(coord vec.Vec3, fingerprint uint64) (*mesher.ChunkMesh, error) {
	var rec meshRecord
	if err := ws.get(meshKey(coord), &rec); err != nil {
		return nil, err
	}
	if rec.Fingerprint != fingerprint || rec.Mesh == nil {
		return nil, fmt.Errorf("меш %s собран из другого содержимого: %w", coord, ErrNotFound)
	}
	return rec.Mesh, nil
}

// DeleteMesh удаляет меш чанка
func (ws *WorldStorage) DeleteMesh(coord vec.Vec3) error {
	return ws.delete(meshKey(coord))
}

// ChunkCoords координаты всех сохранённых чанков
func (ws *WorldStorage) ChunkCoords() ([]vec.Vec3, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, ErrNotReady
	}

	var out []vec.Vec3
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("chunk:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var c vec.Vec3
			if _, err := fmt.Sscanf(string(it.Item().Key()), "chunk:%d:%d:%d", &c.X, &c.Y, &c.Z); err != nil {
				return fmt.Errorf("ошибка парсинга ключа '%s': %w", it.Item().Key(), err)
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}
