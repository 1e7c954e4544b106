// cache.go — LRU-кэш метаданных BIM-файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bim_metadata_cache_hits_total",
		Help: "Общее количество попаданий в кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bim_metadata_cache_misses_total",
		Help: "Общее количество промахов кэша метаданных.",
	})
)

// MetadataCache — кэш извлечённых метаданных по ID записи.
// Файл финализированной записи не меняется, инвалидация нужна только при удалении.
type MetadataCache struct {
	cache *expirable.LRU[uuid.UUID, model.Metadata]
}

// NewMetadataCache создаёт кэш с максимальным размером maxSize и TTL.
func NewMetadataCache(maxSize int, ttl time.Duration) *MetadataCache {
	return &MetadataCache{
		cache: expirable.NewLRU[uuid.UUID, model.Metadata](maxSize, nil, ttl),
	}
}

// Get возвращает метаданные из кэша.
func (c *MetadataCache) Get(id uuid.UUID) (model.Metadata, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет метаданные записи.
func (c *MetadataCache) Set(id uuid.UUID, md model.Metadata) {
	c.cache.Add(id, md)
}

// Delete удаляет метаданные записи (инвалидация при удалении файла).
func (c *MetadataCache) Delete(id uuid.UUID) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *MetadataCache) Len() int {
	return c.cache.Len()
}
