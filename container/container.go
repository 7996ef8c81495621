package container

import (
	"github.com/flowmill/flowmill/cache"
	"github.com/flowmill/flowmill/config"
	"github.com/flowmill/flowmill/persistence"
	"github.com/flowmill/flowmill/persistence/inmem"
	rd "github.com/flowmill/flowmill/persistence/redis"
	"github.com/flowmill/flowmill/registry"
)

// DIContainer holds the storage and cache handles shared across the engine.
// Constructed once at process start; everything downstream receives these by
// reference rather than through package-level state.
type DIContainer struct {
	initialized     bool
	definitionStore persistence.DefinitionStore
	runDao          persistence.RunStateDao
	tokenDao        persistence.WaitTokenDao
	defCache        *cache.DefinitionCache
	waitRegistry    *registry.EventWaitRegistry
}

func NewDIContainer() *DIContainer {
	return &DIContainer{}
}

func (d *DIContainer) Init(conf config.Config) {
	defer func() { d.initialized = true }()

	var cacheBackend cache.Backend
	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
		}
		d.definitionStore = rd.NewRedisDefinitionStore(rdConf)
		d.runDao = rd.NewRedisRunStateDao(rdConf)
		d.tokenDao = rd.NewRedisWaitTokenDao(rdConf)
		cacheBackend = cache.NewRedisBackend(conf.RedisConfig.Addrs, conf.RedisConfig.Namespace)
	default:
		d.definitionStore = inmem.NewInMemDefinitionStore()
		d.runDao = inmem.NewInMemRunStateDao()
		d.tokenDao = inmem.NewInMemWaitTokenDao()
		cacheBackend = cache.NewMemoryBackend(conf.FallbackCacheCapacity)
	}
	d.defCache = cache.NewDefinitionCache(cacheBackend, conf.DefinitionCacheTTL, conf.PlanCacheTTL)
	d.waitRegistry = registry.NewEventWaitRegistry(d.tokenDao)
}

func (d *DIContainer) GetDefinitionStore() persistence.DefinitionStore {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.definitionStore
}

func (d *DIContainer) GetRunStateDao() persistence.RunStateDao {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.runDao
}

func (d *DIContainer) GetDefinitionCache() *cache.DefinitionCache {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.defCache
}

func (d *DIContainer) GetWaitRegistry() *registry.EventWaitRegistry {
	if !d.initialized {
		panic("container not initialized")
	}
	return d.waitRegistry
}
