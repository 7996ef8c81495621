package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

// Plan entries may outlive the raw definition entry: plans are immutable per
// version, so only an explicit invalidation on save has to remove them.
const DefaultDefinitionCacheTTL = 1 * time.Hour
const DefaultPlanCacheTTL = 24 * time.Hour
const DefaultWaitTimeout = 24 * time.Hour
const DefaultSweepInterval = 1 * time.Minute
const DefaultRetryBackoffBase = 1 * time.Second
const DefaultRetryBackoffCap = 1 * time.Minute

type Config struct {
	RedisConfig           RedisStorageConfig
	StorageType           StorageType
	HttpPort              int
	ExecutorEndpoint      string
	DefinitionCacheTTL    time.Duration
	PlanCacheTTL          time.Duration
	FallbackCacheCapacity int
	WaitTimeout           time.Duration
	SweepInterval         time.Duration
	MaxDispatchAttempts   int
	RetryBackoffBase      time.Duration
	RetryBackoffCap       time.Duration
	WorkerCount           int
	WorkerCapacity        int
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
