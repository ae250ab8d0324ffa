package helper

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v11"
)

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT"`
	DB       int    `env:"REDIS_DB"`
	Password string `env:"REDIS_PASSWORD"`
}

func (rc RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", rc.Host, rc.Port)
}

// MasterConfig configures the coordinating node. int64 fields are byte sizes
// and accept units ("4KB").
type MasterConfig struct {
	Address      string `env:"MASTER_ADDR"`
	Redis        RedisConfig
	ChunkServers []string `env:"CHUNK_SERVERS" envSeparator:","`

	ChunkSize         int64 `env:"CHUNK_SIZE"`
	ReplicationFactor int   `env:"REPLICATION_FACTOR"`
	BatchSize         int   `env:"BATCH_CHUNK_SIZE"`
	// largest chunk count init accepts for one file
	MaxChunks int `env:"MAX_CHUNKS"`
	// rotate placement start across files using a persisted cursor
	SpreadAcrossFiles bool `env:"SPREAD_ACROSS_FILES"`

	HeartbeatInterval   time.Duration `env:"HEALTH_CHECK_INTERVAL"`
	ReplicationInterval time.Duration `env:"REPLICATION_INTERVAL"`
	Retry               RetryPolicy
}

type ChunkServerConfig struct {
	Address string `env:"CHUNK_SERVER_ADDR"`
	// identifier registered in chunk placement sets, host:port reachable by master and clients
	AdvertiseAddr string `env:"CHUNK_SERVER_ADVERTISE"`
	UploadFolder  string `env:"UPLOAD_FOLDER"`
	Redis         RedisConfig
}

type ClientConfig struct {
	MasterURL string `env:"MASTER_URL"`
	ChunkSize int64  `env:"CHUNK_SIZE"`
	Retry     RetryPolicy
}

func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		Address:             DEFAULT_MASTER_ADDR,
		Redis:               defaultRedisConfig(),
		ChunkSize:           CHUNK_SIZE,
		ReplicationFactor:   REPLICATION_FACTOR,
		BatchSize:           BATCH_CHUNK_SIZE,
		MaxChunks:           MAX_CHUNKS,
		HeartbeatInterval:   HEALTH_CHECK_INTERVAL,
		ReplicationInterval: REPLICATION_INTERVAL,
		Retry:               DefaultRetryPolicy(),
	}
}

func LoadMasterConfig() (MasterConfig, error) {
	cfg := DefaultMasterConfig()
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}

	cfg.ChunkServers = cleanServerList(cfg.ChunkServers)
	if len(cfg.ChunkServers) == 0 {
		// containerised deployments name chunk servers chunk_server_1..n
		var numbered struct {
			Count int `env:"CHUNK_SERVER_NUMBER"`
		}
		if err := parseEnv(&numbered); err != nil {
			return cfg, err
		}
		cfg.ChunkServers = ServerNames(numbered.Count)
	}
	return cfg, cfg.Validate()
}

func (cfg MasterConfig) Validate() error {
	switch {
	case cfg.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrValidation, cfg.ChunkSize)
	case cfg.ReplicationFactor < 1:
		return fmt.Errorf("%w: replication factor must be at least 1, got %d", ErrValidation, cfg.ReplicationFactor)
	case cfg.MaxChunks < 1:
		return fmt.Errorf("%w: max chunks must be at least 1, got %d", ErrValidation, cfg.MaxChunks)
	case cfg.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be at least 1, got %d", ErrValidation, cfg.BatchSize)
	case cfg.HeartbeatInterval <= 0 || cfg.ReplicationInterval <= 0:
		return fmt.Errorf("%w: background intervals must be positive", ErrValidation)
	}
	return nil
}

func LoadChunkServerConfig() (ChunkServerConfig, error) {
	cfg := ChunkServerConfig{
		Address:      DEFAULT_CHUNK_SERVER_ADDR,
		UploadFolder: DEFAULT_UPLOAD_FOLDER,
		Redis:        defaultRedisConfig(),
	}
	var id struct {
		ID string `env:"CHUNK_SERVER_ID"`
	}
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := parseEnv(&id); err != nil {
		return cfg, err
	}
	if cfg.AdvertiseAddr == "" && id.ID != "" {
		cfg.AdvertiseAddr = fmt.Sprintf("%s%s:%d", CHUNK_SERVER_BASE_NAME, id.ID, CHUNK_SERVER_PORT)
	}
	return cfg, nil
}

func LoadClientConfig() (ClientConfig, error) {
	cfg := ClientConfig{
		MasterURL: DEFAULT_MASTER_URL,
		ChunkSize: CHUNK_SIZE,
		Retry:     DefaultRetryPolicy(),
	}
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.MasterURL = strings.TrimRight(cfg.MasterURL, "/")
	if cfg.ChunkSize <= 0 {
		return cfg, fmt.Errorf("%w: chunk size must be positive, got %d", ErrValidation, cfg.ChunkSize)
	}
	return cfg, nil
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{Host: "localhost", Port: 6379}
}

// ParseServerList splits a comma separated list of host:port identifiers.
func ParseServerList(list string) []string {
	return cleanServerList(strings.Split(list, ","))
}

func cleanServerList(raw []string) []string {
	var servers []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

func ServerNames(n int) []string {
	servers := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		servers = append(servers, fmt.Sprintf("%s%d:%d", CHUNK_SERVER_BASE_NAME, i, CHUNK_SERVER_PORT))
	}
	return servers
}

// parseEnv overrides fields of cfg from their env tags. Unset and empty
// variables keep the value already in cfg.
func parseEnv(cfg interface{}) error {
	environment := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.TrimSpace(v) != "" {
			environment[k] = strings.TrimSpace(v)
		}
	}
	err := env.ParseWithOptions(cfg, env.Options{
		Environment: environment,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(int64(0)): parseSize,
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// parseSize accepts plain byte counts ("1024") as well as units ("1KB", "4MB").
func parseSize(v string) (interface{}, error) {
	size, err := datasize.ParseString(v)
	if err != nil {
		return nil, fmt.Errorf("%q is not a size", v)
	}
	if size.Bytes() > 1<<62 {
		return nil, fmt.Errorf("%q is too large", v)
	}
	return int64(size.Bytes()), nil
}
