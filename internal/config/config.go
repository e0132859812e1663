package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled  bool
	Topic    string
	Brokers  string
	GroupID  string
	MaxLevel int
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	SourceURLs      map[string]string
	SourceProfiles  map[string]string
	RedisAddr       string
	CacheEnabled    bool
	CacheOpTimeout  time.Duration
	CacheTTLDefault time.Duration
	MemCacheSize    int
	FetchTimeout    time.Duration
	Invalidation    InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:            getenv("ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		SourceURLs:      parseMap(getenv("SOURCES", "")),
		SourceProfiles:  parseMap(getenv("SOURCE_PROFILES", "")),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheEnabled:    getbool("CACHE_ENABLED", true),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 10*time.Minute),
		MemCacheSize:    getint("MEM_CACHE_SIZE", 1024),
		FetchTimeout:    getduration("FETCH_TIMEOUT", 30*time.Second),
		Invalidation: InvalidationCfg{
			Enabled:  getbool("INVALIDATION_ENABLED", false),
			Topic:    getenv("KAFKA_TOPIC", "tile-invalidation"),
			Brokers:  getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID:  getenv("KAFKA_GROUP_ID", "tile-invalidator"),
			MaxLevel: getint("INVALIDATION_MAX_LEVEL", 12),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "imagery=https://host/MapServer,streets=https://other/MapServer"
// into a map
func parseMap(s string) map[string]string {
	out := map[string]string{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
