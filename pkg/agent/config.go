package agent

import (
	"os"
	"strconv"
	"time"
)

// Config is an agent's effective configuration after applying the
// precedence order from spec §4.C stage 2: "environment variables >
// decorator arguments > defaults". Decorator arguments have no Go
// equivalent; AgentBuilder fields play that role instead.
type Config struct {
	Name              string
	Namespace         string
	RegistryURL       string
	HTTPHost          string
	HTTPPort          int
	HTTPEnabled       bool
	HTTPEndpoint      string
	HealthInterval    time.Duration
	AutoRun           bool
	AutoRunInterval   time.Duration
	TimeoutThreshold  time.Duration
	EvictionThreshold time.Duration
	Standalone        bool
}

// resolveConfig applies the env > builder-argument > default precedence
// for every recognized variable in spec §6.
func resolveConfig(b *AgentBuilder) Config {
	cfg := Config{
		Name:              firstNonEmpty(os.Getenv("MCP_MESH_AGENT_NAME"), b.name, "agent"),
		Namespace:         firstNonEmpty(os.Getenv("MCP_MESH_NAMESPACE"), b.namespace),
		RegistryURL:       firstNonEmpty(os.Getenv("MCP_MESH_REGISTRY_URL"), b.registryURL, "http://localhost:8000"),
		HTTPHost:          firstNonEmpty(os.Getenv("MCP_MESH_HTTP_HOST"), b.httpHost, "0.0.0.0"),
		HTTPEndpoint:      firstNonEmpty(os.Getenv("MCP_MESH_HTTP_ENDPOINT"), b.httpEndpoint),
		HTTPEnabled:       envBoolOr("MCP_MESH_HTTP_ENABLED", b.httpEnabled),
		AutoRun:           envBoolOr("MCP_MESH_AUTO_RUN", b.autoRun),
		Standalone:        b.standalone,
		TimeoutThreshold:  durationOrDefault(b.timeoutThreshold, 60*time.Second),
		EvictionThreshold: durationOrDefault(b.evictionThreshold, 120*time.Second),
	}

	cfg.HTTPPort = envIntOr("MCP_MESH_HTTP_PORT", b.httpPort, 8080)
	cfg.HealthInterval = envDurationSecondsOr("MCP_MESH_HEALTH_INTERVAL", b.healthInterval, 10*time.Second)
	cfg.AutoRunInterval = envDurationSecondsOr("MCP_MESH_AUTO_RUN_INTERVAL", b.autoRunInterval, cfg.HealthInterval)

	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envIntOr(key string, fallback, def int) int {
	if fallback <= 0 {
		fallback = def
	}
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationSecondsOr(key string, fallback time.Duration, def time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = def
	}
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
