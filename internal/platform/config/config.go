// Package config loads process configuration from the environment so main
// stays lean.
package config

import (
	"os"
	"strings"
	"time"
)

// Server captures HTTP server and issuer identity configuration.
type Server struct {
	Addr string
	// Issuer is this server's public identifier; it appears as the iss
	// claim of every token and as the expected audience of client
	// assertions.
	Issuer string
}

// Redis configures the device-authorization store. An empty URL disables
// Redis and falls back to the in-memory store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the client registration store. An empty URL falls
// back to the in-memory store.
type Postgres struct {
	URL string
}

// Kafka configures the domain event sink. No brokers means events go to
// the in-memory sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full process configuration.
type Config struct {
	Server   Server
	Redis    Redis
	Postgres Postgres
	Kafka    Kafka
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	addr := os.Getenv("SIGNET_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	issuer := os.Getenv("SIGNET_ISSUER")
	if issuer == "" {
		issuer = "http://localhost:8080"
	}
	topic := os.Getenv("SIGNET_KAFKA_TOPIC")
	if topic == "" {
		topic = "signet.events"
	}

	var brokers []string
	if raw := os.Getenv("SIGNET_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Server: Server{
			Addr:   addr,
			Issuer: strings.TrimRight(issuer, "/"),
		},
		Redis: Redis{
			URL:          os.Getenv("SIGNET_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: Postgres{
			URL: os.Getenv("SIGNET_POSTGRES_URL"),
		},
		Kafka: Kafka{
			Brokers: brokers,
			Topic:   topic,
		},
	}
}
