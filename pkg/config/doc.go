// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GROUPS_HOST="0.0.0.0"
//	GROUPS_PORT="8080"
//	GROUPS_HEALTH_PORT="9090"
//	GROUPS_READ_TIMEOUT="15s"
//	GROUPS_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GROUPS_POSTGRES_URL="postgres://localhost/groups"
//	GROUPS_POSTGRES_REPLICA_URLS="postgres://replica1,postgres://replica2"
//	GROUPS_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	GROUPS_CACHE_ENABLED="true"
//	GROUPS_REDIS_URL="redis://localhost:6379"
//	GROUPS_CACHE_TTL="5m"
//
// External collaborators:
//
//	GROUPS_AUTH_URL="https://auth.example.com"
//	GROUPS_WORKSPACE_URL="https://workspace.example.com"
//	GROUPS_CATALOG_URL="https://catalog.example.com"
//	GROUPS_FEEDS_URL="https://feeds.example.com"
//
// Request lifecycle:
//
//	GROUPS_REQUEST_TTL="336h"
//	GROUPS_EXPIRE_ENABLED="true"
//	GROUPS_EXPIRE_INTERVAL="1m"
//
// Observability settings:
//
//	GROUPS_LOG_LEVEL="info"  # debug, info, warn, error
//	GROUPS_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
