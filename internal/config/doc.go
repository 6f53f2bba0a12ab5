// Package config provides centralized configuration management for the
// wallet daemon, covering the API server, session key material, chain
// endpoints, job storage and queue backends, and logging.
package config
