// Package config handles configuration loading for warren-gateway.
//
// Configuration is loaded from YAML files with environment variable
// expansion (${VAR_NAME} patterns), duration-string parsing, defaults, and
// validation.
//
// Sections: server (HTTP listen address), tailscale (optional tsnet
// listener), database (SQLite path), agent (model and memory settings),
// providers (LLM credentials), channels (the HTTP relay), logging.
package config
