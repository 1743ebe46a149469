// Package config handles configuration loading and management for flowspec.
//
// It provides functionality for:
//   - Loading configuration from .flowspec.config.json or .flowspecrc files
//   - Default configuration values
//   - Loading .env files
//   - The environment contract between the orchestrator and worker processes
package config
