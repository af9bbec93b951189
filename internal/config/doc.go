// Package config loads and validates the agenthub YAML configuration.
//
// Values may reference environment variables with ${VAR_NAME} syntax;
// duration fields accept Go duration strings ("30s", "5m").
package config
