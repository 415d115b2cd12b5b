// Package config loads the helpdesk-bridge TOML configuration.
//
// Configuration values support ${VAR} environment variable expansion,
// which keeps secrets like access tokens and API keys out of the file
// itself. Durations are written as Go duration strings ("5m", "1s").
package config
