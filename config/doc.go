// Package config loads and validates the loanflow configuration.
//
// Values resolve in three layers: compiled defaults, an optional YAML
// file, and LOANFLOW_* environment variables, later layers winning.
package config
