// Package config loads project settings from sweeps.yaml and SWEEPS_*
// environment variables.
package config
