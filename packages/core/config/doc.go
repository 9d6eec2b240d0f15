// Package config loads the ddtspec project configuration.
//
// The file is ddtspec.yaml, ddtspec.json or ddtspec.toml, found by walking
// up from the working directory. Missing values fall back to DefaultConfig.
package config
