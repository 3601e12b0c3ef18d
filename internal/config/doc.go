// Package config loads the chatdesk console configuration from a YAML
// file. Values support ${VAR} environment expansion, and duration fields
// accept Go duration strings.
package config
