// Package config loads client settings from a YAML file, a .env file and
// the process environment.
//
// Sources are layered lowest first: the config file, then the .env file,
// then variables already set in the environment. Environment keys carry
// the upper-cased name as a prefix with underscores for nesting:
//
//	var cfg client.Config
//	err := config.Load("nitai", &cfg)
//
// Here NITAI_POOL_SIZE sets pool_size and NITAI_TLS_CA_FILE sets
// tls.ca_file. Durations accept Go syntax such as "30s".
package config
