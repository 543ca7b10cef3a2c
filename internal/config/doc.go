// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets such as the API key and database password are normally supplied this way,
// optionally from a .env file loaded by the binary.
package config
