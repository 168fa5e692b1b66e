// Package config loads the server configuration from the environment, optionally seeded from a .env file.
package config
