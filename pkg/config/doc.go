// Package config loads typed configuration from environment variables, with
// optional .env files, via caarlos0/env and joho/godotenv.
package config
