// Package config assembles runtime configuration from an optional YAML file
// and the environment. Environment wins; a .env file is honoured for local
// development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`

	Borough            string `yaml:"borough"`
	User               string `yaml:"user"`
	BoundaryKML        string `yaml:"boundary_kml"`
	DesignationGeoJSON string `yaml:"designation_geojson"`
	OwnershipGeoJSON   string `yaml:"ownership_geojson"`

	DesignationMaxDistanceM float64 `yaml:"designation_max_distance_m"`
	OwnershipMaxDistanceM   float64 `yaml:"ownership_max_distance_m"`
	OwnershipBufferM        float64 `yaml:"ownership_buffer_m"`
	OwnershipTag            string  `yaml:"ownership_tag"`

	CreateConfirmWindow time.Duration `yaml:"create_confirm_window"`

	GeocodeBaseURL   string        `yaml:"geocode_base_url"`
	GeocodeUserAgent string        `yaml:"geocode_user_agent"`
	GeocodeTimeout   time.Duration `yaml:"geocode_timeout"`

	MapCentreLat float64 `yaml:"map_centre_lat"`
	MapCentreLon float64 `yaml:"map_centre_lon"`
}

// Defaults returns the built-in configuration: Richmond upon Thames with the
// stock matcher thresholds.
func Defaults() Config {
	return Config{
		HTTPAddr:                ":8081",
		LogLevel:                "info",
		Borough:                 "Richmond upon Thames",
		User:                    "unknown",
		DesignationMaxDistanceM: 40,
		OwnershipMaxDistanceM:   50,
		OwnershipBufferM:        60,
		OwnershipTag:            "TFL",
		CreateConfirmWindow:     time.Second,
		GeocodeBaseURL:          "https://nominatim.openstreetmap.org",
		GeocodeUserAgent:        "tracks-core/1.0",
		GeocodeTimeout:          2 * time.Second,
		MapCentreLat:            51.5074,
		MapCentreLon:            -0.1278,
	}
}

// Load builds the effective configuration. Order: defaults, then the YAML
// file named by TRACKS_CONFIG (if any), then individual env variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("TRACKS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = envOr("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envOr("REDIS_ADDR", cfg.RedisAddr)
	cfg.Borough = envOr("TRACKS_BOROUGH", cfg.Borough)
	cfg.User = envOr("TRACKS_USER", cfg.User)
	cfg.BoundaryKML = envOr("TRACKS_BOUNDARY_KML", cfg.BoundaryKML)
	cfg.DesignationGeoJSON = envOr("TRACKS_DESIGNATION_GEOJSON", cfg.DesignationGeoJSON)
	cfg.OwnershipGeoJSON = envOr("TRACKS_OWNERSHIP_GEOJSON", cfg.OwnershipGeoJSON)
	cfg.OwnershipTag = envOr("TRACKS_OWNERSHIP_TAG", cfg.OwnershipTag)
	cfg.GeocodeBaseURL = envOr("TRACKS_GEOCODE_BASE_URL", cfg.GeocodeBaseURL)
	cfg.GeocodeUserAgent = envOr("TRACKS_GEOCODE_USER_AGENT", cfg.GeocodeUserAgent)

	var err error
	if cfg.DesignationMaxDistanceM, err = envFloat("TRACKS_DESIGNATION_MAX_DISTANCE_M", cfg.DesignationMaxDistanceM); err != nil {
		return Config{}, err
	}
	if cfg.OwnershipMaxDistanceM, err = envFloat("TRACKS_OWNERSHIP_MAX_DISTANCE_M", cfg.OwnershipMaxDistanceM); err != nil {
		return Config{}, err
	}
	if cfg.OwnershipBufferM, err = envFloat("TRACKS_OWNERSHIP_BUFFER_M", cfg.OwnershipBufferM); err != nil {
		return Config{}, err
	}
	if cfg.MapCentreLat, err = envFloat("TRACKS_MAP_CENTRE_LAT", cfg.MapCentreLat); err != nil {
		return Config{}, err
	}
	if cfg.MapCentreLon, err = envFloat("TRACKS_MAP_CENTRE_LON", cfg.MapCentreLon); err != nil {
		return Config{}, err
	}
	if cfg.CreateConfirmWindow, err = envDuration("TRACKS_CREATE_CONFIRM_WINDOW", cfg.CreateConfirmWindow); err != nil {
		return Config{}, err
	}
	if cfg.GeocodeTimeout, err = envDuration("TRACKS_GEOCODE_TIMEOUT", cfg.GeocodeTimeout); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
