package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/bridge"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/config"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geocode"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/httpapi"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/metrics"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/refindex"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := httpapi.NewLogger("info")
		l.Fatal().Err(err).Msg("bad configuration")
	}

	logger := httpapi.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boundary := loadBoundary(cfg, logger)
	proj := geom.Equirectangular(geom.SampleLat(boundary, cfg.MapCentreLat))

	// Reference matchers degrade per dataset: a file that fails to load
	// disables its suggestion, nothing else.
	designation := refindex.NewDesignationMatcher(
		buildIndex(cfg.DesignationGeoJSON, proj, "designation", logger),
		proj, cfg.DesignationMaxDistanceM, logger)
	ownership := refindex.NewOwnershipMatcher(
		buildIndex(cfg.OwnershipGeoJSON, proj, "ownership", logger),
		proj, cfg.OwnershipMaxDistanceM, cfg.OwnershipBufferM, cfg.OwnershipTag, logger)

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis not reachable, geocode cache disabled")
			cache = nil
		}
	}
	geocoder := geocode.New(geocode.Options{
		BaseURL:   cfg.GeocodeBaseURL,
		UserAgent: cfg.GeocodeUserAgent,
		Timeout:   cfg.GeocodeTimeout,
		Redis:     cache,
	}, logger)

	m := metrics.New()
	dataset := editor.New(cfg.Borough, boundary, logger)

	var pool *store.Pool
	var st *store.Store
	if cfg.DatabaseURL != "" {
		p, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
		st = store.New(p, logger)

		routes, err := st.LoadRoutes(ctx, cfg.Borough)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load routes")
		}
		dataset.Load(routes)
	}

	session := bridge.NewSession(dataset, bridge.Options{
		CreateConfirmWindow: cfg.CreateConfirmWindow,
		User:                cfg.User,
		GeocodeTimeout:      cfg.GeocodeTimeout,
		Designation:         designation,
		Ownership:           ownership,
		Geocoder:            geocoder,
	}, logger, m)
	go func() { _ = session.Run(ctx) }()

	h := httpapi.NewHandler(logger, session, st, pool, m, httpapi.MapConfig{
		Borough:   cfg.Borough,
		CentreLat: cfg.MapCentreLat,
		CentreLon: cfg.MapCentreLon,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("borough", cfg.Borough).Msg("tracks-core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func loadBoundary(cfg config.Config, logger zerolog.Logger) orb.MultiPolygon {
	if cfg.BoundaryKML == "" {
		logger.Warn().Msg("no boundary file configured; commits will reject every route")
		return nil
	}
	boundaries, err := geom.LoadKMLBoundaries(cfg.BoundaryKML)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.BoundaryKML).Msg("failed to load boundary file")
	}
	boundary, ok := boundaries[cfg.Borough]
	if !ok {
		logger.Fatal().Str("borough", cfg.Borough).Str("path", cfg.BoundaryKML).Msg("borough not present in boundary file")
	}
	return boundary
}

// buildIndex loads and indexes one reference GeoJSON file. Failure returns a
// nil index, which the matchers treat as "always no suggestion".
func buildIndex(path string, proj orb.Projection, name string, logger zerolog.Logger) *refindex.Index {
	if path == "" {
		logger.Info().Str("dataset", name).Msg("reference dataset not configured")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("dataset", name).Str("path", path).Msg("reference dataset unreadable, matcher disabled")
		return nil
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		logger.Error().Err(err).Str("dataset", name).Str("path", path).Msg("reference dataset malformed, matcher disabled")
		return nil
	}
	ix, err := refindex.Build(fc, proj)
	if err != nil {
		logger.Error().Err(err).Str("dataset", name).Str("path", path).Msg("index build failed, matcher disabled")
		return nil
	}
	logger.Info().Str("dataset", name).Int("entries", ix.Len()).Msg("reference index built")
	return ix
}
