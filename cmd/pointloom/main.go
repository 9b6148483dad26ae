package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/pointloom/pointloom/internal/api/http"
	"github.com/pointloom/pointloom/internal/cache"
	"github.com/pointloom/pointloom/internal/config"
	"github.com/pointloom/pointloom/internal/geo"
	"github.com/pointloom/pointloom/internal/point"
	"github.com/pointloom/pointloom/internal/point/networks"
	"github.com/pointloom/pointloom/internal/scheduler"
	"github.com/pointloom/pointloom/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	fileCache, err := cache.New(cfg.CacheDir)
	if err != nil {
		logger.Error("failed to create file cache", "error", err)
		os.Exit(1)
	}

	dispatcher, err := point.NewDispatcher(buildAdapters(cfg, httpClient, fileCache)...)
	if err != nil {
		logger.Error("failed to register network adapters", "error", err)
		os.Exit(1)
	}

	catalog := store.NewCatalog[point.Station](cfg.CatalogTTL)
	service := point.NewService(dispatcher, catalog, logger)

	// Optional catalog warm-up over a configured region.
	var region *geo.Region
	if cfg.RegionFile != "" {
		raw, err := os.ReadFile(cfg.RegionFile)
		if err != nil {
			logger.Error("failed to read region file", "path", cfg.RegionFile, "error", err)
			os.Exit(1)
		}
		region, err = geo.ParseGeoJSON(raw)
		if err != nil {
			logger.Error("failed to parse region file", "path", cfg.RegionFile, "error", err)
			os.Exit(1)
		}
	}
	sched := scheduler.New(region, cfg.RefreshInterval, service, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "pointloom",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "pointloom",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.NewHandlers(service, cfg.GeocoderAPIKey))

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

// buildAdapters instantiates the configured network adapters.
func buildAdapters(cfg *config.AppConfig, client *http.Client, fc *cache.FileCache) []point.Adapter {
	var adapters []point.Adapter
	for _, name := range cfg.Networks {
		switch point.Network(name) {
		case point.NetworkCDEC:
			adapters = append(adapters, networks.NewCDEC(networks.WithHTTPClient(client)))
		case point.NetworkSnotel:
			adapters = append(adapters, networks.NewSnotel(networks.WithHTTPClient(client)))
		case point.NetworkUSGS:
			adapters = append(adapters, networks.NewUSGS(networks.WithHTTPClient(client)))
		case point.NetworkMesowest:
			opts := []networks.Option{networks.WithHTTPClient(client)}
			if cfg.SynopticTokenFile != "" {
				opts = append(opts, networks.WithTokenPath(cfg.SynopticTokenFile))
			}
			adapters = append(adapters, networks.NewMesowest(opts...))
		case point.NetworkNWSForecast:
			adapters = append(adapters, networks.NewNWSForecast(networks.WithHTTPClient(client)))
		case point.NetworkCSAS:
			adapters = append(adapters, networks.NewCSAS(fc, networks.WithHTTPClient(client)))
		default:
			slog.Warn("unknown network in configuration, skipping", "network", name)
		}
	}
	return adapters
}
