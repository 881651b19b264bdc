package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "transit-map",
		Usage: "Live transit vehicle map with location search",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file (default ./config.yml if present)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "console",
				Usage: "log output format: console or json",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			initLogging(os.Stdout, c.String("log-format"), c.Bool("debug"))
			return nil
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCommand(),
			vehiclesCommand(),
			geocodeCommand(),
		},
	}
}

func loadConfig(c *cli.Context) (AppConfig, error) {
	return LoadAppConfig(c.String("config"))
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the map web server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "HTTP port (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServer(c.Context, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg AppConfig) error {
	feed, err := NewVehicleFeedSource(cfg.Feed)
	if err != nil {
		return err
	}
	svc := newMapService(cfg, NewNominatimResolver(cfg.Geocoder, cfg.City.Name), feed)
	a := newApp(cfg, svc)

	mux := http.NewServeMux()
	a.registerRoutes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           withLogging(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("server starting on http://localhost:%d/", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	sigctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errc:
		return err
	case <-sigctx.Done():
	}
	log.Info().Msg("shutdown initiated...")

	a.hub.closeAll()

	sctx, cancel := context.WithTimeout(context.Background(), msDuration(cfg.Server.ShutdownTimeoutMS))
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}
	log.Info().Msg("HTTP server shut down successfully")
	return nil
}

func vehiclesCommand() *cli.Command {
	return &cli.Command{
		Name:  "vehicles",
		Usage: "fetch the vehicle feed once and print the decoded vehicles",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "feed URL (overrides feed.url)"},
			&cli.StringFlag{Name: "format", Usage: "gtfsrt, siri-xml or siri-json (overrides feed.format)"},
			&cli.BoolFlag{Name: "pretty", Usage: "print Go values instead of JSON lines"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if c.IsSet("url") {
				cfg.Feed.URL = c.String("url")
			}
			if c.IsSet("format") {
				cfg.Feed.Format = c.String("format")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			src, err := NewVehicleFeedSource(cfg.Feed)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(c.Context, msDuration(cfg.Feed.TimeoutMS))
			defer cancel()
			vehicles, err := src.Fetch(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("vehicles", len(vehicles)).Msg("fetched vehicles")
			if c.Bool("pretty") {
				_, err := pretty.Fprintf(c.App.Writer, "%# v\n", vehicles)
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			for _, v := range vehicles {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func geocodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "geocode",
		Usage:     "resolve a place in the configured city",
		ArgsUsage: "<query>",
		Action: func(c *cli.Context) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return cli.Exit("a query is required", 2)
			}
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			r := NewNominatimResolver(cfg.Geocoder, cfg.City.Name)
			res := resolveWithTimeout(c.Context, r, query, msDuration(cfg.Geocoder.TimeoutMS))
			if !res.Found {
				return cli.Exit(res.Message, 1)
			}
			_, err = fmt.Fprintf(c.App.Writer, "%.6f,%.6f\n", res.Coordinate.Lat, res.Coordinate.Lon)
			return err
		},
	}
}
