package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/config"
	"github.com/tdex-network/price-publisher/internal/core/application/publisher"
	pythdservice "github.com/tdex-network/price-publisher/internal/infrastructure/pythd"
	httpinterface "github.com/tdex-network/price-publisher/internal/interfaces/http"
	"github.com/tdex-network/price-publisher/pkg/pythd"
	"github.com/tdex-network/price-publisher/pkg/stats"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var errInterrupted = errors.New("interrupted")

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "publisherd"
	app.Usage = "Publish reference prices to a pythd instance"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path of an optional yaml config file, env vars take precedence",
		},
	}
	app.Before = loadConfig
	app.Action = startAction
	app.Commands = append(app.Commands, &tokens)

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("publisherd exited with error")
	}
}

func loadConfig(ctx *cli.Context) error {
	if err := config.Load(ctx.String("config")); err != nil {
		return err
	}
	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))
	return nil
}

func startAction(_ *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources, closeSources, err := newPriceSources(ctx)
	if err != nil {
		return err
	}
	defer closeSources()

	client := pythd.NewClient(config.GetString(config.PythdEndpointKey))

	publisherSvc, err := publisher.NewService(
		pythdservice.NewService(client), sources, publisher.Config{
			ProductUpdateInterval: config.GetSeconds(config.ProductUpdateIntervalKey),
			StalenessThreshold:    config.GetSeconds(config.StalenessThresholdKey),
			HealthCheckThreshold:  config.GetSeconds(config.HealthCheckThresholdKey),
		},
	)
	if err != nil {
		return err
	}

	if err := client.Connect(
		ctx, pythdservice.NotifyHandler(publisherSvc.HandleNotifyPriceSched),
	); err != nil {
		return err
	}
	defer client.Close()

	if err := publisherSvc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	httpSvc, err := httpinterface.NewService(
		publisherSvc, config.GetInt(config.HealthCheckPortKey),
	)
	if err != nil {
		return err
	}
	if err := httpSvc.Start(); err != nil {
		return err
	}
	defer httpSvc.Stop()

	if config.GetBool(config.EnableProfilerKey) {
		stats.EnableMemoryStatistics(
			ctx, config.GetSeconds(config.StatsIntervalKey),
			filepath.Join(config.GetDatadir(), config.ProfilerLocation),
		)
	}

	log.Info("publisherd started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case <-sigChan:
			return errInterrupted
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		select {
		case <-client.Done():
			if err := client.Err(); err != nil {
				return err
			}
			return pythd.ErrConnectionLost
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); !errors.Is(err, errInterrupted) {
		return err
	}

	log.Info("shutting down")
	return nil
}
