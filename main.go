package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxhook/fluxhook/backend"
	"github.com/urfave/cli"
	"github.com/vaughan0/go-ini"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "fluxhook"
	app.Usage = "Forward new RSS items to webhooks"
	app.Version = version

	app.Commands = []cli.Command{
		{
			Name:        "server",
			ShortName:   "s",
			Usage:       "run the server",
			Description: "run the fluxhook server",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Value: "127.0.0.1", Usage: "address to listen on"},
				cli.StringFlag{Name: "port, p", Value: "8080", Usage: "port to listen on"},
				cli.StringFlag{Name: "config, c", Value: "fluxhook.conf", Usage: "path to config file"},
			},
			Action: Serve,
		},
		{
			Name:        "migrate",
			Usage:       "migrate the database",
			Description: "create or upgrade the database schema",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config, c", Value: "fluxhook.conf", Usage: "path to config file"},
			},
			Action: Migrate,
		},
		{
			Name:        "hash-password",
			Usage:       "hash an API password",
			ArgsUsage:   "password",
			Description: "print the bcrypt hash to use as auth.password_hash",
			Action:      HashPassword,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadHTTPConfig(c *cli.Context, conf ini.File) (backend.HTTPConfig, error) {
	config := backend.HTTPConfig{}
	config.ListenAddress = c.String("address")
	config.ListenPort = c.String("port")

	var ok bool
	if !c.IsSet("address") {
		if config.ListenAddress, ok = conf.Get("server", "address"); !ok {
			return config, errors.New("missing server address")
		}
	}

	if !c.IsSet("port") {
		if config.ListenPort, ok = conf.Get("server", "port"); !ok {
			return config, errors.New("missing server port")
		}
	}

	return config, nil
}

func Serve(c *cli.Context) error {
	conf, err := backend.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	httpConfig, err := loadHTTPConfig(c, conf)
	if err != nil {
		return err
	}

	logger, err := backend.NewLogger(conf)
	if err != nil {
		return err
	}

	appConfig, err := backend.LoadAppConfig(conf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := backend.OpenStore(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	app, err := backend.NewApp(appConfig, store, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Restore(ctx); err != nil {
		return fmt.Errorf("restore flux: %w", err)
	}

	listenAt := net.JoinHostPort(httpConfig.ListenAddress, httpConfig.ListenPort)
	server := &http.Server{
		Addr:              listenAt,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logger.Info("Starting to listen", "address", listenAt)

	select {
	case err := <-serveErr:
		return fmt.Errorf("could not start web server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func Migrate(c *cli.Context) error {
	conf, err := backend.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	logger, err := backend.NewLogger(conf)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := backend.OpenStore(ctx, conf, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Migrate(ctx)
}

func HashPassword(c *cli.Context) error {
	if len(c.Args()) != 1 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return errors.New("expected exactly one password")
	}

	hash, err := backend.HashPassword(c.Args()[0])
	if err != nil {
		return err
	}

	fmt.Println(hash)

	return nil
}
