package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"surveydesk-go/internal/config"
	"surveydesk-go/internal/devserver"
	"surveydesk-go/internal/logging"
	"surveydesk-go/internal/monitoring/tracing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	addr := flag.String("addr", "", "Listen address (overrides dev_server.addr)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *debug {
		cfg.Security.Debug = true
	}
	if *addr != "" {
		cfg.DevServer.Addr = *addr
	}
	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background(), tracing.OptionsFromConfig(cfg, tracing.ServiceDevServer))
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	defer func() {
		if err := traceShutdown(context.Background()); err != nil {
			log.WithError(err).Warn("failed to shutdown tracing")
		}
	}()

	srv, err := devserver.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to build dev server")
	}
	log.WithFields(log.Fields{
		"addr":       cfg.DevServer.Addr,
		"demo_email": cfg.DevServer.DemoEmail,
	}).Info("Starting SurveyDesk dev server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil {
		log.WithError(err).Error("dev server stopped")
		return
	}
	log.Info("dev server stopped")
}
