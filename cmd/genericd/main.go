package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silverswords/rclgeneric/pkg/config"
	"github.com/silverswords/rclgeneric/pkg/logger"
	"github.com/silverswords/rclgeneric/pkg/metrics"
	"github.com/silverswords/rclgeneric/pkg/version"

	_ "github.com/silverswords/rclgeneric/pkg/components/mq/eventbus"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/kafka"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/mqtt"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/nats"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/natsstreaming"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/nsq"
	_ "github.com/silverswords/rclgeneric/pkg/components/mq/redis"
	_ "github.com/silverswords/rclgeneric/pkg/typesupport/builtin"
)

var log = logger.NewLogger("rclgeneric.genericd")

func main() {
	var (
		configPath  string
		showVersion bool
		logOpts     = logger.DefaultOptions()
	)
	flag.StringVar(&configPath, "config", "", "path to the YAML configuration")
	flag.BoolVar(&showVersion, "version", false, "print the version and exit")
	logOpts.AttachCmdFlags(flag.StringVar, flag.BoolVar)
	flag.Parse()

	if showVersion {
		fmt.Println(version.GitVersion())
		return
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	// command line flags win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.Log.OutputLevel = logOpts.OutputLevel
		case "log-as-json":
			cfg.Log.JSONFormatEnabled = logOpts.JSONFormatEnabled
		}
	})

	opts := cfg.LoggerOptions()
	if err := logger.ApplyOptionsToLoggers(&opts); err != nil {
		log.Fatal(err)
	}
	if err := metrics.RegisterViews(); err != nil {
		log.Fatalf("register metrics views: %v", err)
	}

	log.Infof("starting genericd %s", version.GitVersion())
	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatal(err)
	}

	errCh := make(chan error, 1)
	if cfg.HTTP.Address != "" {
		go func() {
			errCh <- d.serve(cfg.HTTP.Address)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		log.Errorf("http server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
}
