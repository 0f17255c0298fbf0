package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	kcf "github.com/fogbank-io/runtrack/pkg/configs/trackd"
	kpool "github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact/local"
	"github.com/fogbank-io/runtrack/pkg/domain/registry/postgres"
	"github.com/fogbank-io/runtrack/pkg/domain/registry/postgres/schema"
	"github.com/fogbank-io/runtrack/pkg/utils/filewatch"
	"github.com/fogbank-io/runtrack/pkg/utils/retry"
)

func main() {

	configPath := flag.String(
		"config-path", os.Getenv("TRACKD_CONFIG"), "path to config file",
	)
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	flag.Parse()

	conf, err := kcf.LoadTrackdConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configuration: %s", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer cancel()

	{
		// restart (via the process supervisor) when the config is rewritten.
		wctx, wcancel, err := filewatch.UntilModifyContext(ctx, *configPath)
		if err != nil {
			log.Fatalf("can not watch configuration: %s", err)
		}
		defer wcancel()
		ctx = wctx
	}

	pool, err := retry.Blocking(ctx, retry.StaticBackoff(2*time.Second), func() (kpool.Pool, error) {
		p, err := kpool.Connect(ctx, conf.DBURI)
		if err != nil {
			log.Printf("registry database is not ready: %s", err)
			return nil, fmt.Errorf("%w: %s", retry.ErrRetry, err)
		}
		return p, nil
	})
	if err != nil {
		log.Fatalf("can not connect to the registry database: %s", err)
	}
	defer pool.Close()

	if err := schema.New(pool).Ensure(ctx); err != nil {
		log.Fatalf("can not prepare the registry schema: %s", err)
	}

	store, err := local.New(conf.ArtifactRoot)
	if err != nil {
		log.Fatalf("can not open the artifact store: %s", err)
	}

	server := BuildServer(postgres.New(pool), store, *loglevel)
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", r.Method, r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		var err error
		if tls := conf.TLS; tls != nil {
			err = server.StartTLS(":"+conf.ServerPort, tls.CertPath, tls.KeyPath)
		} else {
			err = server.Start(":" + conf.ServerPort)
		}
		if err != nil && err != http.ErrServerClosed {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		if err := ctx.Err(); err != nil {
			server.Logger.Infof("context has been done: %s, cause: %s", err, context.Cause(ctx))
			exit = 1
		}
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		server.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer qcancel()

		if err := server.Shutdown(qctx); err != nil {
			server.Logger.Fatalf("Shutdown with error. %+v", err)
		}
		os.Exit(exit)
	}
}
