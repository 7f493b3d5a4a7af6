// Command wireloop-demo serves a tiny HTTP/1.x responder on top of the
// endpoint loop: every request head gets a 200 echoing its target.
//
//	wireloop-demo -listen :8080 -metrics :9090 -config demo.toml
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pior/wireloop/buffet"
	"github.com/pior/wireloop/endpoint"
	"github.com/pior/wireloop/internal/httphead"
)

func main() {
	listenAddr := flag.String("listen", ":8080", "address to serve on")
	metricsAddr := flag.String("metrics", ":9090", "address of the /metrics endpoint, empty to disable")
	configPath := flag.String("config", "", "TOML endpoint configuration")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(logger, *listenAddr, *metricsAddr, *configPath); err != nil {
		logger.Fatal().Err(err).Msg("demo failed")
	}
}

func run(logger zerolog.Logger, listenAddr, metricsAddr, configPath string) error {
	cfg := endpoint.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = endpoint.LoadConfig(configPath); err != nil {
			return err
		}
	}

	ep, err := endpoint.New(cfg, httphead.Parse, respond, endpoint.WithLogger(logger), endpoint.WithName("demo"))
	if err != nil {
		return err
	}
	defer ep.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			endpoint.NewCollector("demo", ep),
			collectors.NewGoCollector(),
		)
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { ln.Close() })
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("shutting down")
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := ep.ServeConn(ctx, conn)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Debug().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("connection ended")
			}
		}()
	}
}

func respond(ctx context.Context, head *httphead.Head, out *buffet.PieceList) error {
	body := head.Target
	out.PushString("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: ")
	out.PushString(strconv.Itoa(body.Len() + 1))
	out.PushString("\r\n\r\n")
	out.PushRoll(body)
	out.PushString("\n")

	if !head.KeepAlive() {
		return endpoint.ErrClose
	}
	return nil
}
