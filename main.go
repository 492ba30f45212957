package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/roomcast/server/config"
	"github.com/roomcast/server/src/api"
	"github.com/roomcast/server/src/bridge"
	"github.com/roomcast/server/src/clock"
	"github.com/roomcast/server/src/conn"
	"github.com/roomcast/server/src/hub"
	"github.com/roomcast/server/src/room"
)

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg.Debug)

	clk := clock.New()
	rooms := room.NewRegistry(cfg.RoomIdleTimeout, clk, logger)
	srv := hub.NewServer(rooms, conn.Options{
		NetworkDelay:          cfg.NetworkDelay,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		MaxHeartbeatLoseCount: cfg.MaxHeartbeatLoseCount,
		MessageRate:           cfg.MessageRate,
		MessageBurst:          cfg.MessageBurst,
	}, clk, logger)
	go srv.Run()

	// Redis relay is optional; without it the server runs standalone.
	rb := bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), srv, logger)
	if err := rb.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		rb = nil
	} else {
		srv.SetBridge(rb)
	}

	app := fiber.New()
	api.Register(app, rooms, logger)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		logger.Info().Str("addr", addr).Msg("http api listening")
		if err := app.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("http api stopped")
		}
	}()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Fatal().Err(err).Int("port", cfg.Port).Msg("listen failed")
	}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("websocket server listening")
		if err := srv.Serve(ln); err != nil {
			logger.Info().Err(err).Msg("accept loop stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ln.Close()
	srv.Stop()
	if rb != nil {
		if err := rb.Stop(); err != nil {
			logger.Error().Err(err).Msg("bridge stop error")
		}
	}
	if err := app.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
