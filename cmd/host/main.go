package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/droniapp/go-auth-client/gateway"
	"github.com/droniapp/go-auth-client/host"
	"github.com/droniapp/go-auth-client/internal/config"
	"github.com/droniapp/go-auth-client/monitor"
	"github.com/droniapp/go-auth-client/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running host")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Host stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if err := config.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config.Load: %w", err)
	}
	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	storage, closeStorage, err := openStorage(c)
	if err != nil {
		return err
	}
	defer closeStorage()

	store := session.NewStore(storage)
	client := gateway.New(c.GetBackendURL(), store,
		gateway.WithHTTPClient(newHTTPClient(c)),
		gateway.WithReissuePath(c.GetReissuePath()),
		gateway.WithReissueTimeout(c.GetReissueTimeout()),
		gateway.WithRedirectionURL(c.GetHomePath),
		gateway.WithSessionExpiredHandler(func() {
			log.Warn().Str("login_path", c.GetLoginPath()).Msg("Session expired, user must log in again")
		}),
	)
	tokenMonitor := monitor.New(store, client,
		monitor.WithRefreshThreshold(c.GetRefreshThreshold()),
		monitor.WithMaxCheckInterval(c.GetMaxCheckInterval()),
		monitor.WithVisibilityBuffer(c.GetVisibilityBuffer()),
	)
	detach := tokenMonitor.Attach()
	defer detach()

	server := &http.Server{
		Addr:              c.GetPort(),
		Handler:           host.New(c, store, client, tokenMonitor),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(server)
	})
	g.Go(func() error {
		<-ctx.Done()
		return shutdown(server)
	})
	return g.Wait()
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openStorage picks the durable token storage the session store writes
// through to.
func openStorage(c config.Config) (session.Storage, func(), error) {
	noop := func() {}
	switch c.GetStorageDriver() {
	case config.StorageDriverMemory:
		return session.NewInMemoryStorage(), noop, nil
	case config.StorageDriverFile:
		storage, err := session.NewFileStorage(c.GetStorageFile())
		if err != nil {
			return nil, noop, fmt.Errorf("session.NewFileStorage: %w", err)
		}
		return storage, noop, nil
	case config.StorageDriverSQLite:
		storage, err := session.OpenSQLiteStorage(c.GetSQLitePath())
		if err != nil {
			return nil, noop, fmt.Errorf("session.OpenSQLiteStorage: %w", err)
		}
		return storage, func() { _ = storage.Close() }, nil
	case config.StorageDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		storage := session.NewRedisStorage(client,
			session.WithRedisKeyPrefix(c.GetRedisKeyPrefix()),
			session.WithRedisTimeout(c.GetRedisTimeout()),
		)
		return storage, func() { _ = client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", c.GetStorageDriver())
	}
}

func newHTTPClient(c config.Config) *http.Client {
	// Refresh token cookies set by the backend are replayed on /reissue.
	jar, _ := cookiejar.New(nil)
	return &http.Client{Timeout: c.GetHTTPTimeout(), Jar: jar}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Host listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
