package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/ranierimazili/o2b2-fido-client/assertion"
	"github.com/ranierimazili/o2b2-fido-client/authserver"
	"github.com/ranierimazili/o2b2-fido-client/directory"
	"github.com/ranierimazili/o2b2-fido-client/flow"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	"github.com/ranierimazili/o2b2-fido-client/internal/config"
	"github.com/ranierimazili/o2b2-fido-client/resources"
	"github.com/ranierimazili/o2b2-fido-client/server"
	"github.com/ranierimazili/o2b2-fido-client/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errPanic = errors.New("panic recovered")

func main() {
	for {
		err := run()
		if err == nil {
			break
		}
		if !errors.Is(err, errPanic) {
			log.Fatal().Err(err).Msg("Error running server")
		}
		log.Error().Err(err).Msg("Restarting server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errPanic
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	handler, closeStore, err := buildServer(context.Background(), c)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(srv) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

// buildServer loads the organisation's credentials and wires the protocol
// clients, the session store and the orchestrator behind the HTTP surface.
func buildServer(ctx context.Context, c config.Config) (*server.Server, func(), error) {
	signingKey, err := assertion.LoadSigningKey(c.GetSigningKeyPath(), c.GetSigningKeyPassphrase())
	if err != nil {
		return nil, nil, err
	}
	identity, err := transport.LoadIdentity(c.GetTransportCertPath(), c.GetTransportKeyPath(), transport.Options{
		CAFile:             c.GetCAFile(),
		InsecureSkipVerify: c.GetTLSInsecureSkipVerify(),
	})
	if err != nil {
		return nil, nil, err
	}
	var idTokenKey *rsa.PrivateKey
	if path := c.GetIDTokenDecryptionKeyPath(); path != "" {
		if idTokenKey, err = assertion.LoadSigningKey(path, ""); err != nil {
			return nil, nil, fmt.Errorf("id token decryption key: %w", err)
		}
	}

	signer := assertion.NewKeyPairSigner(c.GetSigningKeyID(), c.GetOrganisationID(), signingKey)

	var (
		sessions flowstore.Repo
		closer   func()
		opts     []server.Option
	)
	if addr := c.GetRedisAddr(); addr != "" {
		redisRepo, err := flowstore.NewRedisRepo(ctx, flowstore.RedisConfig{
			Addr:      addr,
			Password:  c.GetRedisPassword(),
			DB:        c.GetRedisDB(),
			KeyPrefix: c.GetRedisKeyPrefix(),
			TTL:       c.GetSessionTTL(),
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", addr).Msg("Flow sessions stored in Redis")
		sessions, closer = redisRepo, func() { _ = redisRepo.Close() }
		opts = append(opts, server.WithHealthCheck(redisRepo.Ping))
	} else {
		memoryRepo := flowstore.NewInMemoryRepo(flowstore.WithTTL(c.GetSessionTTL()))
		log.Info().Dur("ttl", c.GetSessionTTL()).Msg("Flow sessions stored in memory")
		sessions, closer = memoryRepo, func() { _ = memoryRepo.Close() }
	}

	orchestrator := flow.NewOrchestrator(flow.Services{
		Directory: directory.New(identity, directory.Config{
			TokenURL:            c.GetDirectoryTokenURL(),
			AssertionHost:       c.GetDirectoryAssertionHost(),
			ClientID:            c.GetDirectoryClientID(),
			OrganisationID:      c.GetOrganisationID(),
			SoftwareStatementID: c.GetSoftwareStatementID(),
		}),
		AuthorizationServer: authserver.New(identity, signer, authserver.Config{
			DiscoveryEndpoint:    c.GetDiscoveryEndpoint(),
			KeystoreHost:         c.GetDirectoryKeystoreHost(),
			OrganisationID:       c.GetOrganisationID(),
			SoftwareStatementID:  c.GetSoftwareStatementID(),
			RedirectURIs:         c.GetRedirectURIs(),
			IDTokenDecryptionKey: idTokenKey,
		}),
		Resources: resources.New(identity, signer, c.GetPaymentAPIHostPrefix()),
		Sessions:  sessions,
	}, flow.Options{FixedPKCE: c.GetUseFixedPKCE()})

	if c.GetUseFixedPKCE() {
		log.Warn().Msg("Using the fixed PKCE verifier and nonce")
	}
	return server.New(c, orchestrator, opts...), closer, nil
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
