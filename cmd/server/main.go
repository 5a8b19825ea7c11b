// Command server wires the authorization server and runs its lifecycle.
// Business logic lives in the internal service packages; this file only
// builds the dependency graph from configuration.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"signet/internal/authorize"
	clientStore "signet/internal/client/store"
	"signet/internal/clientauth"
	consentService "signet/internal/consent/service"
	consentStore "signet/internal/consent/store"
	"signet/internal/device"
	"signet/internal/event"
	"signet/internal/jws"
	"signet/internal/owner"
	"signet/internal/platform/config"
	"signet/internal/platform/httpserver"
	"signet/internal/platform/logger"
	platformRedis "signet/internal/platform/redis"
	"signet/internal/scope"
	tokenService "signet/internal/token/service"
	tokenStore "signet/internal/token/store"
	"signet/internal/token/store/authcode"
	httptransport "signet/internal/transport/http"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	keys, err := jws.GenerateKeyStore(2048)
	if err != nil {
		log.Error("generate signing keys", "error", err)
		os.Exit(1)
	}

	// Client registrations: postgres when configured, in-memory otherwise.
	var clients httptransport.ClientStore
	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		clients = clientStore.NewPostgres(db)
	} else {
		clients = clientStore.New()
	}

	// Device poll state: redis when configured, in-memory otherwise.
	var devices tokenService.DeviceStore = device.NewStore()
	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		devices = device.NewRedisStore(redisClient.Client)
	}

	// Domain events: kafka when brokers are configured.
	var sink event.Sink = event.NewMemorySink()
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := event.NewKafkaSink(context.Background(), cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	events := event.NewPublisher(sink, event.WithLogger(log))

	owners := owner.NewStore()
	passwords, err := owner.NewPasswordService(owners)
	if err != nil {
		log.Error("build password service", "error", err)
		os.Exit(1)
	}

	consents := consentStore.New()
	scopes := scope.NewStore(
		scope.Scope{Name: "openid", Description: "Sign you in"},
		scope.Scope{Name: "profile", Description: "Read your profile", IsDisplayedInConsent: true},
		scope.Scope{Name: "email", Description: "Read your email address", IsDisplayedInConsent: true},
	)

	authenticator, err := clientauth.New(clients, keys, clientauth.WithLogger(log))
	if err != nil {
		log.Error("build client authenticator", "error", err)
		os.Exit(1)
	}

	codes := authcode.New()
	tokens := tokenStore.New()

	// The consent service implements the processor's consent finder, and
	// the token service implements the generator's minter; the forwarder
	// breaks the construction cycle.
	finder := &consentFinderRef{}
	processor, err := authorize.NewProcessor(finder, keys, cfg.Server.Issuer,
		authorize.WithProcessorLogger(log))
	if err != nil {
		log.Error("build authorization processor", "error", err)
		os.Exit(1)
	}

	tokenSvc, err := tokenService.New(authenticator, tokens, codes, devices, keys, events, processor, cfg.Server.Issuer,
		tokenService.WithLogger(log),
		tokenService.WithOwnerAuthenticator(owner.AMRPassword, passwords),
	)
	if err != nil {
		log.Error("build token service", "error", err)
		os.Exit(1)
	}

	generator, err := authorize.NewGenerator(codes, tokenSvc, keys, cfg.Server.Issuer,
		authorize.WithGeneratorLogger(log))
	if err != nil {
		log.Error("build response generator", "error", err)
		os.Exit(1)
	}
	tokenSvc.AttachGenerator(generator)

	consentSvc, err := consentService.New(consents, scopes, generator, events,
		consentService.WithLogger(log))
	if err != nil {
		log.Error("build consent service", "error", err)
		os.Exit(1)
	}
	finder.Service = consentSvc

	sessions := httptransport.NewSessions(keys, cfg.Server.Issuer)
	handler := httptransport.NewHandler(clients, processor, generator,
		tokenSvc, consentSvc, passwords, sessions, keys, log)
	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting signet", "addr", cfg.Server.Addr, "issuer", cfg.Server.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := events.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// consentFinderRef forwards to the consent service once it exists. The
// processor needs a finder before the consent service can be built, and
// the consent service needs the generator, which needs the token service,
// which needs the processor.
type consentFinderRef struct {
	Service *consentService.Service
}

func (r *consentFinderRef) HasMatchingConsent(ctx context.Context, subject, clientID string, scopes, claims []string) (bool, error) {
	return r.Service.HasMatchingConsent(ctx, subject, clientID, scopes, claims)
}
