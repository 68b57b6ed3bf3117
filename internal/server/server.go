package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/ory/graceful"

	"subzone/db"
	"subzone/internal/activity"
	"subzone/internal/auth"
	"subzone/internal/bot"
	"subzone/internal/config"
	"subzone/internal/database"
	"subzone/internal/handler"
	"subzone/internal/jobs"
	"subzone/internal/provider"
	_ "subzone/internal/provider/providers"
	"subzone/internal/quota"
	"subzone/internal/resolve"
	"subzone/internal/service"
)

const zoneLookupTimeout = 10 * time.Second

// zoneDomain asks the provider for the zone name and falls back to the
// configured one. The result never changes for the life of the process.
func zoneDomain(ctx context.Context, dns provider.Client, fallback string, log logr.Logger) string {
	ctx, cancel := context.WithTimeout(ctx, zoneLookupTimeout)
	defer cancel()
	name, err := dns.ZoneName(ctx)
	if err != nil || name == "" {
		log.Info("using configured zone domain", "zone", fallback, "error", fmt.Sprint(err))
		return fallback
	}
	return name
}

func Start(cfg *config.Config, version string, log logr.Logger) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := database.Open(cfg.Database.DSN, db.MigrationsFS(), log.WithName("database"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = store.EnsureTokenSecret(ctx); err != nil {
			return fmt.Errorf("failed to load token secret: %w", err)
		}
	}
	tokens, err := auth.NewTokens(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	dns, err := provider.New(cfg.DNS.Provider, log.WithName("provider"), cfg.DNS.Settings)
	if err != nil {
		return fmt.Errorf("failed to init DNS provider: %w", err)
	}
	zone := zoneDomain(ctx, dns, cfg.DNS.ZoneDomain, log)

	policy := quota.New(store, log.WithName("quota"))
	if err := policy.Seed(ctx); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}

	recorder := activity.NewRecorder(store, log.WithName("activity"))
	if cfg.Kafka.Enabled() {
		recorder = recorder.WithKafka(cfg.Kafka)
		log.Info("publishing activity to kafka", "topic", cfg.Kafka.Topic)
	}
	defer recorder.Close()

	records := service.NewRecords(store, store, dns, zone, recorder, log.WithName("records"))
	accounts := service.NewAccounts(store, store, policy, tokens, recorder, log.WithName("accounts"))
	catalog := service.NewCatalog(store, store, store, policy, zone, recorder, log.WithName("catalog"))

	if cfg.LDAP.Enabled {
		accounts.WithDirectory(auth.NewLDAPClient(cfg.LDAP))
		log.Info("LDAP authentication enabled", "url", cfg.LDAP.URL, "roles", len(cfg.LDAP.GroupMapping))
		if cfg.InsecureLDAP() {
			log.Info("LDAP connection is not encrypted")
		}
	}

	tg := bot.New(cfg.Telegram, records, accounts, log)
	if err := tg.Start(ctx); err != nil {
		log.Error(err, "telegram bot not started")
	}

	scheduler, err := jobs.New(cfg.Jobs.DriftCheck, records, log)
	if err != nil {
		return err
	}
	scheduler.Start()

	checker := resolve.NewChecker(cfg.Resolver.Address, cfg.Resolver.Timeout)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), requestLogger(log.WithName("http")), corsMiddleware(cfg.Server.CORSOrigins))
	if cfg.Server.Pprof {
		pprof.Register(r)
	}

	handler.Register(r, handler.Handlers{
		Setup:   handler.NewSetupHandler(accounts),
		Auth:    handler.NewAuthHandler(accounts),
		Records: handler.NewRecordHandler(records, checker),
		Zone:    handler.NewZoneHandler(catalog, tg, zone, cfg.DNS.Provider),
		Admin:   handler.NewAdminHandler(accounts, records, catalog, store),
	}, accounts, auth.RequireAuth(tokens, store), store)

	srv := graceful.WithDefaults(&http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	})
	log.Info("subzone server starting", "addr", srv.Addr, "version", version, "zone", zone, "provider", cfg.DNS.Provider)

	return graceful.Graceful(srv.ListenAndServe, func(shutdownCtx context.Context) error {
		log.Info("shutting down")
		stop()
		scheduler.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})
}
