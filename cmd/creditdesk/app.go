package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HerbHall/creditdesk/internal/auth"
	"github.com/HerbHall/creditdesk/internal/casework"
	"github.com/HerbHall/creditdesk/internal/config"
	"github.com/HerbHall/creditdesk/internal/event"
	"github.com/HerbHall/creditdesk/internal/monitor"
	"github.com/HerbHall/creditdesk/internal/payments"
	"github.com/HerbHall/creditdesk/internal/postal"
	"github.com/HerbHall/creditdesk/internal/store"
	"github.com/HerbHall/creditdesk/internal/version"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the shared collaborators every command builds on.
type app struct {
	v      *viper.Viper
	cfg    *config.ViperConfig
	logger *zap.Logger
	clock  clockwork.Clock
	db     *store.SQLiteStore
	bus    *event.Bus
	postal *postal.Client
	pay    *payments.Client

	closers []func() error
}

// newApp loads configuration, builds the logger and opens the database.
func newApp(ctx context.Context, configPath string) (*app, error) {
	v, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
	}

	a := &app{
		v:      v,
		cfg:    config.New(v),
		logger: logger,
		clock:  clockwork.NewRealClock(),
		bus:    event.NewBus(logger.Named("event")),
	}

	dbPath := v.GetString("database.path")
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("database initialized", zap.String("component", "database"), zap.String("path", dbPath))

	pcfg := postal.DefaultConfig()
	if err := a.cfg.Sub("postal").Unmarshal(&pcfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("postal config: %w", err)
	}
	a.postal = postal.New(pcfg, nil, logger.Named("postal"))

	paycfg := payments.DefaultConfig()
	if err := a.cfg.Sub("payments").Unmarshal(&paycfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("payments config: %w", err)
	}
	a.pay = payments.New(paycfg, nil, logger.Named("payments"))

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// monitorConfig reads the monitor section over its defaults.
func (a *app) monitorConfig() (monitor.Config, error) {
	mcfg := monitor.DefaultConfig()
	if err := a.cfg.Sub("monitor").Unmarshal(&mcfg); err != nil {
		return mcfg, fmt.Errorf("monitor config: %w", err)
	}
	return mcfg, nil
}

// buildMonitor wires probes, notifiers and report persistence. With no probes
// configured the database is checked, plus the postal and payment APIs when
// enabled.
func (a *app) buildMonitor(ctx context.Context, mcfg monitor.Config) (*monitor.Monitor, error) {
	var postalProbe monitor.Probe
	if a.postal.Enabled() {
		postalProbe = postal.NewTokenProbe(a.postal, a.clock)
	}
	var paymentsProbe monitor.Probe
	if a.pay.Enabled() {
		paymentsProbe = payments.NewAccountProbe(a.pay, a.clock)
	}

	specs := mcfg.Probes
	if len(specs) == 0 {
		specs = []monitor.ProbeSpec{{Name: "database", Type: monitor.ProbeSQL}}
		if postalProbe != nil {
			specs = append(specs, monitor.ProbeSpec{Name: "postal", Type: monitor.ProbePostal})
		}
		if paymentsProbe != nil {
			specs = append(specs, monitor.ProbeSpec{Name: "payments", Type: monitor.ProbePayments})
		}
	}
	probes, err := monitor.BuildProbes(specs, monitor.ProbeDeps{
		DB:       a.db.DB(),
		Postal:   postalProbe,
		Payments: paymentsProbe,
		Clock:    a.clock,
	})
	if err != nil {
		return nil, err
	}

	notifiers := make([]monitor.Notifier, 0, len(mcfg.Notifiers))
	for _, nc := range mcfg.Notifiers {
		n, err := monitor.BuildNotifier(nc, a.logger.Named("notify"))
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}

	reports, err := monitor.NewReportStore(ctx, a.db)
	if err != nil {
		return nil, err
	}

	return monitor.New(mcfg, probes, monitor.Options{
		Store:     reports,
		Bus:       a.bus,
		Notifiers: notifiers,
		Clock:     a.clock,
	}, a.logger.Named("monitor")), nil
}

// buildAuth wires the token authority. An empty signing secret is only
// tolerated in dev mode, where an ephemeral one is generated.
func (a *app) buildAuth(ctx context.Context) (*auth.Service, auth.Config, error) {
	acfg := auth.DefaultConfig()
	if err := a.cfg.Sub("auth").Unmarshal(&acfg); err != nil {
		return nil, acfg, fmt.Errorf("auth config: %w", err)
	}

	secret := acfg.JWTSecret
	if secret == "" {
		if !a.v.GetBool("server.dev_mode") {
			return nil, acfg, fmt.Errorf("auth.jwt_secret is required (set CD_AUTH_JWT_SECRET): %w", auth.ErrWeakSecret)
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, acfg, fmt.Errorf("generate signing secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		a.logger.Warn("using an ephemeral signing secret; tokens will not survive a restart",
			zap.String("component", "auth"))
	}

	tokens, err := auth.NewTokenService([]byte(secret), auth.TokenOptions{
		TTL:      acfg.TokenTTL,
		Issuer:   acfg.Issuer,
		Audience: acfg.Audience,
		Clock:    a.clock,
	})
	if err != nil {
		return nil, acfg, err
	}

	users, err := auth.NewSQLUserStore(ctx, a.db)
	if err != nil {
		return nil, acfg, err
	}
	revoked, closeRevoker, err := auth.NewRevoker(ctx, acfg.Revocation, a.db, a.clock)
	if err != nil {
		return nil, acfg, err
	}
	a.closers = append(a.closers, closeRevoker)

	svc := auth.NewService(users, revoked, tokens, auth.ServiceOptions{
		BcryptCost: acfg.BcryptCost,
		Clock:      a.clock,
	}, a.logger.Named("auth"))

	a.logger.Info("auth service initialized",
		zap.String("component", "auth"),
		zap.Duration("token_ttl", tokens.TTL()),
		zap.String("revocation_backend", revoked.Backend()),
	)
	return svc, acfg, nil
}

// buildCasework wires the client and dispute records.
func (a *app) buildCasework(ctx context.Context) (*casework.Service, error) {
	ccfg := casework.DefaultConfig()
	if err := a.cfg.Sub("casework").Unmarshal(&ccfg); err != nil {
		return nil, fmt.Errorf("casework config: %w", err)
	}
	if ccfg.SuccessProbability < 0 || ccfg.SuccessProbability > 1 {
		return nil, errors.New("casework.success_probability must be within [0, 1]")
	}
	cs, err := casework.NewStore(ctx, a.db)
	if err != nil {
		return nil, err
	}
	return casework.NewService(cs, casework.StaticPredictor{Probability: ccfg.SuccessProbability},
		a.clock, a.logger.Named("casework")), nil
}
