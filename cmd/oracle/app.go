package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/rub-lamp/oracle_layer/internal/chain"
	"github.com/rub-lamp/oracle_layer/internal/config"
	"github.com/rub-lamp/oracle_layer/internal/guard"
	"github.com/rub-lamp/oracle_layer/internal/httputil"
	"github.com/rub-lamp/oracle_layer/internal/judge"
	"github.com/rub-lamp/oracle_layer/internal/locks"
	"github.com/rub-lamp/oracle_layer/internal/logging"
	"github.com/rub-lamp/oracle_layer/internal/metrics"
	"github.com/rub-lamp/oracle_layer/internal/middleware"
	"github.com/rub-lamp/oracle_layer/internal/payout"
	"github.com/rub-lamp/oracle_layer/internal/platform/migrations"
	"github.com/rub-lamp/oracle_layer/internal/scheduler"
	"github.com/rub-lamp/oracle_layer/internal/settlement"
	"github.com/rub-lamp/oracle_layer/internal/store"
	"github.com/rub-lamp/oracle_layer/services/claim"
	hoardsvc "github.com/rub-lamp/oracle_layer/services/hoard"
	"github.com/rub-lamp/oracle_layer/services/ledger"
	"github.com/rub-lamp/oracle_layer/services/oracle"
	"github.com/rub-lamp/oracle_layer/services/treasury"
)

// App holds every component of a running oracle process.
type App struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	store   store.Store
	limiter *middleware.RateLimiter
	sched   *scheduler.Scheduler

	treasury *treasury.Service
	hoard    *hoardsvc.Service
	ledger   *ledger.Service
	oracle   *oracle.Service
	claim    *claim.Service

	closers []io.Closer
}

// NewApp wires the services described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger, metrics: metrics.New()}
	t := cfg.Tuning

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = st

	var locker locks.Locker = locks.NewMemory()
	if cfg.Redis.URL != "" {
		rl, err := locks.NewRedisFromURL(cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		if err := rl.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Redis unreachable; claim locks may fail until it recovers")
		}
		locker = rl
	}

	var rpcClient *chain.Client
	if cfg.Solana.RPCURL != "" {
		rpcClient, err = chain.NewClient(chain.Config{
			RPCURL:     cfg.Solana.RPCURL,
			Commitment: rpc.CommitmentType(cfg.Solana.Commitment),
		})
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("SOLANA_RPC_URL not set; treasury stats fall back to defaults")
	}

	tcfg := treasury.Config{
		TokenMint:      cfg.Solana.TokenMint,
		TreasuryWallet: cfg.Solana.TreasuryWallet,
		CacheTTL:       t.TreasuryCacheTTL,
		Metrics:        a.metrics,
		Logger:         logger,
	}
	if rpcClient != nil {
		tcfg.Chain = rpcClient
	}
	a.treasury = treasury.New(tcfg)

	driver, authority, err := a.settlementDriver(rpcClient)
	if err != nil {
		return nil, err
	}

	a.hoard, err = hoardsvc.New(hoardsvc.Config{
		Store:     st,
		Authority: authority,
		Treasury:  a.treasury,
		Metrics:   a.metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	a.prepareHoard(ctx)

	a.ledger, err = ledger.New(ledger.Config{Store: st, Logger: logger, LiveDelay: t.LiveWinnerDelay})
	if err != nil {
		return nil, err
	}

	j, err := newJudge(ctx, cfg.Judge)
	if err != nil {
		return nil, err
	}
	a.oracle, err = oracle.New(oracle.Config{
		Store:           st,
		Judge:           j,
		Treasury:        a.treasury,
		Feed:            a.ledger,
		Calculator:      payout.NewCalculator(),
		Cooldown:        &guard.Cooldown{Period: t.Cooldown},
		Buffer:          &guard.Buffer{Minimum: t.TreasuryMinimum},
		Breaker:         &guard.HypeBreaker{Window: t.HypeWindow, Limit: t.HypeLimit, Cooling: t.BreakerCooling},
		Highlander:      guard.NewHighlander(),
		WorthyThreshold: t.WorthyThreshold,
		JudgeTimeout:    cfg.Judge.Timeout,
		Metrics:         a.metrics,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	if err := a.oracle.WarmHighlander(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load granted wishes into the highlander")
	}

	a.claim, err = claim.New(claim.Config{
		Store:   st,
		Locks:   locker,
		Driver:  driver,
		Hoard:   a.hoard,
		Feed:    a.ledger,
		LockTTL: t.ClaimLockTTL,
		Metrics: a.metrics,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	a.limiter = middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, logger)
	if err := a.registerJobs(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	db := a.cfg.Database
	if db.Driver == "memory" {
		a.logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemory(), nil
	}

	st, err := store.Open(ctx, db.Driver, db.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st)
	if db.AutoMigrate {
		if err := migrations.Up(ctx, st.DB().DB, db.Driver); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", db.Driver, err)
		}
	}
	return st, nil
}

// settlementDriver returns the payout driver and the hoard authority. Without
// a treasury key claims are refused with a configuration error.
func (a *App) settlementDriver(rpcClient *chain.Client) (settlement.SettlementDriver, solana.PublicKey, error) {
	sol := a.cfg.Solana
	authority := solana.PublicKey{}
	if sol.TreasuryWallet != "" {
		if pk, err := solana.PublicKeyFromBase58(sol.TreasuryWallet); err == nil {
			authority = pk
		}
	}

	if sol.MockSettlement {
		a.logger.Warn("SETTLEMENT_MOCK enabled; payouts are simulated")
		if authority.IsZero() {
			authority = solana.NewWallet().PublicKey()
			a.logger.WithField("authority", authority.String()).Warn("TREASURY_WALLET not set; using an ephemeral hoard authority")
		}
		return settlement.NewMockDriver(), authority, nil
	}
	if sol.TreasuryPrivateKey == "" || sol.TokenMint == "" || rpcClient == nil {
		a.logger.Warn("Treasury key, token mint or RPC missing; claims are disabled")
		return nil, authority, nil
	}

	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(sol.TreasuryPrivateKey))
	if err != nil {
		return nil, authority, fmt.Errorf("parse TREASURY_PRIVATE_KEY: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(sol.TokenMint)
	if err != nil {
		return nil, authority, fmt.Errorf("parse TOKEN_MINT_ADDRESS: %w", err)
	}
	driver, err := settlement.NewSolanaDriver(rpcClient, settlement.SolanaConfig{
		Mint:        mint,
		Treasury:    key,
		PriorityFee: sol.PriorityFeeMicro,
	}, a.logger.Logger)
	if err != nil {
		return nil, authority, err
	}
	return driver, key.PublicKey(), nil
}

// prepareHoard initializes the hoard for the configured authority and syncs
// its reserve with the treasury before the first request is served.
func (a *App) prepareHoard(ctx context.Context) {
	if a.hoard.Authority().IsZero() {
		a.logger.Warn("No hoard authority; granted payouts are not recorded against the hoard")
		return
	}
	if _, err := a.hoard.EnsureInitialized(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to initialize hoard")
		return
	}
	if err := a.hoard.Reconcile(ctx); err != nil {
		a.logger.WithError(err).Warn("Initial hoard reconcile failed")
	}
}

func newJudge(ctx context.Context, cfg config.JudgeConfig) (judge.Judge, error) {
	switch cfg.Backend {
	case "gemini":
		return judge.NewGeminiJudge(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return judge.NewAnthropicJudge(judge.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
			Retry:   httputil.DefaultRetryConfig(),
		})
	}
}

func (a *App) registerJobs() error {
	a.sched = scheduler.New(a.logger, a.metrics, time.Minute)
	cron := a.cfg.Cron
	jobs := []struct {
		name string
		spec string
		job  scheduler.Job
	}{
		{"treasury-refresh", cron.TreasuryRefresh, a.treasury.Refresh},
		{"limiter-cleanup", cron.LimiterCleanup, func(context.Context) error {
			if n := a.limiter.Cleanup(); n > 0 {
				a.logger.WithField("removed", n).Debug("Rate limiter cleaned up")
			}
			return nil
		}},
		{"hoard-reconcile", cron.HoardReconcile, a.hoard.Reconcile},
	}
	for _, j := range jobs {
		if err := a.sched.Register(j.name, j.spec, j.job); err != nil {
			return err
		}
	}
	return nil
}

// Router builds the HTTP surface of the process. Tracing and CORS wrap the
// whole router so preflight requests are answered before method matching.
func (a *App) Router() (http.Handler, error) {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware("oracle", a.metrics))
	r.Use(a.limiter.Handler)

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)

	a.treasury.RegisterRoutes(r)
	a.hoard.RegisterRoutes(r)
	a.ledger.RegisterRoutes(r)
	a.oracle.RegisterRoutes(r)
	a.claim.RegisterRoutes(r)

	admin := r.PathPrefix("/admin").Subrouter()
	if a.cfg.Auth.Enabled() {
		key, err := verifyKey(a.cfg.Auth)
		if err != nil {
			return nil, err
		}
		admin.Use(middleware.NewAuthMiddleware(key, a.logger, nil).Handler)
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
	} else {
		a.logger.Warn("Admin authentication is not configured; admin routes are disabled")
		admin.Use(func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Admin authentication is not configured", nil)
			})
		})
	}
	a.oracle.RegisterAdminRoutes(admin)
	a.hoard.RegisterAdminRoutes(admin)

	var h http.Handler = r
	h = middleware.NewCORSMiddleware(a.cfg.Server.Origins()).Handler(h)
	h = middleware.NewTracingMiddleware(a.logger).Handler(h)
	return h, nil
}

func verifyKey(cfg config.AuthConfig) (interface{}, error) {
	if cfg.JWTPublicKeyFile == "" {
		return []byte(cfg.JWTSecret), nil
	}
	pem, err := os.ReadFile(cfg.JWTPublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read admin public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse admin public key: %w", err)
	}
	return key, nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Judge     string `json:"judge"`
	Store     string `json:"store"`
	Timestamp int64  `json:"timestamp"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Judge:     a.cfg.Judge.Backend,
		Store:     a.cfg.Database.Driver,
		Timestamp: time.Now().Unix(),
	})
}

// Start launches the scheduled jobs.
func (a *App) Start() {
	a.sched.Start()
}

// Close stops background work and releases connections.
func (a *App) Close() {
	a.sched.Stop()
	a.ledger.Close()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.WithError(err).Warn("Close failed")
		}
	}
}
