// Command gatekeeper runs the security core as a standalone process:
// it loads a TOML security config, wires the subsystems together via
// pkg/secmanager, starts the admission dispatcher and (optionally) a
// NATS ingress listener, and serves Prometheus metrics plus a small
// operator admin surface. It has no tool implementations of its own —
// pkg/tool.Tool registrations are the embedder's concern — so "serve"
// here exists to exercise and smoke-test the wiring, not to be a
// complete agent runtime.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvidlabs/gatekeeper/pkg/admission"
	"github.com/corvidlabs/gatekeeper/pkg/approval"
	"github.com/corvidlabs/gatekeeper/pkg/audit"
	"github.com/corvidlabs/gatekeeper/pkg/auth"
	"github.com/corvidlabs/gatekeeper/pkg/authz"
	"github.com/corvidlabs/gatekeeper/pkg/bus"
	"github.com/corvidlabs/gatekeeper/pkg/ident"
	"github.com/corvidlabs/gatekeeper/pkg/ingress"
	"github.com/corvidlabs/gatekeeper/pkg/logging"
	"github.com/corvidlabs/gatekeeper/pkg/reslimit"
	"github.com/corvidlabs/gatekeeper/pkg/risk"
	"github.com/corvidlabs/gatekeeper/pkg/secconfig"
	"github.com/corvidlabs/gatekeeper/pkg/secmanager"
	"github.com/corvidlabs/gatekeeper/pkg/secmetrics"
	"github.com/corvidlabs/gatekeeper/pkg/storage"
	"github.com/corvidlabs/gatekeeper/pkg/telemetry"
	"github.com/corvidlabs/gatekeeper/pkg/tool"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "gatekeeper:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("gatekeeper", flag.ExitOnError)
	configPath := fs.String("config", "gatekeeper.toml", "path to the TOML security configuration")
	metricsBind := fs.String("metrics-bind", "127.0.0.1:9090", "address to serve /metrics on")
	logDir := fs.String("log-dir", "", "directory for structured audit/session logs (disabled if empty)")
	jwtIssuer := fs.String("jwt-issuer", "gatekeeper", "JWT issuer claim for the auth subsystem")
	natsURL := fs.String("nats-url", "", "NATS server URL for bus ingress (disabled if empty)")
	approvalModeFlag := fs.String("approval-mode", "auto", "autonomy mode for risk-flagged operations (ask, safe, auto, unattended)")
	riskEnabled := fs.Bool("risk-policy", false, "enable the built-in risk-scoring policy layer")
	riskPolicyFile := fs.String("risk-policy-file", "", "YAML policy pack overriding the built-in risk policy")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, warnings, err := secconfig.LoadSecurityConfig(data)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, "gatekeeper: warning:", w.String())
	}
	if cfg.Development.Enabled {
		fmt.Fprintln(os.Stderr, "gatekeeper: WARNING: development mode is enabled, one or more security gates may be disabled")
	}

	approvalMode, err := approval.ParseMode(*approvalModeFlag)
	if err != nil {
		return err
	}

	var logger *logging.Logger
	if *logDir != "" {
		logger, err = logging.NewLogger(*logDir, ident.GenerateULID())
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Close()
	}

	sampler := reslimit.NewProcessSampler()
	tracker := reslimit.NewTracker(reslimit.ResourceLimits{
		MaxMemoryMB:      cfg.Resources.MaxMemoryMB,
		MaxCPUPercent:    cpuPercentOrMax(cfg.Resources.MaxCPUPercent),
		MaxExecutionTime: time.Duration(cfg.Resources.MaxExecutionSeconds) * time.Second,
		MaxConcurrentOps: cfg.Resources.MaxConcurrentOps,
		MaxOpenFiles:     cfg.Resources.MaxOpenFiles,
		MaxDiskUsageMB:   cfg.Resources.MaxDiskUsageMB,
	}, sampler)
	rateLimiter := reslimit.NewRateLimiter(defaultInt(cfg.Resources.MaxConcurrentOps*20, 100), time.Minute)

	admCfg := admission.DefaultConfig()
	if cfg.Resources.GlobalMaxConcurrent > 0 {
		admCfg.GlobalMaxConcurrent = cfg.Resources.GlobalMaxConcurrent
	}
	admCfg.ReapInterval = cfg.ReapInterval
	admMgr := admission.NewManager(admCfg)

	auditEmitter := audit.NewEmitter(auditSeverity(cfg.Audit.MinSeverity), logger, auditFormat(cfg.Audit.Format))
	metrics := secmetrics.NewRegistry(prometheus.DefaultRegisterer)

	tokens := auth.NewTokenManager(auth.Config{
		SecretKey:      jwtSecret(),
		Issuer:         *jwtIssuer,
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		RefreshAllowed: true,
		Blacklist:      auth.NewMemoryBlacklist(),
	})

	var riskEngine *risk.Engine
	if *riskEnabled || *riskPolicyFile != "" {
		riskEngine = risk.NewEngine(nil)
		if *riskPolicyFile != "" {
			policy, err := risk.LoadPolicyFile(*riskPolicyFile)
			if err != nil {
				return fmt.Errorf("load risk policy pack: %w", err)
			}
			if err := riskEngine.SetPolicy(policy); err != nil {
				return fmt.Errorf("install risk policy pack: %w", err)
			}
		} else if err := riskEngine.LoadPolicy(); err != nil {
			return fmt.Errorf("load risk policy: %w", err)
		}
	}

	manager := secmanager.New(secmanager.Deps{
		Config:       cfg,
		Tracker:      tracker,
		RateLimiter:  rateLimiter,
		Admission:    admMgr,
		AuditLog:     auditEmitter,
		Metrics:      metrics,
		Tokens:       tokens,
		Tools:        emptyRegistry{},
		Logger:       logger,
		Risk:         riskEngine,
		ACL:          authz.NewToolApprover(authz.DefaultToolPolicy()),
		ApprovalMode: approvalMode,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	admMgr.Start(ctx)
	defer admMgr.Shutdown()

	if *natsURL != "" {
		busCfg := bus.DefaultConfig()
		busCfg.URL = *natsURL
		natsBus, err := bus.NewNATSBus(busCfg)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
		listener := ingress.NewListener(ingress.DefaultConfig(), manager, natsBus, logger)
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("start ingress: %w", err)
		}
		defer listener.Stop()
	}

	// Operator API tokens gate the admin surface. Tokens are
	// provisioned from the environment at startup; a durable Store
	// implementation can replace this for real deployments.
	adminTokens := storage.NewStore()
	if secret := os.Getenv("GATEKEEPER_ADMIN_TOKEN"); secret != "" {
		if _, err := adminTokens.CreateAPIToken("bootstrap", "env", storage.TokenScopeOperator, secret); err != nil {
			return fmt.Errorf("provision admin token: %w", err)
		}
	}

	if cfg.Development.Enabled {
		recorder := telemetry.NewProfileRecorder(nil, func(stats telemetry.MemoryStats) {
			if logger != nil {
				_ = logger.Debug(logging.CategoryResource, "memstats", "", map[string]any{
					"heap_alloc": stats.HeapAlloc,
					"goroutines": stats.Goroutines,
				})
			}
		})
		recorder.Start()
		defer recorder.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := "ok"
		if manager.InLockdown() {
			status = "lockdown"
		}
		fmt.Fprintln(w, status)
	})
	mux.HandleFunc("/debug/memstats", func(w http.ResponseWriter, _ *http.Request) {
		out, err := telemetry.GetMemoryStatsJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	})
	mux.HandleFunc("/admin/lockdown", requireOperator(adminTokens, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			manager.EnterLockdown()
			fmt.Fprintln(w, "lockdown entered")
		case http.MethodDelete:
			manager.ExitLockdown()
			fmt.Fprintln(w, "lockdown exited")
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.HandleFunc("/admin/tokens", requireOperator(adminTokens, func(w http.ResponseWriter, r *http.Request) {
		out, err := adminTokens.ExportAPITokens()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	}))

	httpSrv := &http.Server{Addr: *metricsBind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintln(os.Stderr, "gatekeeper: metrics server:", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// requireOperator wraps an admin handler with bearer-token
// verification against the operator token store.
func requireOperator(store *storage.Store, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if secret == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tok, err := store.ValidateAPIToken(secret)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if tok == nil || tok.Scope != storage.TokenScopeOperator {
			http.Error(w, "operator token required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// emptyRegistry is the zero-tool ToolRegistry: a standalone gatekeeper
// process gates invocations but does not itself implement any tool.
type emptyRegistry struct{}

func (emptyRegistry) Lookup(ident.ToolID) (tool.Tool, bool) { return nil, false }

func cpuPercentOrMax(v float64) reslimit.CpuPercent {
	if v <= 0 {
		return reslimit.NewCpuPercentUnchecked(100)
	}
	cpu, ok := reslimit.NewCpuPercent(v)
	if !ok {
		return reslimit.NewCpuPercentUnchecked(100)
	}
	return cpu
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func auditSeverity(s string) audit.Severity {
	switch s {
	case "warning":
		return audit.SeverityWarning
	case "error":
		return audit.SeverityError
	case "critical":
		return audit.SeverityCritical
	default:
		return audit.SeverityInfo
	}
}

func auditFormat(f string) audit.Format {
	switch f {
	case "structured":
		return audit.FormatStructured
	case "text":
		return audit.FormatText
	default:
		return audit.FormatJSON
	}
}

// jwtSecret reads the signing key from GATEKEEPER_JWT_SECRET. A
// process that never authenticates principals can leave it unset;
// TokenManager.Authenticate simply fails closed on every call.
func jwtSecret() []byte {
	if v := os.Getenv("GATEKEEPER_JWT_SECRET"); v != "" {
		return []byte(v)
	}
	return nil
}
