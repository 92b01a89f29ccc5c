package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/stability-gate/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/adapters/state"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/config"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/core"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/logging"
	"github.com/hugo-lorenzo-mato/stability-gate/internal/service"
)

// These vars exist for testability.
var (
	newProvider = func(cfg *config.Config, logger *logging.Logger) (core.GenerationProvider, error) {
		if cfg.Generation.Provider != core.ProviderOpenAI {
			return nil, core.ErrProviderUnavailable(cfg.Generation.Provider, "unsupported provider")
		}
		return llm.NewClient(llmConfig(cfg, cfg.Generation.CallTimeout), logger.WithProvider(llm.ProviderName))
	}
	newEmbedder = func(cfg *config.Config) (service.Embedder, error) {
		return llm.NewEmbedder(llmConfig(cfg, cfg.Oracle.Timeout))
	}
	logOutput io.Writer = os.Stderr
)

func llmConfig(cfg *config.Config, timeout time.Duration) llm.Config {
	return llm.Config{
		APIKey:         cfg.Generation.APIKey,
		BaseURL:        cfg.Generation.BaseURL,
		Organization:   cfg.Generation.Organization,
		Model:          cfg.Generation.Model,
		EmbeddingModel: cfg.Oracle.EmbeddingModel,
		Timeout:        timeout,
	}
}

// appOptions selects which parts of the stack a command needs.
type appOptions struct {
	// sampling requires a generation provider.
	sampling bool
	// optionalSampling tries to build a provider but tolerates its absence.
	optionalSampling bool
	keepGenerations  bool
	telemetry        bool
	// noStore skips opening the report store.
	noStore bool
}

// app holds the dependencies shared by gate commands.
type app struct {
	cfg       *config.Config
	loader    *config.Loader
	logger    *logging.Logger
	engine    *service.Engine
	guard     *service.Guard
	store     core.ReportStore
	telemetry *service.Telemetry
}

// loadConfig loads and validates configuration using the global viper
// instance so persistent flags apply.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, loader, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOutput,
	})
}

// newApp wires configuration, oracle, engine, guard and store.
func newApp(opts appOptions) (*app, error) {
	cfg, loader, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	oracle, err := buildOracle(cfg)
	if err != nil {
		return nil, err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	engineCfg.KeepGenerations = opts.keepGenerations

	a := &app{cfg: cfg, loader: loader, logger: logger}

	engineOpts := []service.EngineOption{service.WithEngineLogger(logger.WithComponent("engine"))}
	if opts.telemetry {
		a.telemetry = service.NewTelemetry()
		engineOpts = append(engineOpts, service.WithObserver(a.telemetry))
	}
	a.engine, err = service.NewEngine(engineCfg, oracle, engineOpts...)
	if err != nil {
		return nil, err
	}

	policy, err := cfg.PolicyConfig()
	if err != nil {
		return nil, err
	}

	guardOpts := []service.GuardOption{
		service.WithGuardLogger(logger),
		service.WithDefaultModel(cfg.Generation.Model),
	}

	if opts.sampling || opts.optionalSampling {
		provider, err := newProvider(cfg, logger)
		switch {
		case err == nil:
			sampler := service.NewSampler(provider, cfg.SamplerConfig(), logger.WithComponent("sampler"))
			guardOpts = append(guardOpts, service.WithSampler(sampler))
		case opts.sampling:
			return nil, err
		default:
			logger.Warn("sampling disabled", "error", err)
		}
	}

	if cfg.State.Enabled && !opts.noStore {
		store, err := state.NewReportStore(cfg.State.Backend, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("opening report store: %w", err)
		}
		a.store = store
		guardOpts = append(guardOpts, service.WithStore(store))
	}

	a.guard = service.NewGuard(a.engine, policy, guardOpts...)
	return a, nil
}

// buildOracle creates the similarity oracle named by oracle.type.
func buildOracle(cfg *config.Config) (core.SimilarityOracle, error) {
	switch cfg.Oracle.Type {
	case core.OracleExact:
		return service.NewExactOracle(), nil
	case core.OracleKeyword, "":
		return service.NewKeywordOracle(cfg.Oracle.KeywordThreshold), nil
	case core.OracleEmbedding:
		embedder, err := newEmbedder(cfg)
		if err != nil {
			return nil, core.OracleUnavailable(core.OracleEmbedding, err)
		}
		return service.NewEmbeddingOracle(embedder, cfg.Oracle.EmbeddingThreshold,
			service.WithEmbeddingRetry(cfg.OracleRetry()),
			service.WithEmbeddingCacheSize(cfg.Oracle.CacheSize),
		), nil
	default:
		return nil, core.ErrValidation(core.CodeInvalidConfig, fmt.Sprintf("unknown oracle type %q", cfg.Oracle.Type))
	}
}

// Close releases the report store.
func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing report store", "error", err)
	}
}

// progressf writes a progress line to stderr unless --quiet is set.
func progressf(w io.Writer, format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}
