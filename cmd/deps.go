package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/cvsift/internal/ai"
	"github.com/spigell/cvsift/internal/ai/gemini"
	"github.com/spigell/cvsift/internal/ai/openai"
	"github.com/spigell/cvsift/internal/classifier"
	"github.com/spigell/cvsift/internal/detector"
	"github.com/spigell/cvsift/internal/ingest"
	"github.com/spigell/cvsift/internal/logger"
	"github.com/spigell/cvsift/internal/mail/gmail"
	"github.com/spigell/cvsift/internal/matching"
	"github.com/spigell/cvsift/internal/objectstore"
	"github.com/spigell/cvsift/internal/secrets"
	"github.com/spigell/cvsift/internal/store"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// session holds what every command needs: logger, config and an open store.
type session struct {
	logger *zap.Logger
	config *Config
	db     *store.DB
	team   int64
}

// setup builds the logger, reads the config and opens the database.
// Failures are fatal, like in any other command entrypoint.
func setup(ctx context.Context) *session {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting the cvsift", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	db, err := openStore(ctx, config.Database)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}

	return &session{logger: logger, config: config, db: db, team: teamID()}
}

func (e *session) close() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("closing the database", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func redacted(c *Config) Config {
	out := *c
	if out.AI != nil && out.AI.APIKey != "" {
		aiCfg := *out.AI
		aiCfg.APIKey = "***"
		out.AI = &aiCfg
	}
	if out.Database != nil && out.Database.DSN != "" && store.Dialect(out.Database.Driver) == store.Postgres {
		db := *out.Database
		db.DSN = "***"
		out.Database = &db
	}
	return out
}

func openStore(ctx context.Context, cfg *DatabaseConfig) (*store.DB, error) {
	driver := store.Dialect(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if driver == "" {
		driver = store.SQLite
	}

	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: cfg.DSN,
		File:  cfg.DSNFile,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, err
	}

	return store.Open(ctx, driver, dsn)
}

func (e *session) objects() *objectstore.Store {
	objects, err := objectstore.NewDir(e.config.Storage.Dir)
	if err != nil {
		e.logger.Fatal("preparing the object store", zap.Error(err), zap.String("dir", e.config.Storage.Dir))
	}
	return objects
}

func (e *session) provider(ctx context.Context) ai.Provider {
	provider, err := newProvider(ctx, e.config.AI, e.logger)
	if err != nil {
		e.logger.Fatal("creating the ai provider", zap.Error(err),
			zap.String("hint", "set ai.api-key-file or CVSIFT_AI_API_KEY"))
	}
	return provider
}

func newProvider(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Provider, error) {
	name := strings.TrimSpace(strings.ToLower(cfg.Provider))

	switch name {
	case "", "gemini":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		return gemini.NewGenerator(ctx, apiKey, cfg.Model, cfg.MaxLogLength, log)
	case "openai":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai-compatible api key",
			Value: cfg.APIKey,
			File:  cfg.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, err
		}
		return openai.New(openai.Config{
			BaseURL:      cfg.BaseURL,
			APIKey:       apiKey,
			Model:        cfg.Model,
			MaxLogLength: cfg.MaxLogLength,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func (e *session) processor(provider ai.Provider) *classifier.Processor {
	return classifier.NewProcessor(e.db, e.objects(), nil, provider, e.logger, e.config.AI.MaxLogLength)
}

func (e *session) matcher(provider ai.Provider) *matching.Engine {
	return matching.NewEngine(e.db, e.processor(provider), provider, e.logger, e.config.AI.MaxLogLength)
}

func (e *session) ingester(ctx context.Context, provider ai.Provider) *ingest.Engine {
	cfg := e.config.Gmail
	mailbox, err := gmail.New(ctx, gmail.Config{
		CredentialsFile:   cfg.CredentialsFile,
		TokenFile:         cfg.TokenFile,
		User:              cfg.User,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, e.logger.Named("gmail"))
	if err != nil {
		e.logger.Fatal("connecting to gmail", zap.Error(err),
			zap.String("hint", "set gmail.credentials-file and gmail.token-file in the configuration file"))
	}

	detect := detector.New(e.db, provider, e.logger, e.config.AI.MaxLogLength)
	return ingest.NewEngine(mailbox, e.db, e.objects(), detect, e.logger)
}
