package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gopherchat/internal/ai"
	"gopherchat/internal/app"
	"gopherchat/internal/cache"
	"gopherchat/internal/config"
	"gopherchat/internal/logger"
	"gopherchat/internal/metrics"
	"gopherchat/internal/pkg/jwtutil"
	mongoClient "gopherchat/internal/platform/mongo"
	mysqlClient "gopherchat/internal/platform/mysql"
	rabbitmqClient "gopherchat/internal/platform/rabbitmq"
	redisClient "gopherchat/internal/platform/redis"
	"gopherchat/internal/repository"
	"gopherchat/internal/repository/memory"
	"gopherchat/internal/repository/mongorepo"
	"gopherchat/internal/worker"
)

type App struct {
	Config  *config.Config
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics

	MySQL  *gorm.DB
	Mongo  *mongo.Client
	Redis  *redis.Client
	MQConn *amqp.Connection

	Auth          *app.AuthService
	Users         *app.UserService
	Chat          *app.ChatService
	MessageWorker *worker.LastMessageWorker

	StartedAt time.Time
	closers   []func() error
}

// Dependencies are the opened stores and clients the services are built on.
// HistoryCache and Publisher may be nil.
type Dependencies struct {
	Users        app.UserStore
	Chats        app.ChatStore
	Messages     app.MessageStore
	Generator    ai.Generator
	HistoryCache app.HistoryCache
	Publisher    app.AsyncMessagePublisher
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}
	deps, err := a.open(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.wire(deps)

	if a.MQConn != nil {
		a.MessageWorker = worker.NewLastMessageWorker(
			a.MQConn,
			cfg.RabbitMQ.MessageEventsQueue,
			a.Chat.RecordLastMessage,
			a.Metrics,
			log,
		)
		if err := a.MessageWorker.Start(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("start message worker failed: %w", err)
		}
	}

	log.Infow("application ready",
		"storage", cfg.Storage.Driver,
		"llm_provider", cfg.LLM.Provider,
		"redis", a.Redis != nil,
		"rabbitmq", a.MQConn != nil,
	)
	return a, nil
}

// Assemble builds an App over already opened dependencies.
func Assemble(cfg *config.Config, log *zap.SugaredLogger, deps Dependencies) *App {
	if log == nil {
		log = logger.Nop()
	}
	a := &App{
		Config:    cfg,
		Logger:    log,
		Metrics:   metrics.New(),
		StartedAt: time.Now(),
	}
	a.wire(deps)
	return a
}

func (a *App) wire(deps Dependencies) {
	cfg := a.Config
	tokens := jwtutil.NewManager(cfg.Auth.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
	assembler := app.NewContextAssembler(deps.Messages, deps.HistoryCache, cfg.Chat.HistoryLimit, a.Logger)

	a.Auth = app.NewAuthService(deps.Users, tokens, cfg.Auth.StrictRefresh, a.Logger)
	a.Users = app.NewUserService(deps.Users, a.Logger)
	a.Chat = app.NewChatService(deps.Chats, deps.Messages, assembler, deps.Generator, app.ChatOptions{
		DefaultTitle: cfg.Chat.DefaultTitle,
		TitleRunes:   cfg.Chat.TitlePreviewRune,
		HistoryCache: deps.HistoryCache,
		Publisher:    deps.Publisher,
		Metrics:      a.Metrics,
		Logger:       a.Logger,
	})
}

func (a *App) open(ctx context.Context) (Dependencies, error) {
	cfg := a.Config
	var deps Dependencies

	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN(), !cfg.IsProduction())
		if err != nil {
			return deps, err
		}
		a.MySQL = db
		if err := mysqlClient.Migrate(db); err != nil {
			return deps, err
		}
		deps.Users = repository.NewUserRepository(db)
		deps.Chats = repository.NewChatRepository(db)
		deps.Messages = repository.NewMessageRepository(db)
	case config.StorageMongo:
		client, err := mongoClient.New(ctx, cfg.Mongo.URI)
		if err != nil {
			return deps, err
		}
		a.Mongo = client
		db := client.Database(cfg.Mongo.Database)
		if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
			return deps, err
		}
		deps.Users = mongorepo.NewUserRepository(db)
		deps.Chats = mongorepo.NewChatRepository(db)
		deps.Messages = mongorepo.NewMessageRepository(db)
	case config.StorageMemory:
		store := memory.New()
		deps.Users = store.Users()
		deps.Chats = store.Chats()
		deps.Messages = store.Messages()
	default:
		return deps, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return deps, err
		}
		a.Redis = client
		deps.HistoryCache = cache.NewHistoryCache(
			client,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.App.Name)
		if err != nil {
			return deps, err
		}
		a.MQConn = conn
		deps.Publisher = rabbitmqClient.NewMessagePublisher(conn, cfg.RabbitMQ.MessageEventsQueue)
	}

	generator, err := a.newGenerator(ctx)
	if err != nil {
		return deps, err
	}
	deps.Generator = generator
	return deps, nil
}

func (a *App) newGenerator(ctx context.Context) (ai.Generator, error) {
	cfg := a.Config
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLMTimeout(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	case config.ProviderOpenAI:
		return ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLMTimeout(),
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
		}
		cancel()
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mysql: %w", err))
			}
		}
	}
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
