package di

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/dispatch"
	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/repository"
	"SignalForge/internal/engine"
	"SignalForge/internal/handler/api"
	internalrepo "SignalForge/internal/repository"
	"SignalForge/internal/service/binance"
	"SignalForge/internal/service/notify"
	"SignalForge/internal/service/ratelimit"
	"SignalForge/internal/usecase"
	pkgcache "SignalForge/pkg/cache"
	pkgch "SignalForge/pkg/clickhouse"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
	"SignalForge/pkg/metrics"
	"SignalForge/pkg/server"
)

// ProvideLogCollector creates the in-memory ring the ops API reads from.
func ProvideLogCollector() *applogger.Collector {
	return applogger.NewCollector(200)
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config, collector *applogger.Collector) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.WithCollector(collector), nil
}

// ProvideCache creates the Redis-backed state cache.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// candle schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, nil when the kafka
// channel is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Channels.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Channels.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Channels.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Channels.Kafka.RequiredAcks),
		pkgkafka.WithAsync(cfg.Channels.Kafka.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCandleStore creates ClickHouse-backed candle storage.
func ProvideCandleStore(chClient *pkgch.Client) *internalrepo.ClickHouseCandleStore {
	return internalrepo.NewClickHouseCandleStore(chClient.DB(), "candles")
}

// ProvideCandleSource exposes the store as a read-only source.
func ProvideCandleSource(store *internalrepo.ClickHouseCandleStore) repository.CandleSource {
	return store
}

// ProvideStateStore creates the cache-backed computation state store.
func ProvideStateStore(cacheSvc pkgcache.Service, log *applogger.Logger, cfg *config.Config) *engine.StateStore {
	return engine.NewStateStore(cacheSvc, log, cfg.Engine.StateTTL, cfg.Engine.CursorTTL)
}

// ProvideEngine creates the computation engine.
func ProvideEngine(
	source repository.CandleSource,
	states *engine.StateStore,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *engine.Engine {
	return engine.New(source, states, m, log, engine.Config{
		Periods:        cfg.Engine.Periods,
		HistoryLimit:   cfg.Engine.HistoryLimit,
		IncrementalCap: cfg.Engine.IncrementalCap,
	})
}

// ProvideChannels builds the enabled delivery channels.
func ProvideChannels(cfg *config.Config, producer *pkgkafka.Producer, log *applogger.Logger) []repository.DeliveryChannel {
	var channels []repository.DeliveryChannel
	if cfg.Channels.Telegram.Enabled {
		channels = append(channels, notify.NewTelegram(cfg.Channels.Telegram.BotToken, cfg.Channels.Telegram.ChatID, log))
	}
	if cfg.Channels.Webhook.Enabled {
		channels = append(channels, notify.NewWebhook(cfg.Channels.Webhook.URL, log))
	}
	if cfg.Channels.Kafka.Enabled && producer != nil {
		channels = append(channels, notify.NewKafka(producer, cfg.Channels.Kafka.Topic, log))
	}
	return channels
}

// ProvideDispatcher creates the priority dispatcher.
func ProvideDispatcher(
	channels []repository.DeliveryChannel,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *dispatch.Dispatcher {
	queue := dispatch.NewQueue(cfg.Dispatch.QueueSize)
	limiter := ratelimit.New(cfg.Dispatch.RateLimit.Window, cfg.Dispatch.RateLimit.MaxEvents)
	return dispatch.New(channels, queue, limiter, m, log, dispatch.Config{
		Workers:          cfg.Dispatch.Workers,
		MaxRetries:       cfg.Dispatch.MaxRetries,
		BreakerThreshold: cfg.Dispatch.Breaker.Threshold,
		BreakerTimeout:   cfg.Dispatch.Breaker.Timeout,
	})
}

// ProvideTimeframes parses the configured timeframe strings.
func ProvideTimeframes(cfg *config.Config) []models.Timeframe {
	tfs := make([]models.Timeframe, 0, len(cfg.Engine.Timeframes))
	for _, s := range cfg.Engine.Timeframes {
		tfs = append(tfs, models.Timeframe(s))
	}
	return tfs
}

// ProvideSignalProducer creates the cycle-driving producer.
func ProvideSignalProducer(
	eng *engine.Engine,
	d *dispatch.Dispatcher,
	timeframes []models.Timeframe,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.SignalProducer {
	return usecase.NewSignalProducer(eng, d, nil, cfg.Engine.Pairs, timeframes, cfg.Engine.CycleInterval, m, log)
}

// ProvideCandleCollector creates the ingest collector, nil when ingest is
// disabled.
func ProvideCandleCollector(
	store *internalrepo.ClickHouseCandleStore,
	timeframes []models.Timeframe,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.CandleCollector {
	if !cfg.Ingest.Enabled {
		return nil
	}
	stream := binance.New(
		cfg.Ingest.WebSocketURL,
		cfg.Engine.Pairs,
		timeframes,
		cfg.Ingest.ReconnectDelay,
		cfg.Ingest.PingInterval,
		log,
	)
	return usecase.NewCandleCollector(stream, store, m, log)
}

// ProvideHTTPHandler creates the ops API handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	eng *engine.Engine,
	states *engine.StateStore,
	d *dispatch.Dispatcher,
	collector *applogger.Collector,
	producer *usecase.SignalProducer,
) xhttp.Handler {
	return api.NewStatusHandler(log, eng, states, d, collector, producer)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.CandleCollector,
	producer *usecase.SignalProducer,
	dispatcher *dispatch.Dispatcher,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	kafkaProd *pkgkafka.Producer,
	cacheSvc pkgcache.Service,
) *server.App {
	return server.New(cfg, log, collector, producer, dispatcher, handler, chClient, kafkaProd, cacheSvc)
}
