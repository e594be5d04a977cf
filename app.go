package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"DMChat/data/database/mgo/mongoutil"
	"DMChat/global/config"
	"DMChat/logger"
	"DMChat/middleware"
	"DMChat/module/chat"
	"DMChat/module/chat/message"
	chatservice "DMChat/module/chat/service"
	"DMChat/module/user"
	userservice "DMChat/module/user/service"
	userstore "DMChat/module/user/store"
	"DMChat/service/assets"
	servicechat "DMChat/service/chat"
	"DMChat/service/events"
	"DMChat/service/httpapi"
	"DMChat/service/metrics"
	"DMChat/service/presence"
	"DMChat/service/storage"
	"DMChat/service/storage/redis"
	"DMChat/tools/errs"
	"DMChat/tools/ids"
	jwtlib "DMChat/tools/security"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App holds every long-lived component; closers run in reverse open order.
type App struct {
	conf    *config.AppConfig
	srv     *http.Server
	gateway *servicechat.Gateway
	closers []func(ctx context.Context) error
	log     *zap.Logger
}

func (a *App) onClose(f func(ctx context.Context) error) {
	a.closers = append(a.closers, f)
}

// NewApp opens the configured backends and assembles the HTTP surface.
// On error everything opened so far is closed again.
func NewApp(ctx context.Context, conf *config.AppConfig) (app *App, err error) {
	a := &App{conf: conf, log: logger.Named("app")}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	gen := ids.NewGenerator(conf.NodeID)
	ids.SetNodeID(conf.NodeID)
	m := metrics.New()

	var mgo *mongoutil.Client
	if conf.UsesMongo() {
		mgo, err = mongoutil.NewMongoDB(ctx, mongoConfig(conf))
		if err != nil {
			return nil, err
		}
		a.onClose(mgo.Close)
	}

	msgs, err := openMessageStore(ctx, conf, mgo, gen)
	if err != nil {
		return nil, err
	}
	a.onClose(msgs.Close)

	users, err := openUserStore(ctx, conf, mgo)
	if err != nil {
		return nil, err
	}

	sessions, err := openSessionStore(ctx, conf)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return sessions.Close() })

	assetStore, err := openAssetStore(conf, mgo)
	if err != nil {
		return nil, err
	}

	pub, err := openPublisher(conf)
	if err != nil {
		return nil, err
	}
	dispatcher := events.NewDispatcher(pub, conf.Events.QueueSize, m.EventDropped)
	a.onClose(dispatcher.Close)

	b := presence.NewBroadcaster(presence.NewRegistry(),
		presence.WithListener(m.Presence()),
		presence.WithListener(events.PresenceListener{D: dispatcher}),
	)

	userSvc := userservice.New(users, sessions, assetStore, jwtlib.Options{
		Secret: []byte(conf.Auth.JWTSecret),
		Alg:    conf.Auth.Alg,
		TTL:    conf.Auth.TokenTTL,
	}, b, dispatcher)

	router := chatservice.NewRouter(msgs, userSvc, b, assetStore,
		chatservice.WithEmitter(dispatcher),
		chatservice.WithSentHook(m.MessagesSent.Inc),
	)

	a.gateway = servicechat.NewGateway(b, userSvc, servicechat.NewConnManager(m.SetConnections), servicechat.ConnConf{
		PingInterval:  conf.WS.PingInterval,
		PongWait:      conf.WS.PongWait,
		WriteWait:     conf.WS.WriteWait,
		SendQueueSize: conf.WS.SendQueueSize,
		ReadLimit:     conf.WS.ReadLimit,
	}, func(origin string) bool {
		return middleware.OriginAllowed(conf.HTTP.CorsOrigins, origin)
	})

	engine := httpapi.NewEngine(httpapi.Deps{
		Conf:    conf.HTTP,
		Auth:    userSvc,
		Users:   user.NewHandler(userSvc),
		Chat:    chat.NewHandler(router, chatservice.NewAggregator(msgs), userSvc),
		Gateway: a.gateway,
		Assets:  assetStore,
		Metrics: m,
		Health: func(ctx context.Context) error {
			if mgo != nil {
				return mgo.Ping(ctx)
			}
			return nil
		},
	})
	a.srv = &http.Server{
		Addr:              conf.HTTP.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func mongoConfig(conf *config.AppConfig) *mongoutil.Config {
	return &mongoutil.Config{
		Uri:         conf.Mongo.Uri,
		Database:    conf.Mongo.Database,
		Username:    conf.Mongo.Username,
		Password:    conf.Mongo.Password,
		MaxPoolSize: conf.Mongo.MaxPoolSize,
		MaxRetry:    conf.Mongo.MaxRetry,
	}
}

func openMessageStore(ctx context.Context, conf *config.AppConfig, mgo *mongoutil.Client, gen *ids.Generator) (message.Store, error) {
	switch conf.Storage.Messages {
	case config.BackendMongo:
		return message.NewMongoStore(ctx, mgo.GetDB(), gen)
	case config.BackendPostgres:
		return message.OpenPgStore(ctx, conf.Postgres.DSN, conf.Postgres.MaxConns, gen)
	case config.BackendSQLite:
		return message.OpenSQLiteStore(ctx, conf.SQLite.Dir, gen)
	default:
		return message.NewMemStore(gen), nil
	}
}

func openUserStore(ctx context.Context, conf *config.AppConfig, mgo *mongoutil.Client) (userstore.Store, error) {
	if conf.Storage.Users == config.BackendMongo {
		return userstore.NewMongoStore(ctx, mgo.GetDB())
	}
	return userstore.NewMemStore(), nil
}

func openSessionStore(ctx context.Context, conf *config.AppConfig) (storage.SessionStore, error) {
	if conf.Storage.Sessions != config.BackendRedis {
		return storage.NewMemSessionStore(), nil
	}
	rdb, err := redis.NewClient(ctx, redis.Config{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
		PoolSize: conf.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	return storage.NewRedisSessionStore(rdb, conf.Auth.TokenTTL), nil
}

func openAssetStore(conf *config.AppConfig, mgo *mongoutil.Client) (assets.Store, error) {
	if conf.Storage.Assets == config.BackendGridFS {
		return assets.NewGridFSStore(mgo.GetDB())
	}
	return assets.NewMemStore(), nil
}

func openPublisher(conf *config.AppConfig) (events.Publisher, error) {
	ev := conf.Events
	switch ev.Backend {
	case config.EventsNats:
		return events.NewNatsPublisher(ev.Nats.Servers, ev.Nats.SubjectPrefix)
	case config.EventsKafka:
		return events.NewKafkaPublisher(ev.Kafka.Brokers, ev.Kafka.Topic)
	case config.EventsAMQP:
		return events.NewAMQPPublisher(ev.AMQP.URL, ev.AMQP.Exchange)
	default:
		return events.Nop{}, nil
	}
}

// Run serves until ctx is cancelled, then drains connections.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errs.WrapMsg(err, "http serve", "addr", a.srv.Addr)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// hijacked websockets are not tracked by http.Server
		a.gateway.Shutdown()
		return a.srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Close releases every backend, newest first.
func (a *App) Close(ctx context.Context) error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	a.closers = nil
	return err
}
