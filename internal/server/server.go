package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/domain"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/notify"
	"github.com/victornm/trivia/internal/score"
	"github.com/victornm/trivia/internal/session"
	"github.com/victornm/trivia/internal/storage"
	"github.com/victornm/trivia/internal/storage/postgres"
	"github.com/victornm/trivia/internal/storage/sqlite"
	"github.com/victornm/trivia/internal/telegram"
	"github.com/victornm/trivia/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	Log struct {
		Level string
		JSON  bool
	}

	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Storage struct {
		Driver string
	}

	Postgres postgres.Config

	SQLite struct {
		Path string
	}

	Redis struct {
		Leaderboard struct {
			RedisConfig `mapstructure:",squash"`
			TTL         time.Duration
		}

		Pubsub RedisConfig
	}

	Telegram struct {
		Token string
	}

	Game struct {
		PvPQuestions  int
		PreMatchDelay time.Duration
		Countdown     int
		CountdownStep time.Duration
		RoundTimeout  time.Duration
	}

	// Seed installs the default quiz catalogue on start.
	Seed bool
}

// DefaultConfig returns the values used for keys missing from the config file.
func DefaultConfig() Config {
	var c Config
	c.Log.Level = "info"
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Storage.Driver = DriverSQLite
	c.SQLite.Path = "trivia.db"
	c.Redis.Leaderboard.Prefix = "trivia"
	c.Redis.Leaderboard.TTL = time.Minute
	c.Redis.Pubsub.Prefix = "trivia"
	c.Game.PvPQuestions = 10
	c.Game.PreMatchDelay = 10 * time.Second
	c.Game.Countdown = 3
	c.Game.CountdownStep = time.Second
	c.Game.RoundTimeout = time.Minute
	c.Seed = true
	return c
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.Addr == "" {
			return stderrors.New("postgres.addr is required for the postgres driver")
		}
	case DriverSQLite:
		if c.SQLite.Path == "" {
			return stderrors.New("sqlite.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Telegram.Token == "" && len(c.Redis.Pubsub.Addrs) == 0 {
		return stderrors.New("either telegram.token or redis.pubsub.addrs must be set")
	}
	if c.Game.PvPQuestions <= 0 {
		return stderrors.New("game.pvpquestions must be positive")
	}
	if c.Game.Countdown < 0 || c.Game.PreMatchDelay < 0 || c.Game.CountdownStep < 0 || c.Game.RoundTimeout < 0 {
		return stderrors.New("game timings must not be negative")
	}

	return nil
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		store storage.Store

		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		telegram *tgbotapi.BotAPI
	}

	service struct {
		session     *session.Service
		score       *score.Service
		leaderboard *leaderboard.Service
	}

	bot    *telegram.Bot
	health *health.Server
	http   *http.Server
	grpc   *grpc.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()
	s.eb.Subscribe(domain.EventNameMatchFinished, func(_ context.Context, e event.Event) error {
		telemetry.MatchesFinished.WithLabelValues(string(e.(domain.EventMatchFinished).Outcome)).Inc()
		return nil
	})

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if s.c.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(s.c.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		slog.Info("server: telegram bot authorized", "account", bot.Self.UserName)
		s.infra.telegram = bot
	}

	return nil
}

func (s *Server) initStorage() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch s.c.Storage.Driver {
	case DriverPostgres:
		s.infra.store, err = postgres.Connect(ctx, s.c.Postgres)
	default:
		s.infra.store, err = sqlite.Open(ctx, s.c.SQLite.Path)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", s.c.Storage.Driver, err)
	}

	if !s.c.Seed {
		return nil
	}
	if err := s.infra.store.Seed(ctx, storage.DefaultQuizzes); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	slog.InfoContext(ctx, "server: quiz catalogue seeded", "quizzes", len(storage.DefaultQuizzes))
	return nil
}

func (s *Server) initRedis() error {
	connect := func(c RedisConfig) (redis.UniversalClient, error) {
		if len(c.Addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.RedisConfig)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initService() {
	s.service.score = score.NewService(score.Config{
		EventBus: s.eb,
		Ledger:   s.infra.store,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Records:  s.service.score,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
		TTL:      s.c.Redis.Leaderboard.TTL,
	})

	var notifier session.Notifier
	if s.infra.telegram != nil {
		notifier = telegram.NewNotifier(s.infra.telegram)
	} else {
		notifier = notify.NewPublisher(s.infra.redis.pubsub, s.c.Redis.Pubsub.Prefix)
	}

	g := s.c.Game
	s.service.session = session.NewService(session.Config{
		EventBus:      s.eb,
		Questions:     s.infra.store,
		Scores:        s.service.score,
		Notifier:      notifier,
		PvPQuestions:  g.PvPQuestions,
		PreMatchDelay: g.PreMatchDelay,
		Countdown:     g.Countdown,
		CountdownStep: g.CountdownStep,
		RoundTimeout:  g.RoundTimeout,
	})

	if s.infra.telegram != nil {
		s.bot = telegram.NewBot(telegram.Config{
			API:         s.infra.telegram,
			Sessions:    s.service.session,
			Quizzes:     s.infra.store,
			Leaderboard: s.service.leaderboard,
			Scores:      s.service.score,
		})
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:      e,
		Sessions:    s.service.session,
		Quizzes:     s.infra.store,
		Leaderboard: s.service.leaderboard,
		Scores:      s.service.score,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := s.ctx

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, "server: gRPC listening", "port", s.c.GRPC.Port)
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, "server: HTTP listening", "port", s.c.HTTP.Port)
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.bot != nil {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := s.infra.telegram.GetUpdatesChan(u)

		eg.Go(func() error {
			s.bot.Run(ctx, updates)
			return nil
		})
	}

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// Shutdown stops the transports first, then aborts running matches and waits for
// pending event handlers before the store is closed.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	if s.infra.telegram != nil {
		s.infra.telegram.StopReceivingUpdates()
	}
	s.cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.session.Stop()
	s.eb.Stop()

	if err := s.infra.store.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close store failed", "error", err)
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
