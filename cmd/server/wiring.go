package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/anonmatch/internal/config"
	"github.com/and161185/anonmatch/internal/crypto"
	"github.com/and161185/anonmatch/internal/limiter"
	"github.com/and161185/anonmatch/internal/migrate"
	"github.com/and161185/anonmatch/internal/notify"
	"github.com/and161185/anonmatch/internal/repository"
	"github.com/and161185/anonmatch/internal/repository/memory"
	"github.com/and161185/anonmatch/internal/repository/postgres"
	"github.com/and161185/anonmatch/internal/repository/rediscache"
)

type stores struct {
	profiles repository.ProfileRepository
	blocks   repository.BlockRepository
	queue    repository.QueueRepository
	sessions repository.SessionRepository
	limiter  limiter.Limiter
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Store {
	case config.StoreMemory:
		queue := memory.NewQueueRepo()
		profiles := memory.NewOpenProfileRepo()
		st.profiles, st.blocks, st.queue = profiles, profiles, queue
		st.sessions = memory.NewSessionRepo(queue)
		if cfg.RateMax > 0 {
			st.limiter = limiter.NewMemory(clockwork.NewRealClock(), cfg.RateWindow, cfg.RateMax)
		}
		log.Warn("memory store: blank profiles are created on first request, state is lost on restart")
	default:
		if err := migrate.Up(ctx, cfg.DSN, log); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		st.closers = append(st.closers, db.Close)
		st.profiles = postgres.NewProfileRepo(db)
		st.blocks = postgres.NewBlockRepo(db)
		st.queue = postgres.NewQueueRepo(db)
		st.sessions = postgres.NewSessionRepo(db)
		if cfg.RateMax > 0 {
			st.limiter = limiter.NewPG(db.Pool, cfg.RateWindow, cfg.RateMax)
		}
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			_ = rdb.Close()
			st.Close()
			return nil, fmt.Errorf("redis tracing: %w", err)
		}
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		st.profiles = rediscache.New(st.profiles, rdb, cfg.ProfileTTL, log)
	}
	return st, nil
}

type notifier struct {
	notifier notify.Notifier
	hub      *notify.Hub // set for the stream backend only
	close    func()
}

func (n *notifier) Close() {
	if n.close != nil {
		n.close()
	}
}

func openNotifier(cfg config.Config, log *zap.Logger, ids *crypto.Pseudonym) (*notifier, error) {
	switch cfg.Notifier {
	case config.NotifierTelegram:
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		log.Info("telegram bot authorized", zap.String("bot", bot.Self.UserName))
		return &notifier{notifier: notify.NewTelegram(bot)}, nil
	case config.NotifierNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("anonmatch"))
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		return &notifier{notifier: notify.NewNATS(nc, cfg.NATSPrefix, cfg.NATSTimeout), close: nc.Close}, nil
	case config.NotifierStream:
		hub := notify.NewHub(cfg.StreamBuffer)
		return &notifier{notifier: hub, hub: hub}, nil
	default:
		return &notifier{notifier: notify.NewLog(log, ids)}, nil
	}
}
