// Package session собирает все сервисы приложения в одно значение, которое создается
// при запуске и передается дальше явно (вместо глобальных синглтонов).
package session

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"rideguardian/internal/config"
	"rideguardian/internal/db"
	"rideguardian/internal/derivation"
	"rideguardian/internal/export"
	"rideguardian/internal/mapping"
	"rideguardian/internal/payroll"
	"rideguardian/internal/telegram_api"
	"rideguardian/internal/validator"
	"rideguardian/internal/worker"
)

// Session - неизменяемый набор сервисов процесса. Поля не переназначаются после New.
type Session struct {
	Config    *config.Config
	Store     *db.Store
	Maps      *mapping.Cache
	Engine    *derivation.Engine
	Validator *validator.Validator
	Payroll   *payroll.Calculator
	Exporter  *export.Exporter
	Jobs      *worker.Pool
	Notifier  *telegram_api.Notifier
}

// Options - зависимости, которые можно подменить (тесты, офлайн-режим).
type Options struct {
	Provider mapping.Provider
	Sender   telegram_api.Sender
}

// New открывает хранилище по конфигурации и собирает сервисы.
func New(cfg *config.Config) (*Session, error) {
	store, err := db.Open(cfg.DBDriver, cfg.DSN(), cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	var opts Options
	if cfg.MapsAPIKey != "" {
		opts.Provider = mapping.NewGoogleProvider(cfg.MapsAPIKey)
	}
	if cfg.TelegramToken != "" && cfg.NotifyChatID != 0 {
		bot, errBot := telegram_api.NewBotClient(cfg.TelegramToken, cfg.IsDev())
		if errBot != nil {
			log.Printf("Предупреждение: Telegram недоступен, уведомления отключены: %v", errBot)
		} else {
			opts.Sender = bot
		}
	}
	return Assemble(cfg, store, opts), nil
}

// Assemble связывает сервисы вокруг уже открытого хранилища.
func Assemble(cfg *config.Config, store *db.Store, opts Options) *Session {
	s := &Session{Config: cfg, Store: store}

	s.Maps = mapping.NewCache(store, opts.Provider,
		mapping.WithTimeout(cfg.MappingTimeout),
		mapping.WithParallelism(cfg.WorkerCount))
	s.Engine = derivation.NewEngine(store, s.Maps, derivation.IsGermanHoliday)

	var notifier validator.Notifier
	if opts.Sender != nil && cfg.NotifyChatID != 0 {
		s.Notifier = telegram_api.NewNotifier(opts.Sender, cfg.NotifyChatID, store)
		notifier = s.Notifier
	}
	s.Validator = validator.New(store, s.Maps, notifier)
	s.Payroll = payroll.New(store, s.Engine.Holidays())
	s.Exporter = export.New(store, s.Payroll, s.Maps, s.Engine.Holidays())
	s.Jobs = worker.NewPool(cfg.WorkerCount, 32)
	return s
}

// Close останавливает пул задач и закрывает хранилище.
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Jobs.Shutdown(ctx); err != nil {
		log.Printf("Session.Close: пул задач не остановился вовремя: %v", err)
	}
	s.Store.Close()
}
