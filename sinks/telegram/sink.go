// Package telegram forwards presence activity to a Telegram chat and
// answers control commands sent to the bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"rpp/cmd"
	"rpp/internal/config"
	"rpp/plugin"
	"rpp/sink"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	sinkName = "telegram"
	tokenEnv = "TELEGRAM_TOKEN"
)

var errNoToken = errors.New(tokenEnv + " not set in config or environment")

func init() {
	sink.Register(New())
}

// Sink is the Telegram bot sink
type Sink struct {
	mu     sync.Mutex
	env    sink.Env
	bot    *tgbotapi.BotAPI
	router *cmd.Router
	ctx    context.Context
	store  *sink.ActivityStore
	chatID atomic.Int64
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Telegram sink
func New() *Sink {
	return &Sink{
		store:  sink.NewActivityStore(),
		logger: zap.NewNop(),
	}
}

// Name returns the sink name
func (s *Sink) Name() string {
	return sinkName
}

// CheckRequirements requires a bot token and daemon mode
func (s *Sink) CheckRequirements(ctx context.Context) error {
	cfg, _ := sink.ConfigFrom(ctx)

	checker := plugin.NewRequirementChecker(sinkName)
	checker.AddRequired(
		"telegram_token",
		"Telegram bot token required",
		func(ctx context.Context) error {
			if token(cfg) == "" {
				return errNoToken
			}
			return nil
		},
	)
	checker.AddRequired(
		"daemon_mode",
		"Telegram requires daemon mode",
		plugin.RequireMode(plugin.ModeDaemon),
	)
	_, err := checker.Check(ctx)
	return err
}

// token returns the bot token from config, falling back to the environment
func token(cfg *config.Config) string {
	if cfg != nil {
		if t, ok := cfg.GetSinkSettingString(sinkName, "token"); ok && t != "" {
			return t
		}
	}
	return os.Getenv(tokenEnv)
}

// Start authorizes the bot and starts the update and activity loops
func (s *Sink) Start(ctx context.Context, env sink.Env) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env = env
	if env.Logger != nil {
		s.logger = env.Logger.With(zap.String("sink", sinkName))
	}
	s.ctx = cmd.WithDaemon(plugin.WithMode(context.WithoutCancel(ctx), env.Mode()), env.Daemon)
	s.router = cmd.NewRouter()

	bot, err := tgbotapi.NewBotAPI(token(env.Config))
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	s.bot = bot
	s.logger.Info("authorized", zap.String("account", bot.Self.UserName))

	if env.Config != nil {
		if id, ok := env.Config.GetSinkSettingInt64(sinkName, "chat_id"); ok {
			s.chatID.Store(id)
		}
	}

	stop := make(chan struct{})
	s.stopCh = stop
	if env.Broker != nil {
		ch := env.Broker.Subscribe(sinkName, env.BufferSize(), plugin.TopicActivity, plugin.TopicNotification)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleBrokerMessages(ch)
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleTelegramUpdates(updates, stop)
	}()

	return nil
}

// Stop stops polling and waits for the loops to exit
func (s *Sink) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh == nil {
		return nil
	}
	close(s.stopCh)
	s.stopCh = nil

	if s.bot != nil {
		s.bot.StopReceivingUpdates()
	}
	if s.env.Broker != nil {
		s.env.Broker.Unsubscribe(sinkName)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) handleBrokerMessages(ch <-chan plugin.Message) {
	for msg := range ch {
		chatID := s.chatID.Load()

		switch msg.Topic {
		case plugin.TopicActivity:
			a, ok := msg.Payload.(plugin.Activity)
			if !ok || !s.store.Set(msg.Source, a) || chatID == 0 {
				continue
			}
			s.send(chatID, formatActivity(msg.Source, a))

		case plugin.TopicNotification:
			if chatID != 0 {
				s.send(chatID, fmt.Sprintf("%v", msg.Payload))
			}
		}
	}
}

// handleTelegramUpdates reads updates until the channel closes or stop is
// closed. Both are owned by the caller.
func (s *Sink) handleTelegramUpdates(updates tgbotapi.UpdatesChannel, stop <-chan struct{}) {
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			s.chatID.Store(update.Message.Chat.ID)
			s.processMessage(update.Message)

		case <-stop:
			return
		}
	}
}

func (s *Sink) processMessage(message *tgbotapi.Message) {
	if !s.router.IsCommand(message.Text) {
		s.send(message.Chat.ID, "Send /help for the list of commands.")
		return
	}

	s.logger.Debug("command received",
		zap.Int64("chat", message.Chat.ID),
		zap.String("text", message.Text),
	)

	result, err := s.router.Route(s.ctx, message.Text)
	if err != nil {
		s.send(message.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	if result != nil && result.Output != "" {
		s.send(message.Chat.ID, result.Output)
	}
}

func (s *Sink) send(chatID int64, text string) {
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.logger.Warn("error sending message", zap.Error(err))
	}
}

// formatActivity renders an activity as a chat message
func formatActivity(presence string, a plugin.Activity) string {
	if a.IsZero() {
		return presence + ": idle"
	}

	var sb strings.Builder
	sb.WriteString(presence)
	sb.WriteString(":")
	if a.Details != "" {
		sb.WriteString(" " + a.Details)
	}
	if a.State != "" {
		sb.WriteString(" (" + a.State + ")")
	}
	return sb.String()
}
