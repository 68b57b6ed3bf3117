// Package bot exposes record management over a Telegram chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"subzone/internal/config"
	"subzone/internal/model"
	"subzone/internal/provider"
	"subzone/internal/service"
)

const helpText = `Available commands:
/link <email> <password> - link this chat to your account
/me - show your account
/records - list your records
/add <name> <type> <content> [ttl] [proxied] - create a record
/update <id> <content> - change a record's content
/del <id> - delete a record
/referral - show your referral code`

type RecordService interface {
	Zone() string
	Create(ctx context.Context, owner *model.Account, in service.RecordInput) (*model.Record, error)
	List(ctx context.Context, owner *model.Account) ([]model.Record, error)
	Update(ctx context.Context, owner *model.Account, id string, patch model.RecordPatch) (*model.Record, error)
	Delete(ctx context.Context, owner *model.Account, id string) error
}

type AccountService interface {
	LinkTelegram(ctx context.Context, email, password string, chatID int64) (*model.Account, error)
	ByTelegram(ctx context.Context, chatID int64) (*model.Account, error)
	Referral(ctx context.Context, a *model.Account) (*service.ReferralView, error)
}

type Status struct {
	HasToken    bool   `json:"has_token"`
	MaskedToken string `json:"masked_token"`
	Running     bool   `json:"bot_running"`
	Username    string `json:"bot_username"`
	AdminID     int64  `json:"admin_id"`
}

type Bot struct {
	cfg      config.TelegramConfig
	records  RecordService
	accounts AccountService
	log      logr.Logger

	running  atomic.Bool
	mu       sync.Mutex
	api      *tgbotapi.BotAPI
	username string
}

func New(cfg config.TelegramConfig, records RecordService, accounts AccountService, log logr.Logger) *Bot {
	return &Bot{cfg: cfg, records: records, accounts: accounts, log: log.WithName("bot")}
}

// Start connects to Telegram and polls for updates until ctx is done.
// Without a token it does nothing.
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.Token == "" {
		b.log.Info("telegram token not set, bot disabled")
		return nil
	}
	api, err := tgbotapi.NewBotAPI(b.cfg.Token)
	if err != nil {
		return fmt.Errorf("connecting telegram bot: %w", err)
	}

	b.mu.Lock()
	b.api = api
	b.username = api.Self.UserName
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	b.running.Store(true)
	b.log.Info("bot started", "username", api.Self.UserName)

	go func() {
		defer b.running.Store(false)
		for {
			select {
			case <-ctx.Done():
				api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				b.handleUpdate(ctx, api, update)
			}
		}
	}()
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, api *tgbotapi.BotAPI, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	text := "Use /help for the list of commands"
	if msg.IsCommand() {
		text = b.Handle(ctx, msg.Chat.ID, msg.Command(), msg.CommandArguments())
		if msg.Command() == "link" {
			// the message carries a password
			if _, err := api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
				b.log.V(1).Info("could not delete /link message", "error", err.Error())
			}
		}
	}
	if _, err := api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		b.log.Error(err, "sending reply", "chat", msg.Chat.ID)
	}
}

// Handle runs one command for chatID and returns the reply text. A started
// command runs to completion even if ctx is cancelled.
func (b *Bot) Handle(ctx context.Context, chatID int64, command, args string) string {
	ctx = context.WithoutCancel(ctx)
	switch command {
	case "start", "help":
		return helpText
	case "link":
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return "Usage: /link <email> <password>"
		}
		acct, err := b.accounts.LinkTelegram(ctx, fields[0], fields[1], chatID)
		if err != nil {
			return b.errorText(err)
		}
		return fmt.Sprintf("Linked to %s", acct.Email)
	}

	acct, err := b.accounts.ByTelegram(ctx, chatID)
	if err != nil {
		return b.errorText(err)
	}
	if acct == nil {
		return "This chat is not linked. Use /link <email> <password> first."
	}

	switch command {
	case "me":
		return fmt.Sprintf("%s (%s)\nPlan: %s\nRecords: %d/%d", acct.Name, acct.Email, acct.Plan, acct.RecordCount, acct.RecordLimit)
	case "records":
		recs, err := b.records.List(ctx, acct)
		if err != nil {
			return b.errorText(err)
		}
		if len(recs) == 0 {
			return "You have no records yet"
		}
		var sb strings.Builder
		for _, r := range recs {
			fmt.Fprintf(&sb, "%s  %s %s -> %s\n", r.ID, r.FullName, r.Type, r.Content)
		}
		return strings.TrimRight(sb.String(), "\n")
	case "add":
		in, err := parseAdd(args)
		if err != nil {
			return err.Error()
		}
		rec, err := b.records.Create(ctx, acct, in)
		if err != nil {
			return b.errorText(err)
		}
		return fmt.Sprintf("Created %s %s -> %s (id %s)", rec.FullName, rec.Type, rec.Content, rec.ID)
	case "update":
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return "Usage: /update <id> <content>"
		}
		rec, err := b.records.Update(ctx, acct, fields[0], model.RecordPatch{Content: &fields[1]})
		if err != nil {
			return b.errorText(err)
		}
		return fmt.Sprintf("Updated %s %s -> %s", rec.FullName, rec.Type, rec.Content)
	case "del":
		id := strings.TrimSpace(args)
		if id == "" {
			return "Usage: /del <id>"
		}
		if err := b.records.Delete(ctx, acct, id); err != nil {
			return b.errorText(err)
		}
		return "Record deleted"
	case "referral":
		ref, err := b.accounts.Referral(ctx, acct)
		if err != nil {
			return b.errorText(err)
		}
		return fmt.Sprintf("Your code: %s\nInvited: %d\nBonus records: %d (+%d per invite)",
			ref.Code, ref.Count, ref.Bonus, ref.BonusPerInvite)
	}
	return "Unknown command. Use /help"
}

func parseAdd(args string) (service.RecordInput, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 || len(fields) > 5 {
		return service.RecordInput{}, errors.New("Usage: /add <name> <type> <content> [ttl] [proxied]")
	}
	in := service.RecordInput{
		Name:    fields[0],
		Type:    strings.ToUpper(fields[1]),
		Content: fields[2],
		TTL:     model.AutoTTL,
	}
	if len(fields) > 3 {
		ttl, err := strconv.Atoi(fields[3])
		if err != nil {
			return service.RecordInput{}, fmt.Errorf("TTL must be a number, got %q", fields[3])
		}
		in.TTL = ttl
	}
	if len(fields) > 4 {
		proxied, err := strconv.ParseBool(fields[4])
		if err != nil {
			return service.RecordInput{}, fmt.Errorf("proxied must be true or false, got %q", fields[4])
		}
		in.Proxied = proxied
	}
	return in, nil
}

// errorText shows caller-facing messages as they are and hides the rest.
func (b *Bot) errorText(err error) string {
	var svcErr *service.Error
	var provErr *provider.Error
	switch {
	case errors.As(err, &svcErr):
		return svcErr.Error()
	case errors.As(err, &provErr):
		return "DNS provider error: " + provErr.Message
	}
	b.log.Error(err, "command failed")
	return "Something went wrong, please try again later"
}

func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		HasToken:    b.cfg.Token != "",
		MaskedToken: maskToken(b.cfg.Token),
		Running:     b.running.Load(),
		Username:    b.username,
		AdminID:     b.cfg.AdminID,
	}
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
