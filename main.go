package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nicebartender/miraibot/bot"
	"github.com/nicebartender/miraibot/gatewaytest"
	"github.com/nicebartender/miraibot/journal"
	"github.com/nicebartender/miraibot/message"
)

var _ bot.Recorder = (*journal.DB)(nil)

const (
	trigger   = "你好世界"
	avatarURL = "https://cdn.jsdelivr.net/gh/zhangfh-cq/images@master/second-blog/avatar.png"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	if cfg.Fake {
		gw := gatewaytest.New("fake-key", "fake-session")
		defer gw.Close()
		cfg.APIURL, cfg.VerifyKey = gw.URL(), "fake-key"
		if cfg.QQ == 0 {
			cfg.QQ = 10000
		}
		slog.Info("using fake gateway", "url", gw.URL())
	}

	botCfg := bot.Config{
		DrainInterval:  cfg.DrainInterval,
		WaitForSession: true,
	}
	if cfg.ClearSession {
		botCfg.SessionPolicy = bot.ClearSession
	}
	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath)
		if err != nil {
			slog.Error("failed to open journal", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		botCfg.Recorder = db
	}

	client := bot.NewClient(botCfg)
	registerHandlers(client, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Open(ctx, bot.LinkConfig{APIURL: cfg.APIURL, VerifyKey: cfg.VerifyKey, QQ: cfg.QQ}); err != nil {
		slog.Error("failed to open connection", "err", err)
		os.Exit(1)
	}

	if cfg.AdminQQ != 0 {
		client.Send(bot.SendInfo{
			MsgType: bot.FriendMessage,
			Target:  cfg.AdminQQ,
			Message: message.New().AddText("Hello,Admin!"),
		})
	}

	slog.Info("miraibot running", "qq", cfg.QQ)
	<-ctx.Done()
	client.Close()
	slog.Info("miraibot stopped", "pending", client.Pending())
}

// registerHandlers answers the trigger phrase from the admin in a friend
// chat, and from anyone in the watched group.
func registerHandlers(client *bot.Client, cfg Config) {
	reply := func(evt bot.Event) {
		msg, err := evt.Message()
		if err != nil {
			slog.Warn("undecodable message event", "err", err)
			return
		}
		if msg.PlainText() != trigger {
			return
		}
		switch evt.Type {
		case bot.EventFriendMessage:
			if msg.Sender.ID != cfg.AdminQQ {
				return
			}
		case bot.EventGroupMessage:
			if msg.Sender.Group == nil || msg.Sender.Group.ID != cfg.GroupQQ {
				return
			}
		}
		msgType, target := msg.ReplyTo()
		client.Send(bot.SendInfo{
			MsgType: msgType,
			Target:  target,
			Message: message.New().AddText("Hello,World!").AddImage(avatarURL),
		})
	}
	client.On(bot.EventFriendMessage, reply)
	client.On(bot.EventGroupMessage, reply)
}
