package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/interestbot/core/config"
	"github.com/m3rciful/interestbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

func TestRegistryLookupAndListing(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/help", commands.Command{Handler: noop, Description: "Show help", Aliases: []string{"start"}})
	reg.RegisterCommand("/add", commands.Command{Handler: noop, Description: "Count a keyword"})
	reg.RegisterCommand("/match", commands.Command{Handler: noop, Description: "Run a pass", AdminOnly: true, Hidden: true})

	reg.RegisterCommand("/add", commands.Command{Handler: noop, Description: "duplicate"})
	reg.RegisterCommand("hello", commands.Command{Handler: noop, Description: "no slash"})
	reg.RegisterCommand("/empty", commands.Command{Handler: noop})

	assert.Len(t, reg.Commands(), 3)
	assert.Equal(t, "Count a keyword", reg.Commands()["/add"].Description)

	key, _, ok := reg.LookupCommand("/start")
	require.True(t, ok)
	assert.Equal(t, "/help", key)
	key, _, ok = reg.LookupCommand("add")
	require.True(t, ok)
	assert.Equal(t, "/add", key)
	_, _, ok = reg.LookupCommand("/unknown")
	assert.False(t, ok)

	assert.Equal(t, []tele.Command{
		{Text: "/add", Description: "Count a keyword"},
		{Text: "/help", Description: "Show help"},
	}, reg.ListCommands(true))
	assert.Len(t, reg.ListCommands(false), 3)
}

func TestBuildPoller(t *testing.T) {
	cfg := &coreconfig.Config{}
	cfg.Telegram.RunMode = coreconfig.RunModeLongpoll
	lp, ok := BuildPoller(cfg).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)
	assert.Equal(t, []string{"message"}, lp.AllowedUpdates)

	cfg.Telegram.LongPollTimeoutSeconds = 30
	lp = BuildPoller(cfg).(*tele.LongPoller)
	assert.Equal(t, 30*time.Second, lp.Timeout)

	cfg.Telegram.RunMode = "Webhook"
	cfg.Webhook.Listen = "0.0.0.0"
	cfg.Webhook.Port = 8443
	cfg.Webhook.URL = "https://bot.example.org/hook"
	wh, ok := BuildPoller(cfg).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://bot.example.org/hook", wh.Endpoint.PublicURL)
}
