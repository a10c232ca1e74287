// Package telegram connects the request pipeline to the Telegram Bot API:
// long polling for updates, command replies, archive downloads and the
// responder that delivers pipeline results to a chat.
package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/net/proxy"

	"git.home.luguber.info/inful/texbot/internal/config"
	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// clientSlack is added to the long-poll timeout for the HTTP client deadline,
// leaving room for document uploads.
const clientSlack = 2 * time.Minute

// NewHTTPClient builds the client used for Bot API calls and file downloads,
// routed through proxyURL when set (socks5, socks5h, http, https).
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("unexpected default transport %T", http.DefaultTransport)
	}
	transport = transport.Clone()

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, tberrors.ValidationFailed("telegram.proxy_url", err.Error())
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		default:
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, tberrors.ValidationFailed("telegram.proxy_url", err.Error())
			}
			cd, ok := dialer.(proxy.ContextDialer)
			if !ok {
				return nil, tberrors.ValidationFailed("telegram.proxy_url", "proxy dialer does not support contexts")
			}
			transport.Proxy = nil
			transport.DialContext = cd.DialContext
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// Connect creates the Bot API client and checks the token with getMe.
func Connect(cfg config.TelegramConfig, client *http.Client, debug bool) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(slogBridge{logger: slog.Default().With(slog.String("component", "telegram"))}); err != nil {
		return nil, err
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, tberrors.TransportError("getMe", err)
	}
	api.Debug = debug
	slog.Info("Authorized on Telegram", slog.String("bot", api.Self.UserName))
	return api, nil
}

// HTTPTimeout returns the client deadline for a given poll timeout.
func HTTPTimeout(poll time.Duration) time.Duration {
	return poll + clientSlack
}

// slogBridge routes the Bot API library's logger to slog. Println is used
// for failures, Printf for request tracing in debug mode.
type slogBridge struct {
	logger *slog.Logger
}

func (b slogBridge) Println(v ...any) {
	b.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (b slogBridge) Printf(format string, v ...any) {
	b.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
