package bot

import (
	"encoding/json"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// webAppData is the payload a Mini App sends with Telegram.WebApp.sendData.
// The library's Message type does not decode it.
type webAppData struct {
	Data       string `json:"data"`
	ButtonText string `json:"button_text"`
}

// incomingUpdate is an update plus the Mini App payload of its message, if any.
type incomingUpdate struct {
	tgbotapi.Update
	WebApp *webAppData
}

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) <-chan incomingUpdate
	GetFileDirectURL(fileID string) (string, error)
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api    *tgbotapi.BotAPI
	logger *zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func newRealTelegramClient(api *tgbotapi.BotAPI, logger *zerolog.Logger) *realTelegramClient {
	return &realTelegramClient{api: api, logger: logger, stop: make(chan struct{})}
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

// GetUpdatesChan long-polls getUpdates until StopReceivingUpdates is called.
func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) <-chan incomingUpdate {
	ch := make(chan incomingUpdate, 100)
	go func() {
		defer close(ch)
		for {
			select {
			case <-c.stop:
				return
			default:
			}

			resp, err := c.api.Request(cfg)
			if err != nil {
				c.logger.Warn().Err(err).Msg("failed to get updates, retrying in 3 seconds")
				select {
				case <-c.stop:
					return
				case <-time.After(3 * time.Second):
				}
				continue
			}
			updates, err := decodeUpdates(resp.Result)
			if err != nil {
				c.logger.Error().Err(err).Msg("malformed getUpdates result")
				continue
			}
			for _, u := range updates {
				if u.UpdateID < cfg.Offset {
					continue
				}
				cfg.Offset = u.UpdateID + 1
				select {
				case ch <- u:
				case <-c.stop:
					return
				}
			}
		}
	}()
	return ch
}

// decodeUpdates parses a getUpdates result, keeping web_app_data which the
// library drops.
func decodeUpdates(raw json.RawMessage) ([]incomingUpdate, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]incomingUpdate, 0, len(items))
	for _, item := range items {
		var u incomingUpdate
		if err := json.Unmarshal(item, &u.Update); err != nil {
			return nil, err
		}
		var extra struct {
			Message *struct {
				WebAppData *webAppData `json:"web_app_data"`
			} `json:"message"`
		}
		if err := json.Unmarshal(item, &extra); err == nil && extra.Message != nil {
			u.WebApp = extra.Message.WebAppData
		}
		out = append(out, u)
	}
	return out, nil
}

func (c *realTelegramClient) GetFileDirectURL(fileID string) (string, error) {
	return c.api.GetFileDirectURL(fileID)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}
