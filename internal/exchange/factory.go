package exchange

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Settings selects and parameterises a concrete adapter.
type Settings struct {
	Name       string
	Type       string
	Mode       Mode
	APIKey     string
	APISecret  string
	Passphrase string
	BaseURL    string
	WSURL      string
	Timeout    time.Duration
}

// New builds an adapter for the configured exchange type.
func New(settings Settings, logger zerolog.Logger) (Adapter, error) {
	switch settings.Type {
	case "binance":
		return NewBinance(BinanceOptions{
			Name:      settings.Name,
			BaseURL:   settings.BaseURL,
			Mode:      settings.Mode,
			APIKey:    settings.APIKey,
			APISecret: settings.APISecret,
			Timeout:   settings.Timeout,
		}, logger), nil
	case "okx":
		return NewOKX(OKXOptions{
			Name:       settings.Name,
			BaseURL:    settings.BaseURL,
			Mode:       settings.Mode,
			APIKey:     settings.APIKey,
			APISecret:  settings.APISecret,
			Passphrase: settings.Passphrase,
			Timeout:    settings.Timeout,
		}, logger), nil
	case "bybit":
		if settings.Mode == ModePrivate {
			return nil, fmt.Errorf("exchange %s: bybit trading is not supported, use public mode", settings.Name)
		}
		return NewBybit(BybitOptions{
			Name:    settings.Name,
			BaseURL: settings.BaseURL,
			WSURL:   settings.WSURL,
			Timeout: settings.Timeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown exchange type %q", settings.Type)
	}
}
