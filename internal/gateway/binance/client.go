package binance

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// Config carries the futures REST connection settings.
type Config struct {
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	RESTBaseURL string        `mapstructure:"rest_base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}

// Client wraps the go-binance futures client for the snapshot, candle and
// position sources.
type Client struct {
	cfg Config
	api *futures.Client
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if base := strings.TrimSpace(cfg.RESTBaseURL); base != "" {
		api.BaseURL = base
	}
	api.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return &Client{cfg: cfg, api: api}
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
