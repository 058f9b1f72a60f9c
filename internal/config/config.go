package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	cfgMux sync.RWMutex
	Perch  *Cfg

	Version = "dev"
)

const (
	AuthTypeOffline = "offline"

	DefaultProtocolVersion  = 47 // 1.8.x
	DefaultTimeoutMs        = 60000
	DefaultReconnectDelayMs = 5000
	DefaultBacklogSize      = 1000
	DefaultWebPort          = 8000
)

type Cfg struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`

	Account struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		AuthType string `yaml:"authType"`
	} `yaml:"account"`

	Server struct {
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		ProtocolVersion int    `yaml:"protocolVersion"`
	} `yaml:"server"`

	TimeoutMs int `yaml:"timeoutMs"`

	Reconnect struct {
		Enabled   bool `yaml:"enabled"`
		DelayMs   int  `yaml:"delayMs"`
		Backoff   bool `yaml:"backoff"`
		MaxWaitMs int  `yaml:"maxWaitMs"`
	} `yaml:"reconnect"`

	AutoAuth struct {
		Enabled  bool   `yaml:"enabled"`
		Password string `yaml:"password"`
	} `yaml:"autoAuth"`

	ChatMessages struct {
		Enabled            bool     `yaml:"enabled"`
		Messages           []string `yaml:"messages"`
		Repeat             bool     `yaml:"repeat"`
		RepeatDelaySeconds int      `yaml:"repeatDelaySeconds"`
	} `yaml:"chatMessages"`

	IdlePosture struct {
		Enabled bool `yaml:"enabled"`
		Sneak   bool `yaml:"sneak"`
	} `yaml:"idlePosture"`

	MoveToTarget struct {
		Enabled bool    `yaml:"enabled"`
		X       float64 `yaml:"x"`
		Y       float64 `yaml:"y"`
		Z       float64 `yaml:"z"`
	} `yaml:"moveToTarget"`

	Web struct {
		Enabled     bool `yaml:"enabled"`
		Port        int  `yaml:"port"`
		BacklogSize int  `yaml:"backlogSize"`
	} `yaml:"web"`

	Discord struct {
		Enabled    bool     `yaml:"enabled"`
		Token      string   `yaml:"token"`
		ChannelID  string   `yaml:"channelId"`
		BotAdmins  []string `yaml:"botAdmins"`
		UseWebhook bool     `yaml:"useWebhook"`
		WebhookURL string   `yaml:"webhookUrl"`
	} `yaml:"discord"`

	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		ChatID  int64  `yaml:"chatId"`
		Token   string `yaml:"token"`
	} `yaml:"telegram"`

	Ngrok struct {
		Enabled       bool   `yaml:"enabled"`
		SendURL       bool   `yaml:"sendUrl"`
		Authtoken     string `yaml:"authtoken"`
		Region        string `yaml:"region"`
		Domain        string `yaml:"domain"`
		BasicAuthUser string `yaml:"basicAuthUser"`
		BasicAuthPass string `yaml:"basicAuthPass"`
	} `yaml:"ngrok"`
}

// Load reads config/perch.yaml into the package-level Perch config,
// applying defaults for optional fields and validating the required ones.
func Load() error {
	cfgMux.Lock()
	defer cfgMux.Unlock()

	r, err := os.Open("config/perch.yaml")
	if err != nil {
		return fmt.Errorf("error loading perch.yaml: %w", err)
	}
	defer r.Close()

	cfg := &Cfg{}
	d := yaml.NewDecoder(r)
	if err = d.Decode(cfg); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	if err = applyDefaults(cfg); err != nil {
		return err
	}

	Perch = cfg
	return nil
}

func applyDefaults(cfg *Cfg) error {
	if cfg.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 25565
	}
	if cfg.Server.ProtocolVersion <= 0 {
		cfg.Server.ProtocolVersion = DefaultProtocolVersion
	}
	if cfg.Account.AuthType == "" {
		cfg.Account.AuthType = AuthTypeOffline
	}
	if cfg.Account.AuthType != AuthTypeOffline {
		return fmt.Errorf("unsupported account.authType %q", cfg.Account.AuthType)
	}
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = DefaultTimeoutMs
	}
	if cfg.Reconnect.DelayMs <= 0 {
		cfg.Reconnect.DelayMs = DefaultReconnectDelayMs
	}
	if cfg.Reconnect.MaxWaitMs < cfg.Reconnect.DelayMs {
		cfg.Reconnect.MaxWaitMs = cfg.Reconnect.DelayMs * 12
	}
	if cfg.AutoAuth.Enabled && cfg.AutoAuth.Password == "" {
		return errors.New("autoAuth.password is required when autoAuth is enabled")
	}
	if cfg.ChatMessages.Enabled && len(cfg.ChatMessages.Messages) == 0 {
		return errors.New("chatMessages.messages must not be empty when chatMessages is enabled")
	}
	if cfg.ChatMessages.RepeatDelaySeconds <= 0 {
		cfg.ChatMessages.RepeatDelaySeconds = 60
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = DefaultWebPort
	}
	if cfg.Web.BacklogSize <= 0 {
		cfg.Web.BacklogSize = DefaultBacklogSize
	}
	if cfg.LogSaveDirectory == "" {
		cfg.LogSaveDirectory = "logs"
	}
	return nil
}

// Get returns the current config. Load must have been called first.
func Get() *Cfg {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	return Perch
}

func (c *Cfg) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *Cfg) ReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.DelayMs) * time.Millisecond
}

func (c *Cfg) ReconnectMaxWait() time.Duration {
	return time.Duration(c.Reconnect.MaxWaitMs) * time.Millisecond
}
