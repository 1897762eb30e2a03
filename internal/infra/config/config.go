package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Chat         ChatConfig         `mapstructure:"chat"`
	OKX          OKXConfig          `mapstructure:"okx"`
	EVM          EVMConfig          `mapstructure:"evm"`
	Solana       SolanaConfig       `mapstructure:"solana"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Notices      NoticesConfig      `mapstructure:"notices"`
	App          AppConfig          `mapstructure:"app"`
}

// ChatConfig - platform is "discord" or "telegram"
type ChatConfig struct {
	Platform         string   `mapstructure:"platform"`
	DiscordToken     string   `mapstructure:"discord_token"`
	TelegramToken    string   `mapstructure:"telegram_token"`
	AdminChannelID   string   `mapstructure:"admin_channel_id"`
	UserChannelID    string   `mapstructure:"user_channel_id"`
	NoticeChannelID  string   `mapstructure:"notice_channel_id"`
	AdminIDs         []string `mapstructure:"admin_ids"`
	ReviewerMention  string   `mapstructure:"reviewer_mention"`
	SessionTTLSecond int      `mapstructure:"session_ttl_seconds"`
}

type OKXConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	SecretKey   string  `mapstructure:"secret_key"`
	Passphrase  string  `mapstructure:"passphrase"`
	ProjectID   string  `mapstructure:"project_id"`
	BaseURL     string  `mapstructure:"base_url"`
	SlippageEVM float64 `mapstructure:"slippage_evm"`
	SlippageSOL float64 `mapstructure:"slippage_sol"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
}

type EVMConfig struct {
	RPCURL         string `mapstructure:"rpc_url"`
	PrivateKey     string `mapstructure:"private_key"`
	Address        string `mapstructure:"address"`
	SwapAmountWei  string `mapstructure:"swap_amount_wei"`
	SettlementWait int    `mapstructure:"settlement_wait_seconds"`
}

type SolanaConfig struct {
	RPCURL            string `mapstructure:"rpc_url"`
	PrivateKey        string `mapstructure:"private_key"`
	Address           string `mapstructure:"address"`
	SwapAmountLamport uint64 `mapstructure:"swap_amount_lamports"`
	SettlementWait    int    `mapstructure:"settlement_wait_seconds"`
	RPCRatePerSec     int    `mapstructure:"rpc_rate_per_sec"`
}

type DistributionConfig struct {
	Recipients int    `mapstructure:"recipients"`
	DailyQuota int    `mapstructure:"daily_quota"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

type SettlementConfig struct {
	Retries    int `mapstructure:"retries"`
	BaseDelayS int `mapstructure:"base_delay_seconds"`
	MaxDelayS  int `mapstructure:"max_delay_seconds"`
}

// NoticesConfig - schedule is a cron spec, empty means interval polling
type NoticesConfig struct {
	ListURL         string `mapstructure:"list_url"`
	FeedBaseURL     string `mapstructure:"feed_base_url"`
	PageSize        int    `mapstructure:"page_size"`
	Schedule        string `mapstructure:"schedule"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	Timezone        string `mapstructure:"timezone"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
}

type AppConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
	MaxResponseSize int64  `mapstructure:"max_response_size"`
}

func (c *EVMConfig) Wait() time.Duration {
	return time.Duration(c.SettlementWait) * time.Second
}

func (c *SolanaConfig) Wait() time.Duration {
	return time.Duration(c.SettlementWait) * time.Second
}

func (c *ChatConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSecond) * time.Second
}

func (c *SettlementConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayS) * time.Second
}

func (c *SettlementConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayS) * time.Second
}

// IsAdmin reports whether a chat user id is listed in chat.admin_ids.
func (c *ChatConfig) IsAdmin(userID string) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// LoadConfig merges, lowest priority first:
// 1. defaults
// 2. config.yaml
// 3. .env file
// 4. environment
// 5. command line flags
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	godotenv.Load(".env")

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.ReadInConfig()

	v.SetConfigType("env")
	v.SetConfigFile(".env")
	v.MergeInConfig()

	v.AutomaticEnv()

	setupEnvAliases(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// admin ids arrive as "a,b" from .env and as a list from yaml
	config.Chat.AdminIDs = splitList(v.Get("chat.admin_ids"))

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func splitList(raw interface{}) []string {
	switch val := raw.(type) {
	case string:
		if strings.TrimSpace(val) == "" {
			return []string{}
		}
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			switch s := item.(type) {
			case string:
				out = append(out, strings.TrimSpace(s))
			case int:
				out = append(out, strconv.Itoa(s))
			case int64:
				out = append(out, strconv.FormatInt(s, 10))
			}
		}
		return out
	default:
		return []string{}
	}
}

func setupEnvAliases(v *viper.Viper) {
	// Chat
	v.BindEnv("chat.platform", "CHAT_PLATFORM")
	v.BindEnv("chat.discord_token", "DISCORD_TOKEN")
	v.BindEnv("chat.telegram_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("chat.admin_channel_id", "DISCORD_ADMIN_CHANNEL", "ADMIN_CHANNEL_ID")
	v.BindEnv("chat.user_channel_id", "DISCORD_USER_CHANNEL", "USER_CHANNEL_ID")
	v.BindEnv("chat.notice_channel_id", "NOTICE_CHANNEL_ID")
	v.BindEnv("chat.admin_ids", "ADMIN_IDS")
	v.BindEnv("chat.reviewer_mention", "REVIEWER_MENTION")
	v.BindEnv("chat.session_ttl_seconds", "SESSION_TTL_SECONDS")

	// OKX
	v.BindEnv("okx.api_key", "OKX_API_KEY")
	v.BindEnv("okx.secret_key", "OKX_SECRET_KEY")
	v.BindEnv("okx.passphrase", "OKX_API_PASSPHRASE")
	v.BindEnv("okx.project_id", "OKX_PROJECT_ID")
	v.BindEnv("okx.base_url", "OKX_BASE_URL")

	// EVM
	v.BindEnv("evm.rpc_url", "INFURA_URL", "ETH_RPC_URL")
	v.BindEnv("evm.private_key", "ETH_PRIVATE_KEY")
	v.BindEnv("evm.address", "ETH_ADDRESS")
	v.BindEnv("evm.swap_amount_wei", "ETH_SWAP_AMOUNT_WEI")
	v.BindEnv("evm.settlement_wait_seconds", "ETH_SETTLEMENT_WAIT")

	// Solana
	v.BindEnv("solana.rpc_url", "RPC_URL", "SOL_RPC_URL")
	v.BindEnv("solana.private_key", "SOL_PRIVATE_KEY")
	v.BindEnv("solana.address", "SOL_ADDRESS")
	v.BindEnv("solana.swap_amount_lamports", "SOL_SWAP_AMOUNT_LAMPORTS")
	v.BindEnv("solana.settlement_wait_seconds", "SOL_SETTLEMENT_WAIT")
	v.BindEnv("solana.rpc_rate_per_sec", "SOL_RPC_RATE")

	// Distribution
	v.BindEnv("distribution.recipients", "DISTRIBUTION_RECIPIENTS")
	v.BindEnv("distribution.daily_quota", "DISTRIBUTION_DAILY_QUOTA")
	v.BindEnv("distribution.redis_addr", "REDIS_ADDR")

	// Notices
	v.BindEnv("notices.schedule", "NOTICES_SCHEDULE")
	v.BindEnv("notices.interval_seconds", "NOTICES_INTERVAL")

	// App
	v.BindEnv("app.data_dir", "AIRDROP_DATA_DIR")
	v.BindEnv("app.metrics_addr", "METRICS_ADDR")
}

func setDefaults(v *viper.Viper) {
	// Chat
	v.SetDefault("chat.platform", "discord")
	v.SetDefault("chat.discord_token", "")
	v.SetDefault("chat.telegram_token", "")
	v.SetDefault("chat.admin_channel_id", "")
	v.SetDefault("chat.user_channel_id", "")
	v.SetDefault("chat.notice_channel_id", "")
	v.SetDefault("chat.admin_ids", []string{})
	v.SetDefault("chat.reviewer_mention", "@here")
	v.SetDefault("chat.session_ttl_seconds", 60)

	// OKX
	v.SetDefault("okx.base_url", "https://www.okx.com")
	v.SetDefault("okx.slippage_evm", 0.5)
	v.SetDefault("okx.slippage_sol", 5)
	v.SetDefault("okx.rate_per_sec", 2.0)

	// EVM
	v.SetDefault("evm.rpc_url", "")
	v.SetDefault("evm.swap_amount_wei", "250000000000000") // 0.00025 ETH
	v.SetDefault("evm.settlement_wait_seconds", 60)

	// Solana
	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.swap_amount_lamports", 2_500_000) // 0.0025 SOL
	v.SetDefault("solana.settlement_wait_seconds", 20)
	v.SetDefault("solana.rpc_rate_per_sec", 10)

	// Distribution
	v.SetDefault("distribution.recipients", 20)
	v.SetDefault("distribution.daily_quota", 3)
	v.SetDefault("distribution.redis_addr", "")

	// Settlement
	v.SetDefault("settlement.retries", 2)
	v.SetDefault("settlement.base_delay_seconds", 5)
	v.SetDefault("settlement.max_delay_seconds", 30)

	// Notices
	v.SetDefault("notices.list_url", "https://api.bithumb.com/v1/notices")
	v.SetDefault("notices.feed_base_url", "https://feed.bithumb.com")
	v.SetDefault("notices.page_size", 20)
	v.SetDefault("notices.schedule", "0 10 * * *")
	v.SetDefault("notices.interval_seconds", 3600)
	v.SetDefault("notices.timezone", "Asia/Seoul")
	v.SetDefault("notices.request_timeout", 30)

	// App
	v.SetDefault("app.data_dir", "data_out")
	v.SetDefault("app.metrics_addr", "")
	v.SetDefault("app.max_response_size", 10*1024*1024) // 10MB
}

// RegisterFlags declares the overridable keys on a command's flag set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("chat.platform", "discord", "Chat platform: discord or telegram (env: CHAT_PLATFORM)")
	fs.String("app.data_dir", "data_out", "Data directory for registry and announcement files (env: AIRDROP_DATA_DIR)")
	fs.String("app.metrics_addr", "", "Listen address for /metrics, empty disables (env: METRICS_ADDR)")
	fs.String("distribution.redis_addr", "", "Redis address for the shared quota store (env: REDIS_ADDR)")
	fs.Int("distribution.recipients", 20, "Number of recipients a bought amount is split between")
	fs.String("notices.schedule", "0 10 * * *", "Cron spec for notice polling, empty uses notices.interval_seconds")
}

func validateConfig(cfg *Config) error {
	switch cfg.Chat.Platform {
	case "discord", "telegram":
	default:
		return fmt.Errorf("chat.platform must be discord or telegram, got %q", cfg.Chat.Platform)
	}

	if cfg.Distribution.Recipients <= 0 {
		return fmt.Errorf("distribution.recipients must be positive")
	}
	if cfg.Distribution.DailyQuota <= 0 {
		return fmt.Errorf("distribution.daily_quota must be positive")
	}
	if cfg.Settlement.Retries < 0 {
		return fmt.Errorf("settlement.retries must not be negative")
	}
	if cfg.EVM.SettlementWait < 0 || cfg.Solana.SettlementWait < 0 {
		return fmt.Errorf("settlement wait must not be negative")
	}

	return nil
}

// RequireChat checks the credentials needed to run the bot against the selected platform.
func (c *Config) RequireChat() error {
	switch c.Chat.Platform {
	case "discord":
		if c.Chat.DiscordToken == "" {
			return fmt.Errorf("chat.discord_token is required (env: DISCORD_TOKEN)")
		}
	case "telegram":
		if c.Chat.TelegramToken == "" {
			return fmt.Errorf("chat.telegram_token is required (env: TELEGRAM_BOT_TOKEN)")
		}
	}
	if c.Chat.AdminChannelID == "" || c.Chat.UserChannelID == "" {
		return fmt.Errorf("chat.admin_channel_id and chat.user_channel_id are required")
	}
	return nil
}
