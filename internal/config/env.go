package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc 与 os.LookupEnv 签名一致，便于测试注入
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

// envBindings 列出所有可识别的环境变量及其作用
var envBindings = []envBinding{
	{"TG_API_ID", func(c *Config, v string) error {
		id, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return err
		}
		c.TelegramApp.ApiId = int32(id)
		return nil
	}},
	{"TG_API_HASH", setString(func(c *Config) *string { return &c.TelegramApp.ApiHash })},
	{"TG_DATA_DIR", setString(func(c *Config) *string { return &c.TelegramApp.DataDir })},
	{"TARGET_GROUP", setString(func(c *Config) *string { return &c.TelegramApp.TargetGroup })},
	{"SOCKS5_PROXY", func(c *Config, v string) error {
		host, port, ok := strings.Cut(v, ":")
		if !ok {
			return fmt.Errorf("格式应为 host:port")
		}
		p, err := strconv.ParseInt(port, 10, 32)
		if err != nil {
			return err
		}
		c.Sock5Proxy = Sock5Proxy{Host: host, Port: int32(p), Enable: true}
		return nil
	}},
	{"LLM_PROVIDER", setString(func(c *Config) *string { return &c.LLM.Provider })},
	{"LLM_BASE_URL", setString(func(c *Config) *string { return &c.LLM.BaseURL })},
	{"LLM_MODEL", setString(func(c *Config) *string { return &c.LLM.Model })},
	{"GEMINI_API_KEY", func(c *Config, v string) error {
		c.LLM.APIKeys = []string{v}
		return nil
	}},
	{"LLM_API_KEY", func(c *Config, v string) error {
		c.LLM.APIKeys = []string{v}
		return nil
	}},
	// 多 key 变量放在单 key 之后，两者同时设置时以 key 池为准
	{"GEMINI_API_KEYS", setList(func(c *Config) *[]string { return &c.LLM.APIKeys })},
	{"LLM_API_KEYS", setList(func(c *Config) *[]string { return &c.LLM.APIKeys })},
	{"LLM_REQUESTS_PER_MINUTE", setInt(func(c *Config) *int { return &c.LLM.RequestsPerMinute })},
	{"LLM_TIMEOUT_SECONDS", setInt(func(c *Config) *int { return &c.LLM.TimeoutSeconds })},
	{"TEST_MODE", func(c *Config, v string) error {
		c.Digest.TestMode = ParseBool(v, true)
		return nil
	}},
	{"TOPIC_FILTER", setString(func(c *Config) *string { return &c.Digest.TopicFilter })},
	{"TOPIC_FILTER_CASE_INSENSITIVE", func(c *Config, v string) error {
		c.Digest.FilterCaseInsensitive = ParseBool(v, false)
		return nil
	}},
	{"EXCLUDE_TOPICS", setList(func(c *Config) *[]string { return &c.Digest.ExcludeTopics })},
	{"TIMEZONE", setString(func(c *Config) *string { return &c.Digest.Timezone })},
	{"INTERVAL_HOURS", setInt(func(c *Config) *int { return &c.Digest.IntervalHours })},
	{"SCHEDULE", setString(func(c *Config) *string { return &c.Digest.Schedule })},
	{"MAX_LOOKBACK_HOURS", setInt(func(c *Config) *int { return &c.Digest.MaxLookbackHours })},
	{"LAST_RUN", setString(func(c *Config) *string { return &c.Digest.LastRun })},
	{"TOPIC_LIMIT", setInt(func(c *Config) *int { return &c.Digest.TopicLimit })},
	{"MAX_MESSAGES_PER_TOPIC", setInt(func(c *Config) *int { return &c.Digest.MaxMessagesPerTopic })},
	{"CHUNK_SIZE", setInt(func(c *Config) *int { return &c.Digest.ChunkSize })},
	{"FALLBACK_MESSAGES", setInt(func(c *Config) *int { return &c.Digest.FallbackMessages })},
	{"MAX_ATTEMPTS", setInt(func(c *Config) *int { return &c.Digest.MaxAttempts })},
	{"RETRY_INTERVAL", setInt(func(c *Config) *int { return &c.Digest.RetryInterval })},
	{"VIP_NAME", setString(func(c *Config) *string { return &c.Digest.VIPName })},
	{"OUTPUT_LANGUAGE", setString(func(c *Config) *string { return &c.Digest.OutputLanguage })},
	{"STORE_ENABLE", func(c *Config, v string) error {
		c.Store.Enable = ParseBool(v, true)
		return nil
	}},
	{"STORE_PATH", setString(func(c *Config) *string { return &c.Store.Path })},
	{"LOG_DIR", setString(func(c *Config) *string { return &c.Log.Dir })},
	{"LOG_LEVEL", setString(func(c *Config) *string { return &c.Log.Level })},
}

// ApplyEnv 用环境变量覆盖配置，空值视为未设置
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	for _, b := range envBindings {
		value, ok := lookup(b.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := b.apply(c, value); err != nil {
			return fmt.Errorf("环境变量 %s 无效: %w", b.name, err)
		}
	}
	return nil
}

// ParseBool 宽松解析布尔值，无法识别时返回默认值
func ParseBool(value string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func setString(field func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func setInt(field func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

// setList 按逗号拆分，忽略空项
func setList(field func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field(c) = items
		return nil
	}
}
