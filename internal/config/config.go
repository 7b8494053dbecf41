package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// MaxAttemptsLimit 单个 chunk 正常请求次数的上限
const MaxAttemptsLimit = 3

type Sock5Proxy struct {
	Host   string `yaml:"Host"`
	Port   int32  `yaml:"Port"`
	Enable bool   `yaml:"Enable"`
}

type TelegramApp struct {
	ApiId                 int32  `yaml:"ApiId"`
	ApiHash               string `yaml:"ApiHash"`
	DataDir               string `yaml:"DataDir"`               // tdlib 会话与数据库目录
	TargetGroup           string `yaml:"TargetGroup"`           // 数字ID、@username 或 t.me 链接
	RequestTimeoutSeconds int    `yaml:"RequestTimeoutSeconds"` // 单次 Telegram 请求超时
}

type LLM struct {
	Provider          string   `yaml:"Provider"` // "gemini" / "openai"
	BaseURL           string   `yaml:"BaseURL"`  // 兼容 OpenAI API 的端点，gemini 时可留空
	APIKeys           []string `yaml:"APIKeys"`  // 多个 key 时在配额耗尽后轮换
	Model             string   `yaml:"Model"`
	Temperature       float32  `yaml:"Temperature"`
	MaxOutputTokens   int      `yaml:"MaxOutputTokens"`
	TimeoutSeconds    int      `yaml:"TimeoutSeconds"`
	RequestsPerMinute int      `yaml:"RequestsPerMinute"` // 0 表示不限速
}

type Digest struct {
	TestMode              bool     `yaml:"TestMode"`              // true 时发送到收藏夹，否则回复到话题
	TopicFilter           string   `yaml:"TopicFilter"`           // 只处理标题包含该子串的话题
	FilterCaseInsensitive bool     `yaml:"FilterCaseInsensitive"` // TopicFilter 是否忽略大小写
	ExcludeTopics         []string `yaml:"ExcludeTopics"`         // 未设置 TopicFilter 时排除的话题名
	Timezone              string   `yaml:"Timezone"`
	IntervalHours         int      `yaml:"IntervalHours"`    // 基础回看时长
	Schedule              string   `yaml:"Schedule"`         // cron 表达式，按上一次计划触发时间推算回看时长
	MaxLookbackHours      int      `yaml:"MaxLookbackHours"` // 回看时长上限
	LastRun               string   `yaml:"LastRun"`          // 外部提供的上次运行时间（RFC3339 或 unix 秒）
	TopicLimit            int      `yaml:"TopicLimit"`
	MaxMessagesPerTopic   int      `yaml:"MaxMessagesPerTopic"`
	ChunkSize             int      `yaml:"ChunkSize"`
	FallbackMessages      int      `yaml:"FallbackMessages"`
	MaxAttempts           int      `yaml:"MaxAttempts"`   // 单个 chunk 的最大请求次数（不含回退）
	RetryInterval         int      `yaml:"RetryInterval"` // 首次重试等待（秒），之后指数增长
	VIPName               string   `yaml:"VIPName"`
	OutputLanguage        string   `yaml:"OutputLanguage"`
}

type Store struct {
	Enable bool   `yaml:"Enable"`
	Path   string `yaml:"Path"`
}

type Log struct {
	Dir   string `yaml:"Dir"`
	Level string `yaml:"Level"`
}

type Config struct {
	Sock5Proxy  Sock5Proxy  `yaml:"Sock5Proxy"`
	TelegramApp TelegramApp `yaml:"TelegramApp"`
	LLM         LLM         `yaml:"LLM"`
	Digest      Digest      `yaml:"Digest"`
	Store       Store       `yaml:"Store"`
	Log         Log         `yaml:"Log"`
}

// Default 返回填充了默认值的配置
func Default() *Config {
	return &Config{
		TelegramApp: TelegramApp{
			DataDir:               "data",
			RequestTimeoutSeconds: 30,
		},
		LLM: LLM{
			Provider:        ProviderGemini,
			Model:           "gemini-flash-latest",
			Temperature:     0.3,
			MaxOutputTokens: 4000,
			TimeoutSeconds:  120,
		},
		Digest: Digest{
			TestMode:            true,
			Timezone:            "Asia/Hong_Kong",
			IntervalHours:       8,
			MaxLookbackHours:    24,
			TopicLimit:          50,
			MaxMessagesPerTopic: 5000,
			ChunkSize:           1000,
			FallbackMessages:    500,
			MaxAttempts:         3,
			RetryInterval:       5,
			VIPName:             "笑苍生",
			OutputLanguage:      "简体中文",
		},
		Store: Store{
			Enable: true,
			Path:   "data/digest.db",
		},
		Log: Log{
			Dir:   "logs",
			Level: "debug",
		},
	}
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Load 依次应用默认值、YAML 配置文件（可选）、.env 文件与环境变量，最后校验
func Load(filename string) (*Config, error) {
	c := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("解析配置文件 %s 失败: %w", filename, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 允许只使用环境变量运行
		default:
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", filename, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 文件失败: %w", err)
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证 TelegramApp
	if c.TelegramApp.ApiId == 0 {
		return fmt.Errorf("TelegramApp.ApiId 不能为空")
	}
	if c.TelegramApp.ApiHash == "" {
		return fmt.Errorf("TelegramApp.ApiHash 不能为空")
	}
	if strings.TrimSpace(c.TelegramApp.TargetGroup) == "" {
		return fmt.Errorf("TelegramApp.TargetGroup 不能为空")
	}
	if _, err := ParseTargetGroup(c.TelegramApp.TargetGroup); err != nil {
		return err
	}
	if c.TelegramApp.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("TelegramApp.RequestTimeoutSeconds 必须大于 0")
	}

	// 验证 LLM
	if c.LLM.Provider != ProviderGemini && c.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("LLM.Provider 必须是 'gemini' 或 'openai'")
	}
	if len(c.LLM.APIKeys) == 0 {
		return fmt.Errorf("LLM.APIKeys 不能为空")
	}
	for i, key := range c.LLM.APIKeys {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("LLM.APIKeys[%d] 不能为空", i)
		}
	}
	if c.LLM.Provider == ProviderOpenAI && c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM.BaseURL 不能为空（当 Provider 为 'openai' 时）")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM.Model 不能为空")
	}
	if c.LLM.MaxOutputTokens <= 0 {
		return fmt.Errorf("LLM.MaxOutputTokens 必须大于 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("LLM.TimeoutSeconds 必须大于 0")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("LLM.RequestsPerMinute 必须 >= 0")
	}

	// 验证 Digest
	if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
		return fmt.Errorf("Digest.Timezone 无效: %w", err)
	}
	if c.Digest.IntervalHours <= 0 {
		return fmt.Errorf("Digest.IntervalHours 必须大于 0")
	}
	if c.Digest.MaxLookbackHours <= 0 {
		return fmt.Errorf("Digest.MaxLookbackHours 必须大于 0")
	}
	if c.Digest.Schedule != "" {
		if _, err := cron.ParseStandard(c.Digest.Schedule); err != nil {
			return fmt.Errorf("Digest.Schedule 无效: %w", err)
		}
	}
	if c.Digest.LastRun != "" {
		if _, err := ParseTimestamp(c.Digest.LastRun); err != nil {
			return fmt.Errorf("Digest.LastRun 无效: %w", err)
		}
	}
	if c.Digest.TopicLimit <= 0 {
		return fmt.Errorf("Digest.TopicLimit 必须大于 0")
	}
	if c.Digest.MaxMessagesPerTopic <= 0 {
		return fmt.Errorf("Digest.MaxMessagesPerTopic 必须大于 0")
	}
	if c.Digest.ChunkSize <= 0 {
		return fmt.Errorf("Digest.ChunkSize 必须大于 0")
	}
	if c.Digest.FallbackMessages <= 0 {
		return fmt.Errorf("Digest.FallbackMessages 必须大于 0")
	}
	if c.Digest.MaxAttempts <= 0 || c.Digest.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("Digest.MaxAttempts 必须在 1 到 %d 之间", MaxAttemptsLimit)
	}
	if c.Digest.RetryInterval < 0 {
		return fmt.Errorf("Digest.RetryInterval 必须 >= 0")
	}
	if c.Digest.OutputLanguage == "" {
		return fmt.Errorf("Digest.OutputLanguage 不能为空")
	}

	// 验证 Store
	if c.Store.Enable && c.Store.Path == "" {
		return fmt.Errorf("Store.Path 不能为空（当 Store.Enable 为 true 时）")
	}

	return nil
}

// Location 返回配置的时区，Validate 之后调用不会失败
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseTimestamp 解析 RFC3339 时间或 unix 秒
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// TargetGroup 解析后的目标群组：ChatID 或 Username 二选一
type TargetGroup struct {
	ChatID   int64
	Username string
}

// ParseTargetGroup 支持数字ID、@username 与 t.me 链接。
// 负数ID缺少 -100 前缀时自动补全为超级群组ID。
func ParseTargetGroup(raw string) (TargetGroup, error) {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return TargetGroup{}, fmt.Errorf("TargetGroup 不能为空")
	}

	digits := strings.TrimPrefix(stripped, "-")
	if _, err := strconv.ParseUint(digits, 10, 64); err == nil {
		if strings.HasPrefix(stripped, "-") && !strings.HasPrefix(stripped, "-100") {
			stripped = "-100" + digits
		}
		id, err := strconv.ParseInt(stripped, 10, 64)
		if err != nil {
			return TargetGroup{}, fmt.Errorf("TargetGroup 无效: %w", err)
		}
		return TargetGroup{ChatID: id}, nil
	}

	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/", "@"} {
		stripped = strings.TrimPrefix(stripped, prefix)
	}
	stripped = strings.TrimSuffix(stripped, "/")
	if stripped == "" || strings.ContainsAny(stripped, "/ ") {
		return TargetGroup{}, fmt.Errorf("TargetGroup 无效: %q", raw)
	}
	return TargetGroup{Username: stripped}, nil
}
