package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrQuota 当前 key 配额耗尽或被限流，应轮换 key
	ErrQuota = errors.New("llm quota exhausted")
	// ErrBlocked 模型因内容策略拒绝回答
	ErrBlocked = errors.New("llm content blocked")
	// ErrTransient 可重试的错误（服务端错误、超时、空回复等）。
	// 调用方应把未归类的错误也当作 ErrTransient 处理
	ErrTransient = errors.New("llm transient error")
)

// quotaMarkers 出现在错误信息中即视为配额错误
var quotaMarkers = []string{
	"resource_exhausted",
	"resource exhausted",
	"quota",
	"rate limit",
	"rate_limit",
	"insufficient_quota",
	"too many requests",
}

// wrapError 按 HTTP 状态码和错误信息归类为 ErrQuota / ErrTransient
func wrapError(provider string, status int, err error) error {
	if status == http.StatusTooManyRequests || containsAny(err.Error(), quotaMarkers) {
		return fmt.Errorf("%w: %s: %v", ErrQuota, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, provider, err)
}

// blockedError 构造内容拦截错误
func blockedError(provider, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrBlocked, provider, reason)
}

// transientError 构造可重试错误
func transientError(provider, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrTransient, provider, reason)
}

func containsAny(s string, markers []string) bool {
	s = strings.ToLower(s)
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
