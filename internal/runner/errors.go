package runner

import "errors"

var (
	// ErrConfiguration 配置无效，运行开始前终止
	ErrConfiguration = errors.New("配置错误")
	// ErrAuthentication Telegram 会话未授权或目标群组无法访问
	ErrAuthentication = errors.New("认证失败")
)

// ExitCode 致命错误对应的进程退出码
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfiguration):
		return 2
	case errors.Is(err, ErrAuthentication):
		return 3
	default:
		return 1
	}
}
