package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Logger
	fileLogger *logrus.Logger
}

var (
	defaultLogger *Logger
	setupOnce     sync.Once
)

func init() {
	// 控制台日志配置
	consoleLogger := logrus.New()
	consoleLogger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})
	consoleLogger.SetOutput(os.Stdout)
	consoleLogger.SetLevel(logrus.DebugLevel)

	// 文件日志在 Setup 之前丢弃输出，避免单元测试创建日志目录
	fileLogger := logrus.New()
	fileLogger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint:     false,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	fileLogger.SetOutput(io.Discard)
	fileLogger.SetLevel(logrus.InfoLevel)

	defaultLogger = &Logger{
		Logger:     consoleLogger,
		fileLogger: fileLogger,
	}
}

// Setup 启用文件日志并设置控制台日志级别，只生效一次
func Setup(logDir, level string) {
	setupOnce.Do(func() {
		if level != "" {
			if lvl, err := logrus.ParseLevel(level); err == nil {
				defaultLogger.Logger.SetLevel(lvl)
			} else {
				defaultLogger.Logger.Warnf("无法识别的日志级别 %q, 使用 debug", level)
			}
		}

		if logDir == "" {
			return
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			defaultLogger.Logger.Errorf("无法创建日志目录: %v", err)
			return
		}

		// 使用lumberjack进行日志轮转
		defaultLogger.fileLogger.SetOutput(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, "topic-digest.log"),
			MaxSize:    10,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	})
}

func Infof(format string, args ...any) {
	defaultLogger.Logger.Infof(format, args...)
	defaultLogger.fileLogger.Infof(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Logger.Warnf(format, args...)
	defaultLogger.fileLogger.Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	defaultLogger.Logger.Errorf(format, args...)
	defaultLogger.fileLogger.Errorf(format, args...)
}

// Fatalf 先写文件日志再退出，控制台的 Fatalf 会直接调用 os.Exit
func Fatalf(format string, args ...any) {
	defaultLogger.fileLogger.Errorf(format, args...)
	defaultLogger.Logger.Fatalf(format, args...)
}

func Debugf(format string, args ...any) {
	defaultLogger.Logger.Debugf(format, args...)
	defaultLogger.fileLogger.Debugf(format, args...)
}
