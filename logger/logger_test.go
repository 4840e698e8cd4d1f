package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestZapLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ErrorLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel("nope").zapLevel())
}

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	// 未初始化时所有输出函数都是空操作
	assert.NotPanics(t, func() {
		Debug("debug", String("k", "v"))
		Info("info", Int("n", 1))
		Warn("warn", Bool("b", true))
		Error("error", Float64("f", 1.5))
		Sync()
	})
}
