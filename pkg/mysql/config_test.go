package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "pw"
	assert.Equal(t, "root:pw@tcp(127.0.0.1:3306)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}

func TestNewLogger_Levels(t *testing.T) {
	for _, level := range []string{"info", "warn", "error", "silent", "unknown"} {
		assert.NotNil(t, newLogger(level), level)
	}
}
