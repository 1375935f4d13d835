package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DB_URL", "file:test.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LLM_TIMEOUT", "10s")
	t.Setenv("PATTERN_REBUILD_LIMIT", "not-a-number")

	cfg := LoadConfig()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 1000, cfg.Learning.RebuildLimit)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cfg := LoadConfig()
	cfg.Database.DSN = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidInput)

	cfg.Database.DSN = "postgres://x"
	cfg.Database.Driver = "mysql"
	assert.Equal(t, CodeConfig, KindOf(cfg.Validate()))
}
