package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load("coop-registry")
	require.NoError(t, err)

	assert.Equal(t, "coop-registry", cfg.ServiceName)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "coop-registry", cfg.Metrics.Prefix)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, time.Hour, cfg.Storage.URLTTL)
}

func TestLoadParsesTypedValues(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "k1")
	t.Setenv("STORAGE_SIGNING_KEY", "")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("STORAGE_URL_TTL", "15m")
	t.Setenv("DB_LOG_LEVEL", "silent")

	cfg, err := Load("svc")
	require.NoError(t, err)

	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Storage.URLTTL)
	assert.Equal(t, logger.Silent, cfg.DB.LogLevel)
	// explicitly empty keeps the empty value
	assert.Equal(t, "", cfg.Storage.SigningKey)
}

func TestGetDSN(t *testing.T) {
	c := DBConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", c.GetDSN())
}
