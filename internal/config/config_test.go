package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("LOCK_TTL", "45")
	t.Setenv("HTTP_READ_TIMEOUT", "2s")
	t.Setenv("PRINT_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 45*time.Second, cfg.LockTTL)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3, cfg.PrintLimit)
	assert.Equal(t, 64, cfg.MaxHierarchyDepth)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "postgres without url", env: map[string]string{"STORE_DRIVER": "postgres", "DATABASE_URL": ""}, want: "DATABASE_URL"},
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "sqlite"}, want: "STORE_DRIVER"},
		{name: "print limit", env: map[string]string{"STORE_DRIVER": "memory", "PRINT_LIMIT": "0"}, want: "PRINT_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
