package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantAddr string
		wantPass string
		wantDB   int
		wantTLS  bool
	}{
		{name: "host only", url: "redis://cache", wantAddr: "cache:6379"},
		{name: "port and db", url: "redis://localhost:6380/2", wantAddr: "localhost:6380", wantDB: 2},
		{name: "password", url: "redis://:secret@10.0.0.1:6379/0", wantAddr: "10.0.0.1:6379", wantPass: "secret"},
		{name: "tls", url: "rediss://user:pw@redis.example.com:6390", wantAddr: "redis.example.com:6390", wantPass: "pw", wantTLS: true},
		{name: "ipv6", url: "redis://[::1]:6379", wantAddr: "[::1]:6379"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(tt.url)
			require.NoError(t, err)

			assert.Equal(t, tt.wantAddr, cfg.GetRedisAddr())
			assert.Equal(t, tt.wantPass, cfg.Password)
			assert.Equal(t, tt.wantDB, cfg.DB)
			assert.Equal(t, tt.wantTLS, cfg.UseTLS)
			assert.Equal(t, DefaultQueuePriorities, cfg.QueuePriorities)

			opt := cfg.ClientOpt()
			assert.Equal(t, tt.wantAddr, opt.Addr)
			assert.Equal(t, tt.wantTLS, opt.TLSConfig != nil)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{
		"http://localhost:6379",
		"redis://localhost:notaport",
		"redis://localhost:70000",
		"redis://localhost:6379/db",
		"redis://localhost:6379/16",
		"://",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultsAreIndependent(t *testing.T) {
	a := Default()
	a.QueuePriorities[QueueLow] = 100

	b := Default()
	assert.Equal(t, 1, b.QueuePriorities[QueueLow])
	assert.Equal(t, time.Minute, b.RetryInterval)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Workers = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.RetryInterval = time.Millisecond
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
