package redis_db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
		tls      bool
		wantErr  bool
	}{
		{name: "docker style", url: "redis:6379", addr: "redis:6379"},
		{name: "url with password", url: "redis://:password123@localhost:6379", addr: "localhost:6379", password: "password123"},
		{name: "password without colon", url: "redis://password123@localhost:6379", addr: "localhost:6379", password: "password123"},
		{name: "database index", url: "redis://localhost:6379/3", addr: "localhost:6379", db: 3},
		{name: "tls scheme", url: "rediss://:secret@cache.example.com:6380", addr: "cache.example.com:6380", password: "secret", tls: true},
		{name: "empty", url: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRedisURL(tt.url, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, got.Addr)
			assert.Equal(t, tt.password, got.Password)
			assert.Equal(t, tt.db, got.DB)
			assert.Equal(t, tt.tls, got.TLSConfig != nil)
		})
	}
}

func TestParseRedisURL_SkipTLSVerify(t *testing.T) {
	got, err := ParseRedisURL("rediss://:secret@cache.example.com:6380", true)
	require.NoError(t, err)
	require.NotNil(t, got.TLSConfig)
	assert.True(t, got.TLSConfig.InsecureSkipVerify)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(mr.Addr(), false)
	require.NoError(t, err)
	assert.NotNil(t, client.Client())
	assert.Equal(t, []string{mr.Addr()}, client.addresses)

	_, err = NewRedisClient(" , ", false)
	assert.EqualError(t, err, "redis addresses list cannot be empty")

	_, err = NewRedisClient("127.0.0.1:1", false)
	assert.Error(t, err)
}

func TestAsynqConnOpt(t *testing.T) {
	opt, err := AsynqConnOpt("redis://:pw@localhost:6379/2,localhost:6380", false)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)
	assert.Equal(t, "pw", opt.Password)
	assert.Equal(t, 2, opt.DB)
}
