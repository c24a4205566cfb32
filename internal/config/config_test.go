package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir changes the working directory to dir for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func validConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Engine: EngineConfig{
			BaseURL:      "http://localhost:8188",
			WebSocketURL: "ws://localhost:8188/ws",
			Timeout:      30 * time.Second,
			PingInterval: 10 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		Proxy: ProxyConfig{ImagePath: "/proxy/image"},
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "http://localhost:8188", cfg.Engine.BaseURL)
	require.Equal(t, "ws://localhost:8188/ws", cfg.Engine.WebSocketURL)
	require.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	require.Equal(t, "/proxy/image", cfg.Proxy.ImagePath)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("COMFY_BRIDGE_ENGINE_BASE_URL", "http://engine:9000")
	t.Setenv("COMFY_BRIDGE_SERVER_MAX_CONCURRENT_JOBS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://engine:9000", cfg.Engine.BaseURL)
	require.Equal(t, 4, cfg.Server.MaxConcurrentJobs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.Server.Addr = "" }, wantErr: true},
		{name: "ws scheme for base url", mutate: func(c *Config) { c.Engine.BaseURL = "ws://x" }, wantErr: true},
		{name: "http scheme for websocket url", mutate: func(c *Config) { c.Engine.WebSocketURL = "http://x/ws" }, wantErr: true},
		{name: "read timeout below ping", mutate: func(c *Config) { c.Engine.ReadTimeout = time.Second }, wantErr: true},
		{name: "relative proxy path", mutate: func(c *Config) { c.Proxy.ImagePath = "proxy" }, wantErr: true},
		{name: "negative job cap", mutate: func(c *Config) { c.Server.MaxConcurrentJobs = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
