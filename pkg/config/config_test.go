package config

import (
	"errors"
	"os"
	fp "path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tlspipe/udptlspipe/internal/model"
)

func TestNewConfig(t *testing.T) {
	t.Run("default constructor does not fail", func(t *testing.T) {
		c := NewConfig()
		if c.logger == nil {
			t.Errorf("logger should not be nil")
		}
		if c.pipeOptions == nil || !c.pipeOptions.Enabled {
			t.Errorf("pipe options should default to enabled")
		}
	})
	t.Run("WithLogger sets the logger", func(t *testing.T) {
		testLogger := model.NewTestLogger()
		c := NewConfig(WithLogger(testLogger))
		if c.Logger() != model.Logger(testLogger) {
			t.Errorf("expected logger to be set to the configured one")
		}
	})
	t.Run("WithDestination and WithListenPort set pipe options", func(t *testing.T) {
		c := NewConfig(WithDestination("server.example.com:443"), WithListenPort(5353))
		if c.PipeOptions().Destination != "server.example.com:443" {
			t.Errorf("destination not set")
		}
		if c.PipeOptions().ListenPort != 5353 {
			t.Errorf("listen port not set")
		}
	})
	t.Run("WithConfigFile sets PipeOptions after parsing the configured file", func(t *testing.T) {
		configFile := writeValidConfigFile(t, t.TempDir())
		c := NewConfig(WithConfigFile(configFile))
		want := &PipeOptions{
			Enabled:            true,
			Destination:        "server.example.com:443",
			Password:           "hunter2",
			TLSServerName:      "cdn.example.com",
			Secure:             true,
			FingerprintProfile: "chrome",
		}
		if diff := cmp.Diff(c.PipeOptions(), want); diff != "" {
			t.Error(diff)
		}
	})
}

func TestRemote(t *testing.T) {
	t.Run("valid destination", func(t *testing.T) {
		c := NewConfig(WithDestination("server.example.com:443"))
		remote, err := c.Remote()
		if err != nil {
			t.Fatal(err)
		}
		want := &Remote{
			Host:     "server.example.com",
			Port:     "443",
			Endpoint: "server.example.com:443",
		}
		if diff := cmp.Diff(remote, want); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("missing port is an error", func(t *testing.T) {
		c := NewConfig(WithDestination("server.example.com"))
		if _, err := c.Remote(); err == nil {
			t.Errorf("expected an error")
		}
	})
	t.Run("non-numeric port is an error", func(t *testing.T) {
		c := NewConfig(WithDestination("server.example.com:https"))
		if _, err := c.Remote(); err == nil {
			t.Errorf("expected an error")
		}
	})
}

func TestParseOptionsFromLines(t *testing.T) {
	t.Run("unknown keys are skipped", func(t *testing.T) {
		opts, err := parseOptionsFromLines([]string{
			"destination = 1.2.3.4:443",
			"mtu = 1420",
			"privateKey = irrelevant",
		})
		if err != nil {
			t.Fatal(err)
		}
		if opts.Destination != "1.2.3.4:443" {
			t.Errorf("destination not parsed")
		}
	})
	t.Run("bad boolean is an error", func(t *testing.T) {
		_, err := parseOptionsFromLines([]string{"secure = maybe"})
		if !errors.Is(err, ErrBadConfig) {
			t.Errorf("expected ErrBadConfig, got %v", err)
		}
	})
	t.Run("bad listen port is an error", func(t *testing.T) {
		_, err := parseOptionsFromLines([]string{"listenPort = 70000"})
		if !errors.Is(err, ErrBadConfig) {
			t.Errorf("expected ErrBadConfig, got %v", err)
		}
	})
	t.Run("comments and blank lines are ignored", func(t *testing.T) {
		opts, err := parseOptionsFromLines([]string{"", "# a comment", "password = x"})
		if err != nil {
			t.Fatal(err)
		}
		if opts.Password != "x" {
			t.Errorf("password not parsed")
		}
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	opts := &PipeOptions{
		Enabled:            true,
		Destination:        "server.example.com:443",
		Password:           "hunter2",
		Secure:             true,
		ProxyURL:           "socks5://127.0.0.1:1080",
		FingerprintProfile: "randomized",
		ListenPort:         5353,
	}
	parsed, err := parseOptionsFromLines(strings.Split(opts.Marshal(), "\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(parsed, opts); diff != "" {
		t.Error(diff)
	}
}

var sampleConfigFile = `
enabled = true
destination = server.example.com:443
password = hunter2
tlsServerName = cdn.example.com
secure = true
fingerprintProfile = chrome
`

func writeValidConfigFile(t *testing.T, dir string) string {
	cfg := fp.Join(dir, "config")
	if err := os.WriteFile(cfg, []byte(sampleConfigFile), 0600); err != nil {
		t.Fatal(err)
	}
	return cfg
}
