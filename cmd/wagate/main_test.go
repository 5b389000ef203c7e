package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wagate/internal/config"
)

func TestLocalAddr(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"0.0.0.0", "127.0.0.1:8000"},
		{"", "127.0.0.1:8000"},
		{"::", "127.0.0.1:8000"},
		{"10.0.0.5", "10.0.0.5:8000"},
		{"::1", "[::1]:8000"},
	}
	for _, tt := range tests {
		if got := localAddr(config.ServerConfig{Host: tt.host, Port: 8000}); got != tt.want {
			t.Errorf("localAddr(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestHashPassword(t *testing.T) {
	got := hashPassword("password")
	want := "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if got != want {
		t.Fatalf("hashPassword = %q, want %q", got, want)
	}
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wagate.log")
	log, closer := newLogger(config.GeneralConfig{LogLevel: "warn", LogFile: path})

	log.Info("dropped below level")
	log.Warn("kept", "k", "v")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "dropped below level") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "k=v") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	log, closer := newLogger(config.GeneralConfig{LogLevel: "loud"})
	defer closer.Close()
	if log.Enabled(t.Context(), slog.LevelDebug) {
		t.Fatal("debug should be disabled at the fallback level")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_InvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{bad"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestRenderService(t *testing.T) {
	unit := renderService(systemdTemplate, map[string]string{
		"EXEC":   "/usr/local/bin/wagate",
		"CONFIG": "/etc/wagate.json",
	})
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/wagate serve --config /etc/wagate.json") {
		t.Fatalf("unexpected unit:\n%s", unit)
	}
	if strings.Contains(unit, "{{") {
		t.Fatalf("unrendered placeholder:\n%s", unit)
	}
}

func TestWritePaths_FlatSortedAndSanitized(t *testing.T) {
	cfg := config.Defaults()
	cfg.WhatsApp.AccessToken = "EAAG1234567890abcdefghijklmnop"

	var sb strings.Builder
	writePaths(&sb, config.ListPaths(config.Sanitize(cfg)))
	out := sb.String()

	for _, want := range []string{
		`phone.countryCode = "62"`,
		"server.port = 8000",
		"commands.rejectCalls = true",
		`whatsapp.accessToken = "EAAG****mnop"`,
		`whatsapp.appSecret = ""`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "1234567890") {
		t.Error("access token leaked")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i-1] > lines[i] {
			t.Fatalf("lines not sorted: %q before %q", lines[i-1], lines[i])
		}
	}
}
