package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=verbose")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_AuthRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Auth.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for auth without credentials")
	}

	cfg.Server.Auth.Username = "admin"
	cfg.Server.Auth.PasswordHash = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"
	if err := Validate(cfg); err != nil {
		t.Fatalf("auth with credentials should be valid: %v", err)
	}
}

func TestValidate_CountryCode(t *testing.T) {
	for _, tc := range []struct {
		code string
		ok   bool
	}{
		{"62", true},
		{"1", true},
		{"", false},
		{"+62", false},
	} {
		cfg := Defaults()
		cfg.Phone.CountryCode = tc.code
		err := Validate(cfg)
		if (err == nil) != tc.ok {
			t.Errorf("countryCode %q: ok=%v, err=%v", tc.code, tc.ok, err)
		}
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Media.MaxBytes = 0
	cfg.Media.FetchTimeout = 0
	cfg.Session.ReconnectBackoff = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"media.maxBytes", "media.fetchTimeout", "session.reconnectBackoff"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_MetricsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = "metrics"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for relative metrics endpoint")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	t.Setenv("PORT", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.WhatsApp.PhoneNumberID = "1055"
	original.Phone.CountryCode = "44"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.WhatsApp.PhoneNumberID != "1055" {
		t.Fatalf("expected '1055', got %q", loaded.WhatsApp.PhoneNumberID)
	}
	if loaded.Phone.CountryCode != "44" {
		t.Fatalf("expected '44', got %q", loaded.Phone.CountryCode)
	}
}

func TestSave_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := Save(path, Defaults()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9001}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Fatalf("expected port 9001, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("default host lost: %q", cfg.Server.Host)
	}
	if !cfg.Commands.RejectCalls {
		t.Fatal("default rejectCalls lost")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"media": {
			"maxBytes": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for maxBytes=0")
	}
}

func TestLoad_PortEnvOverride(t *testing.T) {
	t.Setenv("PORT", "3000")
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"port": 9001}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Fatalf("PORT should override server.port, got %d", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:3000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr())
	}
}

func TestFinalize_InvalidPortEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	if err := Finalize(Defaults()); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}
}

func TestFinalize_ExpandsPaths(t *testing.T) {
	t.Setenv("PORT", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := Defaults()
	if err := Finalize(cfg); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if cfg.WhatsApp.DBPath != filepath.Join(home, ".wagate", "wagate.db") {
		t.Fatalf("dbPath not expanded: %q", cfg.WhatsApp.DBPath)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "phone.countryCode")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if val != "62" {
		t.Fatalf("expected '62', got %v", val)
	}

	val, err = GetByPath(cfg, "commands.rejectCalls")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if val != true {
		t.Fatalf("expected true, got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	if _, err := GetByPath(cfg, "server.nonexistent"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if _, err := GetByPath(cfg, "server.port.deeper"); err == nil {
		t.Fatal("expected error traversing into a number")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "whatsapp.phoneNumberId", "1055"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.WhatsApp.PhoneNumberID != "1055" {
		t.Fatalf("expected '1055', got %q", cfg.WhatsApp.PhoneNumberID)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "commands.rejectCalls", "false"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Commands.RejectCalls {
		t.Fatal("expected rejectCalls=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "8443"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Server.Port != 8443 {
		t.Fatalf("expected 8443, got %d", cfg.Server.Port)
	}
}

func TestSetByPath_DigitStringsStayStrings(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "phone.countryCode", "55"); err != nil {
		t.Fatalf("SetByPath countryCode: %v", err)
	}
	if cfg.Phone.CountryCode != "55" {
		t.Fatalf("expected countryCode '55', got %q", cfg.Phone.CountryCode)
	}
	if err := SetByPath(cfg, "server.auth.username", "2024"); err != nil {
		t.Fatalf("SetByPath username: %v", err)
	}
	if cfg.Server.Auth.Username != "2024" {
		t.Fatalf("expected username '2024', got %q", cfg.Server.Auth.Username)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("config should stay valid: %v", err)
	}
}

func TestSetByPath_FloatField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "whatsapp.sendRatePerMinute", "2.5"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.WhatsApp.SendRatePerMinute != 2.5 {
		t.Fatalf("expected 2.5, got %v", cfg.WhatsApp.SendRatePerMinute)
	}
	if err := SetByPath(cfg, "whatsapp.sendRatePerMinute", "40"); err != nil {
		t.Fatalf("SetByPath integer literal: %v", err)
	}
	if cfg.WhatsApp.SendRatePerMinute != 40 {
		t.Fatalf("expected 40, got %v", cfg.WhatsApp.SendRatePerMinute)
	}
}

func TestSetByPath_TypeMismatch(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "not-a-number"); err == nil {
		t.Fatal("expected error assigning a string to server.port")
	}
	if err := SetByPath(cfg, "commands.enabled", "maybe"); err == nil {
		t.Fatal("expected error assigning a non-bool to commands.enabled")
	}
	if cfg.Server.Port != 8000 || !cfg.Commands.Enabled {
		t.Fatal("failed sets must leave the config untouched")
	}
}

func TestSetByPath_RejectsSectionsAndUnknownKeys(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.auth", "x"); err == nil || !strings.Contains(err.Error(), "section") {
		t.Fatalf("expected section error, got %v", err)
	}
	if err := SetByPath(cfg, "server.bogus", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if err := SetByPath(cfg, "", "1"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.AccessToken = "EAAG1234567890abcdefghijklmnop"
	cfg.WhatsApp.AppSecret = "whatsapp-secret-12345678"
	cfg.Server.Auth.PasswordHash = "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"

	sanitized := Sanitize(cfg)

	if sanitized.WhatsApp.AccessToken != "EAAG****mnop" {
		t.Fatalf("access token should be masked, got %q", sanitized.WhatsApp.AccessToken)
	}
	if sanitized.WhatsApp.AppSecret == cfg.WhatsApp.AppSecret {
		t.Fatal("app secret should be masked")
	}
	if sanitized.Server.Auth.PasswordHash != "***" {
		t.Fatalf("password hash should be '***', got %q", sanitized.Server.Auth.PasswordHash)
	}
	// Verify original is untouched
	if cfg.WhatsApp.AccessToken != "EAAG1234567890abcdefghijklmnop" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.WhatsApp.VerifyToken = "short"
	sanitized := Sanitize(cfg)
	if sanitized.WhatsApp.VerifyToken != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.WhatsApp.VerifyToken)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.logLevel", "server.port", "server.auth.enabled", "phone.countryCode", "metrics.endpoint"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
	// Empty optional fields are still settable and must be listed.
	if v, ok := paths["whatsapp.accessToken"]; !ok || v != "" {
		t.Errorf("whatsapp.accessToken: got %v, present=%v", v, ok)
	}
	if _, ok := paths["server.auth"]; ok {
		t.Error("sections must not be listed as leaves")
	}
	if paths["server.port"] != 8000 {
		t.Errorf("server.port: got %v", paths["server.port"])
	}

	keys := SortedPaths(paths)
	if len(keys) != len(paths) || !sort.StringsAreSorted(keys) {
		t.Errorf("SortedPaths not sorted: %v", keys)
	}
	for _, k := range keys {
		if _, err := GetByPath(cfg, k); err != nil {
			t.Errorf("listed path %s not readable: %v", k, err)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_ACCESS_TOKEN", "EAAG-abc123")
	result := ExpandEnvVars(`{"accessToken": "${TEST_ACCESS_TOKEN}"}`)
	expected := `{"accessToken": "EAAG-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"countryCode": "${NONEXISTENT_VAR_12345:-62}"}`)
	expected := `{"countryCode": "62"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_COUNTRY", "44")
	result := ExpandEnvVars(`{"countryCode": "${MY_COUNTRY:-62}"}`)
	expected := `{"countryCode": "44"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_MultipleVars(t *testing.T) {
	t.Setenv("HOST", "localhost")
	t.Setenv("PORT", "3000")
	result := ExpandEnvVars(`"${HOST}:${PORT}"`)
	expected := `"localhost:3000"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TEST_WAGATE_TOKEN", "EAAG-from-env")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"whatsapp": {
			"accessToken": "${TEST_WAGATE_TOKEN}",
			"phoneNumberId": "${TEST_WAGATE_PHONE_ID:-1055}"
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WhatsApp.AccessToken != "EAAG-from-env" {
		t.Fatalf("expected token from env, got %q", cfg.WhatsApp.AccessToken)
	}
	if cfg.WhatsApp.PhoneNumberID != "1055" {
		t.Fatalf("expected default phone id, got %q", cfg.WhatsApp.PhoneNumberID)
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if cfg == nil {
		t.Fatal("defaults returned nil")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("default port should be 8000, got %d", cfg.Server.Port)
	}
	if cfg.Phone.CountryCode != "62" {
		t.Fatalf("default country code should be '62', got %q", cfg.Phone.CountryCode)
	}
}
