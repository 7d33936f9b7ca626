package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("querywright-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.AI.Model != DefaultFineTunedModel {
		t.Fatalf("AI.Model = %q", cfg.AI.Model)
	}
	if cfg.AI.Temperature != 0 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.DefaultStrategy != "fine_tuned_gpt" {
		t.Fatalf("AI.DefaultStrategy = %q", cfg.AI.DefaultStrategy)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("Retry.MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Multiplier != 2 {
		t.Fatalf("Retry.Multiplier = %f", cfg.Retry.Multiplier)
	}
	if !cfg.Answer.ExecuteSQL || cfg.Answer.RowLimit != 50 {
		t.Fatalf("Answer = %+v", cfg.Answer)
	}
	if cfg.Archive.Enabled {
		t.Fatal("Archive.Enabled should default to false")
	}
	if cfg.Archive.Endpoint != "localhost:9000" {
		t.Fatalf("Archive.Endpoint = %q", cfg.Archive.Endpoint)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"QUERYWRIGHT_PROFILE": "prod"})
	cfg, err := Load("querywright-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Archive.UseSSL {
		t.Fatal("Archive.UseSSL should default to true in prod")
	}
	if cfg.Archive.AutoCreateBucket {
		t.Fatal("Archive.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadTestProfileShortensRetryIntervals(t *testing.T) {
	cfg, err := Load("querywright-api", mapLookup(map[string]string{"QUERYWRIGHT_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retry.InitialInterval != 10*time.Millisecond {
		t.Fatalf("Retry.InitialInterval = %s", cfg.Retry.InitialInterval)
	}
	if cfg.HTTP.Address != ":18080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"QUERYWRIGHT_PROFILE":                    "test",
		"QUERYWRIGHT_HTTP_ADDR":                  ":9999",
		"QUERYWRIGHT_HTTP_READ_TIMEOUT":          "2s",
		"QUERYWRIGHT_HTTP_WRITE_TIMEOUT":         "3s",
		"QUERYWRIGHT_LOG_LEVEL":                  "error",
		"QUERYWRIGHT_AUTH_REQUIRED":              "true",
		"QUERYWRIGHT_AUTH_STATIC_KEYS":           "k1:alice:query_writer",
		"QUERYWRIGHT_CATALOG_DSN":                "postgres://example",
		"QUERYWRIGHT_CATALOG_MAX_OPEN_CONNS":     "42",
		"QUERYWRIGHT_CATALOG_MAX_IDLE_CONNS":     "17",
		"QUERYWRIGHT_SERVICE_NAME":               "querywright-custom",
		"QUERYWRIGHT_ENCRYPT_KEYS":               "key-a,key-b",
		"QUERYWRIGHT_ENCRYPT_TOKEN_TTL":          "24h",
		"QUERYWRIGHT_AI_BASE_URL":                "https://api.example.com",
		"QUERYWRIGHT_AI_API_KEY":                 "secret-key",
		"QUERYWRIGHT_AI_MODEL":                   "ft:custom",
		"QUERYWRIGHT_AI_TEMPERATURE":             "0.3",
		"QUERYWRIGHT_AI_TIMEOUT":                 "21s",
		"QUERYWRIGHT_AI_NL_ANSWER_ENABLED":       "true",
		"QUERYWRIGHT_AI_CONTEXT_LIMIT":           "7",
		"QUERYWRIGHT_RETRY_MAX_ATTEMPTS":         "0",
		"QUERYWRIGHT_RETRY_INITIAL_INTERVAL":     "0s",
		"QUERYWRIGHT_RETRY_MAX_INTERVAL":         "1s",
		"QUERYWRIGHT_RETRY_MULTIPLIER":           "1.5",
		"QUERYWRIGHT_RETRY_JITTER":               "0",
		"QUERYWRIGHT_ANSWER_EXECUTE_SQL":         "false",
		"QUERYWRIGHT_ANSWER_ROW_LIMIT":           "10",
		"QUERYWRIGHT_ANSWER_EXECUTION_TIMEOUT":   "4s",
		"QUERYWRIGHT_ARCHIVE_ENABLED":            "true",
		"QUERYWRIGHT_ARCHIVE_ENDPOINT":           "s3.example.com",
		"QUERYWRIGHT_ARCHIVE_BUCKET":             "qw-prod",
		"QUERYWRIGHT_ARCHIVE_USE_SSL":            "true",
		"QUERYWRIGHT_ARCHIVE_PREFIX":             "archive-root",
		"QUERYWRIGHT_ARCHIVE_AUTO_CREATE_BUCKET": "false",
	})
	cfg, err := Load("querywright-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "querywright-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP timeouts = %s/%s", cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:alice:query_writer" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Catalog.DSN != "postgres://example" || cfg.Catalog.MaxOpenConns != 42 || cfg.Catalog.MaxIdleConns != 17 {
		t.Fatalf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.Encryption.Keys != "key-a,key-b" || cfg.Encryption.TokenTTL != 24*time.Hour {
		t.Fatalf("Encryption = %+v", cfg.Encryption)
	}
	if cfg.AI.BaseURL != "https://api.example.com" || cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "ft:custom" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI temperature/timeout = %f/%s", cfg.AI.Temperature, cfg.AI.Timeout)
	}
	if !cfg.AI.NLAnswerEnabled || cfg.AI.DefaultContextN != 7 {
		t.Fatalf("AI answer/context = %v/%d", cfg.AI.NLAnswerEnabled, cfg.AI.DefaultContextN)
	}
	if cfg.Retry.MaxAttempts != 0 || cfg.Retry.InitialInterval != 0 || cfg.Retry.MaxInterval != time.Second {
		t.Fatalf("Retry = %+v", cfg.Retry)
	}
	if cfg.Retry.Multiplier != 1.5 || cfg.Retry.RandomizationFactor != 0 {
		t.Fatalf("Retry = %+v", cfg.Retry)
	}
	if cfg.Answer.ExecuteSQL || cfg.Answer.RowLimit != 10 || cfg.Answer.ExecutionTimeout != 4*time.Second {
		t.Fatalf("Answer = %+v", cfg.Answer)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Endpoint != "s3.example.com" || cfg.Archive.Bucket != "qw-prod" {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
	if !cfg.Archive.UseSSL || cfg.Archive.AutoCreateBucket || cfg.Archive.Prefix != "archive-root" {
		t.Fatalf("Archive = %+v", cfg.Archive)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"QUERYWRIGHT_PROFILE": "oops"},
		{"QUERYWRIGHT_HTTP_READ_TIMEOUT": "NaN"},
		{"QUERYWRIGHT_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"QUERYWRIGHT_AI_TEMPERATURE": "bad"},
		{"QUERYWRIGHT_AUTH_REQUIRED": "not-bool"},
		{"QUERYWRIGHT_LOG_LEVEL": "verbose"},
		{"QUERYWRIGHT_RETRY_MAX_ATTEMPTS": "-1"},
		{"QUERYWRIGHT_RETRY_MULTIPLIER": "0.5"},
		{"QUERYWRIGHT_RETRY_JITTER": "2"},
		{"QUERYWRIGHT_ENCRYPT_TOKEN_TTL": "forever"},
	}
	for _, env := range tests {
		_, err := Load("querywright-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
