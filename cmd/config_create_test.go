package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"tasktime/config"
)

func TestSaveDefaultConfigCreatesExampleTemplate(t *testing.T) {
	t.Cleanup(func() {
		cfgFile = ""
		viper.Reset()
	})

	tmpConfig := filepath.Join(t.TempDir(), "create-template.yaml")
	cfgFile = tmpConfig
	viper.Reset()

	if err := saveDefaultConfig(); err != nil {
		t.Fatalf("unexpected error creating config: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "# tasktime configuration") {
		t.Fatalf("expected example header in config file, got:\n%s", text)
	}
	if !strings.Contains(text, "aggregate:") || !strings.Contains(text, "cache_ttl: 60s") {
		t.Fatalf("expected aggregate example in config file, got:\n%s", text)
	}
}

func TestSaveDefaultConfigDoesNotOverwriteExistingFile(t *testing.T) {
	t.Cleanup(func() {
		cfgFile = ""
		viper.Reset()
	})

	tmpConfig := filepath.Join(t.TempDir(), "existing.yaml")
	original := "server:\n  port: 9090\n  db_path: \"./custom.db\"\n"
	if err := os.WriteFile(tmpConfig, []byte(original), 0o644); err != nil {
		t.Fatalf("failed writing initial config: %v", err)
	}

	cfgFile = tmpConfig
	viper.Reset()

	if err := saveDefaultConfig(); err != nil {
		t.Fatalf("unexpected error creating config: %v", err)
	}

	content, err := os.ReadFile(tmpConfig)
	if err != nil {
		t.Fatalf("failed reading existing config after create: %v", err)
	}
	if string(content) != original {
		t.Fatalf("expected existing config to remain unchanged")
	}
}

func TestPrintDefaultConfigMatchesTemplate(t *testing.T) {
	var out bytes.Buffer
	if err := printDefaultConfig(&out); err != nil {
		t.Fatalf("print template: %v", err)
	}
	if _, err := config.ValidateYAMLContent(out.Bytes()); err != nil {
		t.Fatalf("printed template does not validate: %v", err)
	}
}

func TestWriteConfigYAMLMasksPassword(t *testing.T) {
	cfg, err := config.ValidateYAMLContent([]byte("notify:\n  smtp:\n    password: secret\n"))
	if err != nil {
		t.Fatalf("validate config: %v", err)
	}

	var out bytes.Buffer
	if err := writeConfigYAML(&out, *cfg); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	text := out.String()
	if strings.Contains(text, "secret") || !strings.Contains(text, "********") {
		t.Fatalf("expected masked password, got:\n%s", text)
	}
	if !strings.Contains(text, "cache_ttl: 1m0s") || !strings.Contains(text, "db_path: ./tasktime.db") {
		t.Fatalf("expected effective values, got:\n%s", text)
	}
}
