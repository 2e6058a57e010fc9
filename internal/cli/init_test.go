package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencode-ai/promptchain/internal/chains"
)

func TestCheckPrerequisites(t *testing.T) {
	result := checkPrerequisites()

	if result.status != "done" {
		t.Errorf("expected status 'done', got %q", result.status)
	}
	if !strings.Contains(result.message, "tmux") {
		t.Errorf("expected message to mention tmux, got: %s", result.message)
	}
}

func TestCreateConfigFile(t *testing.T) {
	tempDir := t.TempDir()

	originalFunc := configDirFunc
	configDirFunc = func() string {
		return tempDir
	}
	defer func() {
		configDirFunc = originalFunc
	}()

	originalForce := initForce
	initForce = true
	defer func() {
		initForce = originalForce
	}()

	result := createConfigFile()

	if result.status != "done" {
		t.Errorf("expected status 'done', got %q: %s", result.status, result.message)
	}

	configPath := filepath.Join(tempDir, "config.yaml")
	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	if !strings.Contains(string(content), "# promptchain configuration") {
		t.Error("config file doesn't contain expected header")
	}
	if !strings.Contains(string(content), "mode: auto-remove") {
		t.Error("config file doesn't contain expected default")
	}
}

func TestCreateConfigFile_ExistingNoForce(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("failed to create existing config: %v", err)
	}

	originalFunc := configDirFunc
	configDirFunc = func() string {
		return tempDir
	}
	defer func() {
		configDirFunc = originalFunc
	}()

	originalForce := initForce
	initForce = false
	defer func() {
		initForce = originalForce
	}()

	result := createConfigFile()

	if result.status != "skipped" {
		t.Errorf("expected status 'skipped', got %q: %s", result.status, result.message)
	}

	content, _ := os.ReadFile(configPath)
	if string(content) != "existing" {
		t.Error("existing config was modified")
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	dir := defaultConfigDir()
	if dir != "/custom/config/promptchain" {
		t.Errorf("expected /custom/config/promptchain, got %s", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	dir = defaultConfigDir()
	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".config", "promptchain")
	if dir != expected {
		t.Errorf("expected %s, got %s", expected, dir)
	}
}

func TestConfigTemplate(t *testing.T) {
	if !strings.HasPrefix(configTemplate, "# promptchain configuration") {
		t.Error("config template doesn't have expected header")
	}

	sections := []string{
		"database:",
		"agent:",
		"batch:",
		"lock:",
		"http:",
		"logging:",
		"daemon:",
	}

	for _, section := range sections {
		if !strings.Contains(configTemplate, section) {
			t.Errorf("config template missing section: %s", section)
		}
	}
}

func TestCreateChainsDirSeedsExample(t *testing.T) {
	project := t.TempDir()

	result := createChainsDir(project)
	if result.status != "done" {
		t.Fatalf("expected status 'done', got %q: %s", result.status, result.message)
	}

	loaded, err := chains.LoadDir(filepath.Join(project, ".promptchain", "chains"))
	if err != nil {
		t.Fatalf("example chain does not load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "example" {
		t.Fatalf("expected the example chain, got %+v", loaded)
	}

	again := createChainsDir(project)
	if again.status != "skipped" {
		t.Errorf("expected second run to skip, got %q", again.status)
	}
}

func TestCreateChainsDirWithoutProject(t *testing.T) {
	result := createChainsDir("  ")
	if result.status != "skipped" {
		t.Errorf("expected status 'skipped', got %q", result.status)
	}
}

func TestInitResult_Structure(t *testing.T) {
	results := []initResult{
		{name: "Step 1", status: "done", message: "OK"},
		{name: "Step 2", status: "skipped", message: "Already exists"},
		{name: "Step 3", status: "failed", message: "Something went wrong"},
	}

	validStatuses := map[string]bool{"done": true, "skipped": true, "failed": true}
	for i, r := range results {
		if r.name == "" {
			t.Errorf("result %d has empty name", i)
		}
		if !validStatuses[r.status] {
			t.Errorf("result %d has invalid status: %s", i, r.status)
		}
	}
}
