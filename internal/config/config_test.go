package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes body to dir/name and returns the path.
func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestFindConfig(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "lumen.yaml", "listen:\n  port: 9999\n")
		got, err := FindConfig(path)
		if err != nil || got != path {
			t.Fatalf("FindConfig(%q) = %q, %v", path, got, err)
		}
	})

	t.Run("explicit missing", func(t *testing.T) {
		_, err := FindConfig("/nonexistent/lumen.yaml")
		if err == nil || !strings.Contains(err.Error(), "config file not found") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("explicit directory", func(t *testing.T) {
		if _, err := FindConfig(t.TempDir()); err == nil {
			t.Fatal("a directory is not a config file")
		}
	})

	t.Run("working directory", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "config.yaml", "listen:\n  port: 8080\n")
		t.Chdir(dir)

		got, err := FindConfig("")
		if err != nil || got != "config.yaml" {
			t.Fatalf("FindConfig(\"\") = %q, %v", got, err)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())
		if _, err := os.Stat("/etc/lumen/config.yaml"); err == nil {
			t.Skip("system config present")
		}
		_, err := FindConfig("")
		if err == nil || !strings.Contains(err.Error(), "searched:") {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("LUMEN_TEST_KEY", "secret123")
	path := writeConfig(t, t.TempDir(), "config.yaml", `
providers:
  deepseek:
    api_key: ${LUMEN_TEST_KEY}
agent:
  default_model: glm-z1-air
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := cfg.APIKey("DeepSeek"); got != "secret123" {
		t.Errorf("APIKey(DeepSeek) = %q, want expanded env value", got)
	}
	if cfg.Agent.DefaultModel != "glm-z1-air" {
		t.Errorf("agent.default_model = %q", cfg.Agent.DefaultModel)
	}

	// Unset fields keep their defaults.
	if cfg.Listen.Port != 8080 || cfg.Agent.MaxToolDepth != 8 || cfg.Agent.ToolDelayMS != 300 {
		t.Errorf("defaults not applied: port=%d depth=%d delay=%d",
			cfg.Listen.Port, cfg.Agent.MaxToolDepth, cfg.Agent.ToolDelayMS)
	}
	if !cfg.Tools.Enabled || cfg.MQTT.TopicPrefix != "lumen" {
		t.Errorf("tools.enabled=%v mqtt.topic_prefix=%q", cfg.Tools.Enabled, cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, body, want string
	}{
		{"bad yaml", "listen: [", "parse config"},
		{"bad log level", "log_level: chatty\n", "unknown log level"},
		{"bad log format", "log_format: xml\n", "log_format"},
		{"port out of range", "listen:\n  port: 70000\n", "listen.port"},
		{"threshold out of range", "knowledge:\n  threshold: 1.5\n", "knowledge.threshold"},
		{"mqtt not a url", "mqtt:\n  broker: localhost\n", "mqtt.broker"},
		{"mqtt scheme", "mqtt:\n  broker: http://localhost:1883\n", "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestValidate_MQTTSchemes(t *testing.T) {
	for _, broker := range []string{"mqtt://h:1883", "tcp://h:1883", "mqtts://h:8883", "wss://h/mqtt"} {
		cfg := Default()
		cfg.MQTT.Broker = broker
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v", broker, err)
		}
	}
}

func TestRequestURL(t *testing.T) {
	const zhipu = "https://open.bigmodel.cn/api/paas/v4/chat/completions"
	cfg := Default()
	cfg.Providers = map[string]ProviderConfig{"zhipu": {URL: zhipu}}

	if got := cfg.RequestURL("Zhipu"); got != zhipu {
		t.Errorf("RequestURL(Zhipu) = %q", got)
	}
	if got := cfg.RequestURL("openai"); got != "" {
		t.Errorf("RequestURL(openai) = %q, want empty", got)
	}
}

func TestToolEnabled(t *testing.T) {
	cfg := Default()
	cfg.Tools.Flags = map[string]bool{"execute_python_code": false, "search_online": true}

	cases := map[string]bool{
		"search_online":       true,
		"query_weather":       true, // not listed
		"execute_python_code": false,
	}
	for name, want := range cases {
		if got := cfg.ToolEnabled(name); got != want {
			t.Errorf("ToolEnabled(%q) = %v, want %v", name, got, want)
		}
	}

	cfg.Tools.Enabled = false
	if cfg.ToolEnabled("search_online") {
		t.Error("global switch should disable every tool")
	}
}
