package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

func DefaultConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("获取工作目录失败: %w", err)
	}
	return filepath.Join(cwd, "config", "config.yaml"), nil
}

func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"log_level": cfg.App.LogLevel,
		},
		"storage": map[string]any{
			"db_path":    cfg.Storage.DBPath,
			"backup_dir": cfg.Storage.BackupDir,
		},
		"ollama": map[string]any{
			"base_url":    cfg.Ollama.BaseURL,
			"model":       cfg.Ollama.Model,
			"timeout_sec": cfg.Ollama.TimeoutSec,
		},
		"similar": map[string]any{
			"enabled":      cfg.Similar.Enabled,
			"storage_path": cfg.Similar.StoragePath,
		},
		"import": map[string]any{
			"watch_dir":  cfg.Import.WatchDir,
			"settle_sec": cfg.Import.SettleSec,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
