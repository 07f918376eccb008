package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPipelineDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("POLL_INTERVAL_SECONDS", "")
	t.Setenv("STAGE_MAX_ATTEMPTS", "")
	t.Setenv("NOVELTY_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollIntervalSec != 60 {
		t.Fatalf("poll interval = %d, want 60", cfg.PollIntervalSec)
	}
	if cfg.StageMaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.StageMaxAttempts)
	}
	if cfg.NoveltyThreshold != 0.7 {
		t.Fatalf("novelty threshold = %v, want 0.7", cfg.NoveltyThreshold)
	}
	if cfg.StorageBackend != "localfs" {
		t.Fatalf("storage backend = %q, want localfs", cfg.StorageBackend)
	}
}

func TestLoadFileOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("worker_pool_size: 8\nstorage_backend: s3\ns3_bucket: intake\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_POOL_SIZE", "2")
	t.Setenv("OLLAMA_MODEL", "mistral")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WorkerPoolSize != 8 {
		t.Fatalf("pool size = %d, want file value 8", cfg.WorkerPoolSize)
	}
	if cfg.StorageBackend != "s3" || cfg.S3Bucket != "intake" {
		t.Fatalf("storage = %q/%q", cfg.StorageBackend, cfg.S3Bucket)
	}
	// Keys absent from the file keep their env values.
	if cfg.OllamaModel != "mistral" {
		t.Fatalf("model = %q, want env value", cfg.OllamaModel)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("worker_pool_size: [broken"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed config file")
	}
}
