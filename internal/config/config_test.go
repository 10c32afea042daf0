package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != 7012 || cfg.App.StorageDriver != "postgres" {
		t.Errorf("默认应用配置错误: %+v", cfg.App)
	}
	if cfg.Engine.BacktrackFactor != 3 || cfg.Engine.HorizonDays != 14 || cfg.Engine.TopK != 3 {
		t.Errorf("默认引擎配置错误: %+v", cfg.Engine)
	}
	if cfg.Engine.RepositoryTimeout != 5*time.Second {
		t.Errorf("默认存储超时应为 5s，实际 %s", cfg.Engine.RepositoryTimeout)
	}
	if len(cfg.API.CORS.Origins) != 1 || cfg.API.CORS.Origins[0] != "*" {
		t.Errorf("默认跨域配置错误: %v", cfg.API.CORS.Origins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_STORAGE_DRIVER", "memory")
	t.Setenv("ENGINE_TOP_K", "5")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("API_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.StorageDriver != "memory" || cfg.Engine.TopK != 5 {
		t.Errorf("环境变量未生效: %+v %+v", cfg.App, cfg.Engine)
	}
	if want := "host=db.internal port=5432 user=kebiao password=kebiao123 dbname=kebiao sslmode=disable"; cfg.Database.DSN() != want {
		t.Errorf("DSN() = %s", cfg.Database.DSN())
	}
	if len(cfg.API.CORS.Origins) != 2 {
		t.Errorf("跨域来源应有 2 个，实际 %v", cfg.API.CORS.Origins)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("APP_LOCK_DRIVER", "etcd")
	if _, err := Load(); err == nil {
		t.Error("未知锁驱动应返回错误")
	}
}

func TestLoad_LockTTLShorterThanGenerate(t *testing.T) {
	t.Setenv("ENGINE_GENERATE_TIMEOUT", "2m")
	t.Setenv("ENGINE_LOCK_TTL", "1m")
	if _, err := Load(); err == nil {
		t.Error("锁过期时间小于排课超时应返回错误")
	}

	t.Setenv("ENGINE_LOCK_TTL", "2m")
	if _, err := Load(); err != nil {
		t.Errorf("锁过期时间等于排课超时应通过: %v", err)
	}
}
