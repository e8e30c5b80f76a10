package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"vaprisk/db"
	vhttp "vaprisk/http"
	"vaprisk/logger"
	"vaprisk/ml"
	"vaprisk/monitoring"
	"vaprisk/risk"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log   logger.Config `yaml:"log"`
	Model struct {
		Paths      []string `yaml:"paths"`
		UploadPath string   `yaml:"upload_path"`
		Watch      bool     `yaml:"watch"`
	} `yaml:"model"`
	Assessment struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"assessment"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	zlog, err := logger.Init(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		zap.S().Fatalw("failed to initialize database", "error", err)
	}
	defer db.Close()
	zap.S().Infow("database initialized", "path", config.Database.Path)

	// 4. Resolve the model session. A missing preset model is not fatal:
	// the service starts and accepts an upload.
	resolver := ml.NewResolverWithPaths(config.Model.Paths, config.Model.UploadPath)
	session := ml.NewSession(resolver)
	if model, err := session.Resolve(); err != nil {
		if errors.Is(err, ml.ErrModelNotFound) {
			zap.S().Warn("no preset model found; waiting for upload")
		} else {
			zap.S().Errorw("model resolution failed", "error", err)
		}
	} else {
		if err := db.SaveModelEvent("load", model.Info); err != nil {
			zap.S().Warnw("failed to record model event", "error", err)
		}
	}
	if config.Model.Watch {
		if err := session.Watch(); err != nil {
			zap.S().Warnw("model watcher disabled", "error", err)
		}
		defer session.Close()
	}

	// 5. Build the pipeline and monitoring
	assessor, err := risk.NewAssessor(session, config.Assessment.CacheSize)
	if err != nil {
		zap.S().Fatalw("failed to build assessor", "error", err)
	}
	collector := monitoring.NewCollector()
	hub := monitoring.NewWebSocketHub()
	go hub.Start()
	go hub.PublishStatus(collector, 30*time.Second)
	defer hub.Stop()

	vhttp.SetAssessor(assessor)
	vhttp.SetCollector(collector)
	vhttp.SetHub(hub)

	// 6. Start HTTP server
	server := vhttp.NewServer(vhttp.ServerConfig{
		Port:           config.Http.Port,
		Timeout:        time.Duration(config.Http.TimeoutSeconds) * time.Second,
		AllowedOrigins: config.Http.AllowedOrigins,
	})
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("http server failed", "error", err)
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.S().Info("shutting down")

	if err := server.Stop(); err != nil {
		zap.S().Warnw("server forced to shutdown", "error", err)
	}

	zap.S().Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
