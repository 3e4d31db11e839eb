package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/platform/env"
)

type Config struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	BucketArtefacts string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("BIOMON_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:        env.String("BIOMON_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:       env.String("BIOMON_MINIO_ACCESS_KEY", "biomonitor"),
		SecretKey:       env.String("BIOMON_MINIO_SECRET_KEY", "biomonitorminio"),
		Region:          env.String("BIOMON_MINIO_REGION", "us-east-1"),
		UseSSL:          useSSL,
		BucketArtefacts: env.String("BIOMON_MINIO_BUCKET_ARTEFACTS", "artefacts"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketArtefacts) == "" {
		return errors.New("artefacts bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
