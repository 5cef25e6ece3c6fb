package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// DefaultRegion is used when neither the caller nor the environment names one.
const DefaultRegion = "us-east-1"

// ResolveRegion picks the first non-blank of explicit, ambient and fallback.
func ResolveRegion(explicit, ambient, fallback string) string {
	for _, r := range []string{explicit, ambient, fallback} {
		if r = strings.TrimSpace(r); r != "" {
			return r
		}
	}
	return DefaultRegion
}

// loadDefaultConfig is swapped in tests.
var loadDefaultConfig = awsconfig.LoadDefaultConfig

// LoadAWS loads the ambient AWS configuration with the region resolved once
// from explicit, the environment, and DefaultRegion. If the ambient
// configuration cannot be loaded, loading is retried pinned to DefaultRegion.
func LoadAWS(ctx context.Context, log *slog.Logger, explicit string) (aws.Config, error) {
	cfg, err := loadDefaultConfig(ctx)
	if err != nil {
		log.Warn("could not load ambient AWS configuration, falling back to default region",
			"region", DefaultRegion, "err", err)
		cfg, err = loadDefaultConfig(ctx, awsconfig.WithRegion(ResolveRegion(explicit, "", DefaultRegion)))
		if err != nil {
			return aws.Config{}, fmt.Errorf("config: load AWS config: %w", err)
		}
	}
	region := ResolveRegion(explicit, cfg.Region, DefaultRegion)
	if strings.TrimSpace(explicit) == "" && strings.TrimSpace(cfg.Region) == "" {
		log.Warn("no region defined or configured, using default", "region", region)
	}
	cfg.Region = region
	return cfg, nil
}
