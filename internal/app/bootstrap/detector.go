package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/insight-tool/internal/config"
	"github.com/wolfman30/insight-tool/internal/pii"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

// BuildDetector assembles the PII detector chain: the regex detector always,
// the NER sidecar when NER_SIDECAR_URL is set, and Bedrock when
// BEDROCK_MODEL_ID is set. A non-nil redisClient adds a read-through cache.
func BuildDetector(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (pii.Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	chain := pii.Chain{pii.NewPatternDetector()}
	names := []string{"pattern"}

	if url := strings.TrimSpace(cfg.NERSidecarURL); url != "" {
		client := &http.Client{Timeout: cfg.NERTimeout}
		chain = append(chain, pii.NewNERClient(url, pii.WithHTTPClient(client)))
		names = append(names, "ner")
	}

	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		chain = append(chain, pii.NewBedrockDetector(bedrockruntime.NewFromConfig(awsCfg), model, logger))
		names = append(names, "bedrock")
	}

	var detector pii.Detector = chain
	if redisClient != nil {
		detector = pii.NewCachedDetector(chain, redisClient, cfg.PIICacheTTL, logger)
		names = append(names, "redis-cache")
	}
	logger.Info("pii detection configured", "detectors", strings.Join(names, ","))
	return detector, nil
}
