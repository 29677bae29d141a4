package bootstrap

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/insight-tool/internal/config"
	"github.com/wolfman30/insight-tool/internal/pii"
	"github.com/wolfman30/insight-tool/internal/research"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logging.New("error"), true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.New("error"), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: "127.0.0.1:1"}, logging.New("error"), true))
}

func TestBuildStore(t *testing.T) {
	logger := logging.New("error")

	store, err := BuildStore(context.Background(), &appconfig.Config{StoreBackend: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &research.InMemoryRepository{}, store.Repo)
	assert.Nil(t, store.Auditor)
	assert.NoError(t, store.Health(context.Background()))
	store.Close()

	_, err = BuildStore(context.Background(), &appconfig.Config{StoreBackend: "postgres"}, logger)
	assert.ErrorContains(t, err, "DATABASE_URL")

	_, err = BuildStore(context.Background(), &appconfig.Config{StoreBackend: "dynamo"}, logger)
	assert.ErrorContains(t, err, "unknown STORE_BACKEND")

	_, err = BuildStore(context.Background(), nil, logger)
	assert.Error(t, err)
}

func TestBuildDetectorPatternOnly(t *testing.T) {
	detector, err := BuildDetector(context.Background(), &appconfig.Config{}, nil, logging.New("error"))
	require.NoError(t, err)

	chain, ok := detector.(pii.Chain)
	require.True(t, ok, "expected chain, got %T", detector)
	assert.Len(t, chain, 1)

	entities, err := detector.Detect(context.Background(), "write to a@b.com")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, pii.TypeEmail, entities[0].Type)
}

func TestBuildDetectorWithSidecarBedrockAndCache(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{
		NERSidecarURL:      "http://presidio.invalid",
		BedrockModelID:     "anthropic.claude-3-haiku",
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		RedisAddr:          mr.Addr(),
	}
	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	detector, err := BuildDetector(context.Background(), cfg, client, logging.New("error"))
	require.NoError(t, err)
	assert.IsType(t, &pii.CachedDetector{}, detector)
}

func TestLoadAWSConfigEndpointOverride(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "eu-west-2",
		AWSAccessKeyID:      "AKID",
		AWSSecretAccessKey:  "SECRET",
		AWSEndpointOverride: "http://localhost:4566",
	}

	awsCfg, err := LoadAWSConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-2", awsCfg.Region)
	require.NotNil(t, awsCfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *awsCfg.BaseEndpoint)

	creds, err := awsCfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKID", creds.AccessKeyID)
}
