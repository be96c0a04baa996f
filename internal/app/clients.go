package app

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-studygen/internal/platform/gcp"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-studygen/internal/platform/openai"
	"github.com/yungbote/neurobridge-studygen/internal/platform/redislock"
	"github.com/yungbote/neurobridge-studygen/internal/services"
)

// wireClients connects to the external systems. Only OpenAI is mandatory;
// Neo4j and GCS stay nil when unconfigured, and locks fall back to in-process.
func wireClients(ctx context.Context, log *logger.Logger) (services.StudyPackClients, error) {
	log.Info("Wiring clients...")

	llm, err := openai.NewClient(log)
	if err != nil {
		return services.StudyPackClients{}, fmt.Errorf("init openai: %w", err)
	}
	locks, err := redislock.NewFromEnv(log)
	if err != nil {
		return services.StudyPackClients{}, fmt.Errorf("init run locks: %w", err)
	}
	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		// the mind map mirror is best-effort
		log.Warn("neo4j unavailable; mind map graph mirror disabled", "error", err)
		graph = nil
	}
	bucket, err := gcp.NewTextBucketFromEnv(ctx, log)
	if err != nil {
		return services.StudyPackClients{}, fmt.Errorf("init text bucket: %w", err)
	}

	return services.StudyPackClients{
		LLM:    llm,
		Locks:  locks,
		Graph:  graph,
		Bucket: bucket,
	}, nil
}

func closeClients(ctx context.Context, log *logger.Logger, c services.StudyPackClients) {
	if c.Graph != nil {
		if err := c.Graph.Close(ctx); err != nil {
			log.Warn("neo4j close failed", "error", err)
		}
	}
	if c.Bucket != nil {
		if err := c.Bucket.Close(); err != nil {
			log.Warn("text bucket close failed", "error", err)
		}
	}
}
