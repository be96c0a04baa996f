package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/platform/neo4jdb"
)

// UpsertMindMapGraph mirrors a persisted mind map into Neo4j as
// (:StudyPack)<-[:OF_PACK]-(:MindMap)<-[:IN_MAP]-(:MindMapNode)-[:CHILD_OF]->(:MindMapNode).
// A nil client is a no-op. Nodes no longer in the map are detached.
func UpsertMindMapGraph(
	ctx context.Context,
	client *neo4jdb.Client,
	log *logger.Logger,
	mapRow *types.MindMap,
	nodes []*types.MindMapNode,
) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if mapRow == nil || mapRow.ID == uuid.Nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	nodeRows, edgeRows := mindMapGraphRows(mapRow.ID, nodes, now)
	keep := make([]string, 0, len(nodeRows))
	for _, n := range nodeRows {
		keep = append(keep, n["id"].(string))
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	for _, q := range []string{
		`CREATE CONSTRAINT study_pack_id_unique IF NOT EXISTS FOR (p:StudyPack) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT mind_map_id_unique IF NOT EXISTS FOR (m:MindMap) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT mind_map_node_id_unique IF NOT EXISTS FOR (n:MindMapNode) REQUIRE n.id IS UNIQUE`,
	} {
		if res, err := session.Run(ctx, q, nil); err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if res, err := tx.Run(ctx, `
MERGE (p:StudyPack {id: $pack_id})
MERGE (m:MindMap {id: $map_id})
SET m.synced_at = $synced_at
MERGE (m)-[:OF_PACK]->(p)
`, map[string]any{
			"pack_id":   mapRow.StudyPackID.String(),
			"map_id":    mapRow.ID.String(),
			"synced_at": now,
		}); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if res, err := tx.Run(ctx, `
MATCH (n:MindMapNode)-[:IN_MAP]->(:MindMap {id: $map_id})
WHERE NOT n.id IN $keep
DETACH DELETE n
`, map[string]any{"map_id": mapRow.ID.String(), "keep": keep}); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(nodeRows) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (mn:MindMapNode {id: n.id})
SET mn += n
WITH mn, n
MATCH (m:MindMap {id: n.mind_map_id})
MERGE (mn)-[:IN_MAP]->(m)
`, map[string]any{"nodes": nodeRows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(edgeRows) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $edges AS e
MATCH (c:MindMapNode {id: e.child_id})
OPTIONAL MATCH (c)-[old:CHILD_OF]->()
DELETE old
WITH c, e
MATCH (p:MindMapNode {id: e.parent_id})
MERGE (c)-[r:CHILD_OF]->(p)
SET r.synced_at = e.synced_at
`, map[string]any{"edges": edgeRows})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err == nil && log != nil {
		log.Debug("mind map graph synced", "mind_map_id", mapRow.ID.String(), "nodes", len(nodeRows), "edges", len(edgeRows))
	}
	return err
}

func mindMapGraphRows(mapID uuid.UUID, nodes []*types.MindMapNode, now string) (nodeRows, edgeRows []map[string]any) {
	nodeRows = make([]map[string]any, 0, len(nodes))
	edgeRows = make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == uuid.Nil || n.MindMapID != mapID {
			continue
		}
		nodeRows = append(nodeRows, map[string]any{
			"id":          n.ID.String(),
			"mind_map_id": mapID.String(),
			"title":       n.Title,
			"content":     truncateString(n.Content, 900),
			"order_index": n.OrderIndex,
			"synced_at":   now,
		})
		if n.ParentID != nil && *n.ParentID != uuid.Nil && *n.ParentID != n.ID {
			edgeRows = append(edgeRows, map[string]any{
				"child_id":  n.ID.String(),
				"parent_id": n.ParentID.String(),
				"synced_at": now,
			})
		}
	}
	return nodeRows, edgeRows
}

func truncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return strings.TrimSpace(s[:max-1]) + "…"
}
