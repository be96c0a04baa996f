package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/data/graph"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/learning/mindmap"
	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// BuildMindMap generates a fresh concept map, resolves its flat parent
// references into a tree and replaces the pack's live map.
func BuildMindMap(ctx context.Context, deps GenerationDeps, in BuildInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindMindMap}
	if err := deps.validate("build_mind_map"); err != nil {
		return out, err
	}
	if deps.MindMaps == nil {
		return out, fmt.Errorf("build_mind_map: missing deps")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "build_mind_map", "study_pack_id", pack.ID.String())
	target := deps.clampTarget(types.KindMindMap, in.Target)

	request := func(ctx context.Context, a convergence.Attempt[prompts.NodeOut]) ([]prompts.NodeOut, error) {
		titles := make([]string, len(a.Accumulated))
		for i, n := range a.Accumulated {
			titles[i] = n.Title
		}
		obj, err := complete(ctx, deps.LLM, prompts.PromptMindMap, prompts.Input{
			PackTitle:  pack.Title,
			Excerpts:   renderExcerpts(a.Windows, deps.Config.Generation.ExcerptMaxChars),
			Count:      a.Deficit,
			Vocabulary: bulletList(distinct(titles, deps.Config.Extension.VocabularyCap)),
		})
		if err != nil {
			return nil, err
		}
		batch, err := prompts.DecodeMindMap(obj)
		if err != nil {
			return nil, err
		}
		observability.ReportDroppedRecords(ctx, deps.Log, string(types.KindMindMap), rawLen(obj, "nodes"), len(batch))
		// follow-up batches hang under the first batch's root
		return mindmap.Rebase(batch, len(a.Accumulated)), nil
	}
	res, err := convergence.Generate(ctx, "mind_map", windows, target, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	var (
		m        *types.MindMap
		resolved mindmap.Resolved
	)
	res.Outcome.Inserted = len(res.Records)
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := deps.MindMaps.SoftDeleteLiveMap(dbc, pack.ID); err != nil {
			return err
		}
		m, err = deps.MindMaps.CreateMap(dbc, pack.ID)
		if err != nil {
			return err
		}
		resolved, err = mindmap.Resolve(ctx, packrepos.NodeStore(deps.MindMaps, tx, m.ID), res.Records, 0)
		if err != nil {
			return err
		}
		return deps.MindMaps.SetOutcome(dbc, m.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("mind_map", len(res.Records), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindMindMap), len(res.Records))
	syncMindMapGraph(ctx, deps, log, m)

	log.Info("mind map built",
		"mind_map_id", m.ID.String(),
		"nodes", len(res.Records),
		"reattached", resolved.Reattached,
		"target", target,
		"state", res.Outcome.State,
	)
	return ArtifactOutput{Kind: types.KindMindMap, InstanceID: m.ID, Outcome: res.Outcome}, nil
}

type candidateView struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Depth    int    `json:"depth"`
	Leaf     bool   `json:"leaf"`
}

// ExtendMindMap grows the live map by attaching new nodes directly under
// ranked existing nodes in a single pass.
func ExtendMindMap(ctx context.Context, deps GenerationDeps, in ExtendInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindMindMap}
	if err := deps.validate("extend_mind_map"); err != nil {
		return out, err
	}
	if deps.MindMaps == nil {
		return out, fmt.Errorf("extend_mind_map: missing deps")
	}
	if in.Count <= 0 {
		return out, fmt.Errorf("extend_mind_map: count must be > 0")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	m, err := deps.MindMaps.GetLiveMap(dbctx.Context{Ctx: ctx}, pack.ID)
	if err != nil {
		return out, err
	}
	rows, err := deps.MindMaps.ListNodes(dbctx.Context{Ctx: ctx}, m.ID)
	if err != nil {
		return out, err
	}
	tree, err := mindmap.Analyze(treeNodes(rows))
	if err != nil {
		return out, fmt.Errorf("extend_mind_map: %w", err)
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "extend_mind_map", "study_pack_id", pack.ID.String(), "mind_map_id", m.ID.String())

	candidates := tree.Candidates(deps.Config.Extension.CandidateCap)
	views := make([]candidateView, len(candidates))
	for i, c := range candidates {
		views[i] = candidateView{Position: i, Title: c.Title, Depth: c.Depth, Leaf: c.Leaf}
	}
	candidatesJSON, err := json.Marshal(views)
	if err != nil {
		return out, err
	}
	vocab := tree.Vocabulary(deps.Config.Extension.VocabularyCap)
	existing := make(map[string]bool, tree.Len())
	for _, title := range tree.Vocabulary(0) {
		existing[normKey(title)] = true
	}
	count := deps.clampTarget(types.KindMindMap, in.Count)

	request := func(ctx context.Context, a convergence.Attempt[prompts.ExtensionNodeOut]) ([]prompts.ExtensionNodeOut, error) {
		seen := make(map[string]bool, len(a.Accumulated))
		for _, n := range a.Accumulated {
			seen[normKey(n.Title)] = true
		}
		obj, err := complete(ctx, deps.LLM, prompts.PromptMindMapExtend, prompts.Input{
			PackTitle:      pack.Title,
			Excerpts:       renderExcerpts(a.Windows, deps.Config.Generation.ExcerptMaxChars),
			Count:          a.Deficit,
			Vocabulary:     bulletList(vocab),
			CandidatesJSON: string(candidatesJSON),
		})
		if err != nil {
			return nil, err
		}
		nodes, err := prompts.DecodeMindMapExtension(obj)
		if err != nil {
			return nil, err
		}
		kept := nodes[:0]
		for _, n := range nodes {
			k := normKey(n.Title)
			if seen[k] {
				continue
			}
			seen[k] = true
			kept = append(kept, n)
		}
		observability.ReportDroppedRecords(ctx, deps.Log, string(types.KindMindMap), rawLen(obj, "nodes"), len(kept))
		return kept, nil
	}
	res, err := convergence.Generate(ctx, "mind_map_extend", windows, count, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	fresh := make([]prompts.ExtensionNodeOut, 0, len(res.Records))
	for _, n := range res.Records {
		if existing[normKey(n.Title)] {
			continue
		}
		fresh = append(fresh, n)
	}
	planned, fallbacks := mindmap.PlanExtension(tree, candidates, fresh)
	res.Outcome.Inserted = len(planned)

	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := packrepos.NodeStore(deps.MindMaps, tx, m.ID).InsertNodes(ctx, planned); err != nil {
			return err
		}
		return deps.MindMaps.SetOutcome(dbctx.Context{Ctx: ctx, Tx: tx}, m.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("mind_map_extend", len(planned), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindMindMap), len(planned))
	syncMindMapGraph(ctx, deps, log, m)

	log.Info("mind map extended",
		"produced", res.Outcome.Produced,
		"inserted", len(planned),
		"root_fallbacks", fallbacks,
		"state", res.Outcome.State,
	)
	return ArtifactOutput{Kind: types.KindMindMap, InstanceID: m.ID, Outcome: res.Outcome}, nil
}

func treeNodes(rows []*types.MindMapNode) []mindmap.Node {
	out := make([]mindmap.Node, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		out = append(out, mindmap.Node{ID: r.ID, ParentID: r.ParentID, Title: r.Title, OrderIndex: r.OrderIndex})
	}
	return out
}

// syncMindMapGraph mirrors the map into Neo4j. Failures are logged only; the
// relational rows are the source of truth.
func syncMindMapGraph(ctx context.Context, deps GenerationDeps, log *logger.Logger, m *types.MindMap) {
	if deps.Graph == nil || m == nil {
		return
	}
	nodes, err := deps.MindMaps.ListNodes(dbctx.Context{Ctx: ctx}, m.ID)
	if err != nil {
		log.Warn("mind map graph sync skipped", "error", err)
		return
	}
	if err := graph.UpsertMindMapGraph(ctx, deps.Graph, log, m, nodes); err != nil {
		log.Warn("mind map graph sync failed", "error", err)
	}
}
