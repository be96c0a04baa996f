package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/config"
	materialrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/materials"
	packrepos "github.com/yungbote/neurobridge-studygen/internal/data/repos/studypack"
	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/platform/neo4jdb"
	"github.com/yungbote/neurobridge-studygen/internal/platform/openai"
)

// GenerationDeps is shared by every build and extend step.
type GenerationDeps struct {
	DB         *gorm.DB
	Log        *logger.Logger
	LLM        openai.Client
	Packs      packrepos.StudyPackRepo
	Windows    materialrepos.WindowRepo
	Flashcards packrepos.FlashcardRepo
	Quizzes    packrepos.QuizRepo
	MindMaps   packrepos.MindMapRepo
	// Graph is optional; nil skips the Neo4j mirror.
	Graph  *neo4jdb.Client
	Config *config.Config
}

func (d GenerationDeps) validate(step string) error {
	if d.DB == nil || d.Log == nil || d.LLM == nil || d.Packs == nil || d.Windows == nil || d.Config == nil {
		return fmt.Errorf("%s: missing deps", step)
	}
	return nil
}

func (d GenerationDeps) convergenceConfig() convergence.Config {
	return d.Config.Generation.Config
}

// clampTarget applies the configured default and ceiling.
func (d GenerationDeps) clampTarget(kind types.ArtifactKind, requested int) int {
	n := requested
	if n <= 0 {
		n = d.Config.Targets.For(kind)
	}
	if max := d.Config.Targets.Max; max > 0 && n > max {
		n = max
	}
	return n
}

// sourceWindows loads every window of the pack in generation order.
func sourceWindows(ctx context.Context, deps GenerationDeps, pack *types.StudyPack) ([]chunking.Window, error) {
	rows, err := deps.Windows.ListByPack(dbctx.Context{Ctx: ctx}, pack.ID)
	if err != nil {
		return nil, fmt.Errorf("load windows: %w", err)
	}
	return toWindows(rows), nil
}

// toWindows renumbers windows across documents so the generator sees one
// contiguous sequence.
func toWindows(rows []*types.MaterialWindow) []chunking.Window {
	out := make([]chunking.Window, 0, len(rows))
	for _, r := range rows {
		if r == nil || strings.TrimSpace(r.Content) == "" {
			continue
		}
		out = append(out, chunking.Window{
			OrderIndex:   len(out),
			Content:      r.Content,
			SizeEstimate: r.SizeEstimate,
			UnitStart:    r.UnitStart,
			UnitEnd:      r.UnitEnd,
		})
	}
	return out
}

func renderExcerpts(windows []chunking.Window, maxChars int) string {
	var b strings.Builder
	for i, w := range windows {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[window %d]\n%s", w.OrderIndex, truncateRunes(strings.TrimSpace(w.Content), maxChars))
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}

// complete renders name for in and performs one structured model call.
func complete(ctx context.Context, llm openai.Client, name prompts.PromptName, in prompts.Input) (map[string]any, error) {
	prompts.RegisterAll()
	p, err := prompts.Build(name, in)
	if err != nil {
		return nil, err
	}
	return llm.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
}

// rawLen is the length of the model's top-level array, for drop accounting.
func rawLen(obj map[string]any, key string) int {
	if arr, ok := obj[key].([]any); ok {
		return len(arr)
	}
	return 0
}

// normKey folds case, punctuation and whitespace so near-identical prompts
// compare equal.
func normKey(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(s)
	}
	return b.String()
}

// distinct returns the first limit distinct non-empty values, by normKey.
func distinct(values []string, limit int) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		k := normKey(v)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func mustJSON(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
