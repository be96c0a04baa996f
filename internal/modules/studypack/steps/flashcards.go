package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
)

type BuildInput struct {
	StudyPackID uuid.UUID
	// Target <= 0 uses the configured default for the kind.
	Target int
}

type ExtendInput struct {
	StudyPackID uuid.UUID
	Count       int
}

// ArtifactOutput identifies the live instance a step wrote to.
type ArtifactOutput struct {
	Kind       types.ArtifactKind  `json:"kind"`
	InstanceID uuid.UUID           `json:"instance_id"`
	Outcome    convergence.Outcome `json:"outcome"`
}

// BuildFlashcards generates a fresh deck and replaces the pack's live one.
func BuildFlashcards(ctx context.Context, deps GenerationDeps, in BuildInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindFlashcards}
	if err := deps.validate("build_flashcards"); err != nil {
		return out, err
	}
	if deps.Flashcards == nil {
		return out, fmt.Errorf("build_flashcards: missing deps")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "build_flashcards", "study_pack_id", pack.ID.String())
	target := deps.clampTarget(types.KindFlashcards, in.Target)

	request := flashcardRequest(deps, pack, prompts.PromptFlashcards, nil, nil)
	res, err := convergence.Generate(ctx, "flashcards", windows, target, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	var deck *types.FlashcardDeck
	res.Outcome.Inserted = len(res.Records)
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := deps.Flashcards.SoftDeleteLiveDeck(dbc, pack.ID); err != nil {
			return err
		}
		deck, err = deps.Flashcards.CreateDeck(dbc, pack.ID)
		if err != nil {
			return err
		}
		rows := make([]*types.Flashcard, len(res.Records))
		for i, r := range res.Records {
			rows[i] = flashcardRow(deck, r, i)
		}
		if _, err := deps.Flashcards.InsertCards(dbc, rows); err != nil {
			return err
		}
		return deps.Flashcards.SetOutcome(dbc, deck.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("flashcards", len(res.Records), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindFlashcards), len(res.Records))

	log.Info("flashcard deck built", "deck_id", deck.ID.String(), "cards", len(res.Records), "target", target, "state", res.Outcome.State)
	return ArtifactOutput{Kind: types.KindFlashcards, InstanceID: deck.ID, Outcome: res.Outcome}, nil
}

// ExtendFlashcards appends cards to the live deck. Generated cards whose front
// matches an existing card are not inserted.
func ExtendFlashcards(ctx context.Context, deps GenerationDeps, in ExtendInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindFlashcards}
	if err := deps.validate("extend_flashcards"); err != nil {
		return out, err
	}
	if deps.Flashcards == nil {
		return out, fmt.Errorf("extend_flashcards: missing deps")
	}
	if in.Count <= 0 {
		return out, fmt.Errorf("extend_flashcards: count must be > 0")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	deck, err := deps.Flashcards.GetLiveDeck(dbctx.Context{Ctx: ctx}, pack.ID)
	if err != nil {
		return out, err
	}
	existing, err := deps.Flashcards.ListCards(dbctx.Context{Ctx: ctx}, deck.ID)
	if err != nil {
		return out, err
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "extend_flashcards", "study_pack_id", pack.ID.String(), "deck_id", deck.ID.String())

	topics := make([]string, 0, len(existing))
	fronts := make([]string, 0, len(existing))
	seen := make(map[string]bool, len(existing))
	nextOrder := 0
	for _, c := range existing {
		topics = append(topics, c.Topic)
		fronts = append(fronts, c.Front)
		seen[normKey(c.Front)] = true
		if c.OrderIndex >= nextOrder {
			nextOrder = c.OrderIndex + 1
		}
	}
	vocab := distinct(topics, deps.Config.Extension.VocabularyCap)
	sample := chunking.Sample(fronts, deps.Config.Extension.ExistingSampleCap)
	count := deps.clampTarget(types.KindFlashcards, in.Count)

	request := flashcardRequest(deps, pack, prompts.PromptFlashcardsExtend, vocab, sample)
	res, err := convergence.Generate(ctx, "flashcards_extend", windows, count, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	rows := make([]*types.Flashcard, 0, len(res.Records))
	for _, r := range res.Records {
		k := normKey(r.Front)
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, flashcardRow(deck, r, nextOrder+len(rows)))
	}
	res.Outcome.Inserted = len(rows)

	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := deps.Flashcards.InsertCards(dbc, rows); err != nil {
			return err
		}
		return deps.Flashcards.SetOutcome(dbc, deck.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("flashcards_extend", len(rows), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindFlashcards), len(rows))

	log.Info("flashcard deck extended", "produced", res.Outcome.Produced, "inserted", len(rows), "state", res.Outcome.State)
	return ArtifactOutput{Kind: types.KindFlashcards, InstanceID: deck.ID, Outcome: res.Outcome}, nil
}

// flashcardRequest builds the per-attempt model call. Cards repeating an
// earlier card of the same run are dropped with the malformed ones.
func flashcardRequest(deps GenerationDeps, pack *types.StudyPack, name prompts.PromptName, vocab, existing []string) convergence.RequestFunc[prompts.FlashcardOut] {
	return func(ctx context.Context, a convergence.Attempt[prompts.FlashcardOut]) ([]prompts.FlashcardOut, error) {
		prior := make([]string, 0, len(existing)+len(a.Accumulated))
		prior = append(prior, existing...)
		seen := make(map[string]bool, len(a.Accumulated))
		for _, r := range a.Accumulated {
			prior = append(prior, r.Front)
			seen[normKey(r.Front)] = true
		}
		obj, err := complete(ctx, deps.LLM, name, prompts.Input{
			PackTitle:     pack.Title,
			Excerpts:      renderExcerpts(a.Windows, deps.Config.Generation.ExcerptMaxChars),
			Count:         a.Deficit,
			Vocabulary:    bulletList(vocab),
			ExistingItems: bulletList(chunking.Sample(prior, deps.Config.Extension.ExistingSampleCap)),
		})
		if err != nil {
			return nil, err
		}
		cards, err := prompts.DecodeFlashcards(obj)
		if err != nil {
			return nil, err
		}
		kept := cards[:0]
		for _, c := range cards {
			k := normKey(c.Front)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			kept = append(kept, c)
		}
		observability.ReportDroppedRecords(ctx, deps.Log, string(types.KindFlashcards), rawLen(obj, "flashcards"), len(kept))
		return kept, nil
	}
}

func flashcardRow(deck *types.FlashcardDeck, r prompts.FlashcardOut, order int) *types.Flashcard {
	return &types.Flashcard{
		DeckID:      deck.ID,
		StudyPackID: deck.StudyPackID,
		OrderIndex:  order,
		Front:       strings.TrimSpace(r.Front),
		Back:        strings.TrimSpace(r.Back),
		Kind:        prompts.NormalizeFlashcardKind(r.Kind),
		Topic:       strings.TrimSpace(r.Topic),
	}
}
