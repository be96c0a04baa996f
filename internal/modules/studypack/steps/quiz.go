package steps

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/learning/prompts"
	"github.com/yungbote/neurobridge-studygen/internal/observability"
	"github.com/yungbote/neurobridge-studygen/internal/platform/dbctx"
)

// BuildQuizItems generates a fresh quiz and replaces the pack's live one.
func BuildQuizItems(ctx context.Context, deps GenerationDeps, in BuildInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindQuiz}
	if err := deps.validate("build_quiz_items"); err != nil {
		return out, err
	}
	if deps.Quizzes == nil {
		return out, fmt.Errorf("build_quiz_items: missing deps")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "build_quiz_items", "study_pack_id", pack.ID.String())
	target := deps.clampTarget(types.KindQuiz, in.Target)

	request := quizRequest(deps, pack, prompts.PromptQuizItems, nil, nil)
	res, err := convergence.Generate(ctx, "quiz_items", windows, target, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	var quiz *types.Quiz
	res.Outcome.Inserted = len(res.Records)
	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := deps.Quizzes.SoftDeleteLiveQuiz(dbc, pack.ID); err != nil {
			return err
		}
		quiz, err = deps.Quizzes.CreateQuiz(dbc, pack.ID)
		if err != nil {
			return err
		}
		rows := make([]*types.QuizItem, len(res.Records))
		for i, r := range res.Records {
			rows[i] = quizRow(quiz, r, i)
		}
		if _, err := deps.Quizzes.InsertItems(dbc, rows); err != nil {
			return err
		}
		return deps.Quizzes.SetOutcome(dbc, quiz.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("quiz_items", len(res.Records), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindQuiz), len(res.Records))

	log.Info("quiz built", "quiz_id", quiz.ID.String(), "items", len(res.Records), "target", target, "state", res.Outcome.State)
	return ArtifactOutput{Kind: types.KindQuiz, InstanceID: quiz.ID, Outcome: res.Outcome}, nil
}

// ExtendQuizItems appends items to the live quiz, skipping questions that
// already exist.
func ExtendQuizItems(ctx context.Context, deps GenerationDeps, in ExtendInput) (ArtifactOutput, error) {
	out := ArtifactOutput{Kind: types.KindQuiz}
	if err := deps.validate("extend_quiz_items"); err != nil {
		return out, err
	}
	if deps.Quizzes == nil {
		return out, fmt.Errorf("extend_quiz_items: missing deps")
	}
	if in.Count <= 0 {
		return out, fmt.Errorf("extend_quiz_items: count must be > 0")
	}
	pack, err := deps.Packs.GetByID(dbctx.Context{Ctx: ctx}, in.StudyPackID)
	if err != nil {
		return out, err
	}
	quiz, err := deps.Quizzes.GetLiveQuiz(dbctx.Context{Ctx: ctx}, pack.ID)
	if err != nil {
		return out, err
	}
	existing, err := deps.Quizzes.ListItems(dbctx.Context{Ctx: ctx}, quiz.ID)
	if err != nil {
		return out, err
	}
	windows, err := sourceWindows(ctx, deps, pack)
	if err != nil {
		return out, err
	}
	log := deps.Log.With("step", "extend_quiz_items", "study_pack_id", pack.ID.String(), "quiz_id", quiz.ID.String())

	topics := make([]string, 0, len(existing))
	questions := make([]string, 0, len(existing))
	seen := make(map[string]bool, len(existing))
	nextOrder := 0
	for _, q := range existing {
		topics = append(topics, q.Topic)
		questions = append(questions, q.Question)
		seen[normKey(q.Question)] = true
		if q.OrderIndex >= nextOrder {
			nextOrder = q.OrderIndex + 1
		}
	}
	vocab := distinct(topics, deps.Config.Extension.VocabularyCap)
	sample := chunking.Sample(questions, deps.Config.Extension.ExistingSampleCap)
	count := deps.clampTarget(types.KindQuiz, in.Count)

	request := quizRequest(deps, pack, prompts.PromptQuizItemsExtend, vocab, sample)
	res, err := convergence.Generate(ctx, "quiz_items_extend", windows, count, deps.convergenceConfig(), request, log)
	if err != nil {
		return out, err
	}

	rows := make([]*types.QuizItem, 0, len(res.Records))
	for _, r := range res.Records {
		k := normKey(r.Question)
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, quizRow(quiz, r, nextOrder+len(rows)))
	}
	res.Outcome.Inserted = len(rows)

	err = deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := deps.Quizzes.InsertItems(dbc, rows); err != nil {
			return err
		}
		return deps.Quizzes.SetOutcome(dbc, quiz.ID, mustJSON(res.Outcome))
	})
	if err != nil {
		return out, convergence.PersistenceFailure("quiz_items_extend", len(rows), err)
	}
	observability.Current().AddRecordsWritten(string(types.KindQuiz), len(rows))

	log.Info("quiz extended", "produced", res.Outcome.Produced, "inserted", len(rows), "state", res.Outcome.State)
	return ArtifactOutput{Kind: types.KindQuiz, InstanceID: quiz.ID, Outcome: res.Outcome}, nil
}

func quizRequest(deps GenerationDeps, pack *types.StudyPack, name prompts.PromptName, vocab, existing []string) convergence.RequestFunc[prompts.QuizItemOut] {
	return func(ctx context.Context, a convergence.Attempt[prompts.QuizItemOut]) ([]prompts.QuizItemOut, error) {
		prior := make([]string, 0, len(existing)+len(a.Accumulated))
		prior = append(prior, existing...)
		seen := make(map[string]bool, len(a.Accumulated))
		for _, r := range a.Accumulated {
			prior = append(prior, r.Question)
			seen[normKey(r.Question)] = true
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
		items, err := prompts.DecodeQuizItems(obj)
		if err != nil {
			return nil, err
		}
		kept := items[:0]
		for _, q := range items {
			k := normKey(q.Question)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			kept = append(kept, q)
		}
		observability.ReportDroppedRecords(ctx, deps.Log, string(types.KindQuiz), rawLen(obj, "items"), len(kept))
		return kept, nil
	}
}

func quizRow(quiz *types.Quiz, r prompts.QuizItemOut, order int) *types.QuizItem {
	return &types.QuizItem{
		QuizID:      quiz.ID,
		StudyPackID: quiz.StudyPackID,
		OrderIndex:  order,
		Question:    strings.TrimSpace(r.Question),
		Options:     datatypes.JSONSlice[string](r.Options),
		Answer:      r.Answer,
		Explanation: r.Explanation,
		Topic:       r.Topic,
	}
}
