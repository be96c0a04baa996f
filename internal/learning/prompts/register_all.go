package prompts

import "sync"

var registerOnce sync.Once

// RegisterAll registers every study-pack prompt. Safe to call more than once.
func RegisterAll() {
	registerOnce.Do(registerAll)
}

func registerAll() {
	excerpts := RequireNonEmpty("Excerpts", func(in Input) string { return in.Excerpts })
	count := RequirePositive("Count", func(in Input) int { return in.Count })

	// ---------- Fresh builds ----------

	RegisterSpec(Spec{
		Name:       PromptFlashcards,
		Version:    1,
		SchemaName: "flashcards",
		Schema:     FlashcardsSchema,
		System: `
You write study flashcards from source excerpts.
Every card must be answerable from the excerpts alone.
kind is "qa" for question/answer cards and "cloze" for fill-in-the-blank cards (front contains ____).
topic is a short reusable label (2-4 words) shared by related cards.
Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

EXCERPTS:
{{.Excerpts}}
{{if .ExistingItems}}
Cards already written (do not repeat them):
{{.ExistingItems}}
{{end}}{{if .Vocabulary}}
Topics already in use (reuse when they fit):
{{.Vocabulary}}
{{end}}
Write exactly {{.Count}} new flashcards.`,
		Validators: []Validator{excerpts, count},
	})

	RegisterSpec(Spec{
		Name:       PromptQuizItems,
		Version:    1,
		SchemaName: "quiz_items",
		Schema:     QuizItemsSchema,
		System: `
You write multiple-choice quiz questions from source excerpts.
Each item has exactly 4 distinct options; answer must be copied verbatim from options.
explanation says why the answer is correct, citing the excerpt content.
topic is a short reusable label (2-4 words).
Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

EXCERPTS:
{{.Excerpts}}
{{if .ExistingItems}}
Questions already written (do not repeat them):
{{.ExistingItems}}
{{end}}{{if .Vocabulary}}
Topics already in use (reuse when they fit):
{{.Vocabulary}}
{{end}}
Write exactly {{.Count}} new quiz items.`,
		Validators: []Validator{excerpts, count},
	})

	RegisterSpec(Spec{
		Name:       PromptMindMap,
		Version:    1,
		SchemaName: "mind_map",
		Schema:     MindMapSchema,
		System: `
You build a hierarchical concept map from source excerpts.
Output a flat list of nodes. nodes[0] is the single root and has parent_index null.
Every other node sets parent_index to the position of an EARLIER node in the same list.
Prefer depth: group details under the concept they refine.
Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

EXCERPTS:
{{.Excerpts}}
{{if .Vocabulary}}
Concepts already on the map (do not repeat them; your nodes[0] becomes a new branch):
{{.Vocabulary}}
{{end}}
Write exactly {{.Count}} nodes.`,
		Validators: []Validator{excerpts, count},
	})

	// ---------- Extensions ----------

	RegisterSpec(Spec{
		Name:       PromptFlashcardsExtend,
		Version:    1,
		SchemaName: "flashcards_extend",
		Schema:     FlashcardsSchema,
		System: `
You extend an existing flashcard deck from source excerpts.
Cover material the deck does not cover yet; never restate an existing card.
Reuse existing topic labels when a card belongs to them.
kind is "qa" or "cloze". Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

Existing topics:
{{.Vocabulary}}

Existing cards (sample):
{{.ExistingItems}}

EXCERPTS:
{{.Excerpts}}

Write exactly {{.Count}} additional flashcards.`,
		Validators: []Validator{excerpts, count},
	})

	RegisterSpec(Spec{
		Name:       PromptQuizItemsExtend,
		Version:    1,
		SchemaName: "quiz_items_extend",
		Schema:     QuizItemsSchema,
		System: `
You extend an existing multiple-choice quiz from source excerpts.
Never restate an existing question. Each item has exactly 4 distinct options
and answer is copied verbatim from options. Reuse existing topic labels.
Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

Existing topics:
{{.Vocabulary}}

Existing questions (sample):
{{.ExistingItems}}

EXCERPTS:
{{.Excerpts}}

Write exactly {{.Count}} additional quiz items.`,
		Validators: []Validator{excerpts, count},
	})

	RegisterSpec(Spec{
		Name:       PromptMindMapExtend,
		Version:    1,
		SchemaName: "mind_map_extend",
		Schema:     MindMapExtendSchema,
		System: `
You deepen an existing concept map from source excerpts.
Attach each new node under one of the CANDIDATES by its position in that list (parent_candidate).
New nodes never reference each other. Prefer attaching under leaves to deepen the map.
Do not repeat concepts already on the map. Return JSON only.`,
		User: `
Study pack: {{.PackTitle}}

Concepts already on the map:
{{.Vocabulary}}

CANDIDATES (JSON, position = parent_candidate):
{{.CandidatesJSON}}

EXCERPTS:
{{.Excerpts}}

Write exactly {{.Count}} new nodes.`,
		Validators: []Validator{
			excerpts,
			count,
			RequireNonEmpty("CandidatesJSON", func(in Input) string { return in.CandidatesJSON }),
		},
	})
}
