package prompts

type PromptName string

const (
	// Fresh builds
	PromptFlashcards PromptName = "flashcards"
	PromptQuizItems  PromptName = "quiz_items"
	PromptMindMap    PromptName = "mind_map"

	// Incremental extension of a live artifact
	PromptFlashcardsExtend PromptName = "flashcards_extend"
	PromptQuizItemsExtend  PromptName = "quiz_items_extend"
	PromptMindMapExtend    PromptName = "mind_map_extend"
)
