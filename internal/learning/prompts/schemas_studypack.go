package prompts

func FlashcardSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"front": StringSchema(),
		"back":  StringSchema(),
		"kind":  EnumSchema(FlashcardKindQA, FlashcardKindCloze),
		"topic": StringSchema(),
	})
}

func FlashcardsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"flashcards": ArrayOf(FlashcardSchema()),
	})
}

func QuizItemSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"question":    StringSchema(),
		"options":     StringArraySchema(),
		"answer":      StringSchema(),
		"explanation": StringSchema(),
		"topic":       StringSchema(),
	})
}

func QuizItemsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"items": ArrayOf(QuizItemSchema()),
	})
}

// MindMapSchema is a flat node arena: parent_index points at an earlier
// position in the same array, null only for the root at position 0.
func MindMapSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"nodes": ArrayOf(ObjectSchema(map[string]any{
			"title":        StringSchema(),
			"content":      StringSchema(),
			"parent_index": IntOrNullSchema(),
		})),
	})
}

// MindMapExtendSchema attaches every new node to a position in the supplied
// candidate list, never to another new node.
func MindMapExtendSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"nodes": ArrayOf(ObjectSchema(map[string]any{
			"title":            StringSchema(),
			"content":          StringSchema(),
			"parent_candidate": IntSchema(),
		})),
	})
}
