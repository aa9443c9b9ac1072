package normalize

import "google.golang.org/genai"

// metadataSchema is the Gemini response schema shared by both
// normalizer passes: Phase 1 (raw extraction) and Phase 2
// (vocabulary-aware normalization) emit the same shape.
func metadataSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type: genai.TypeString,
				Description: "Short descriptive title for the content",
			},
			"summary": {
				Type: genai.TypeString,
				Description: "1-3 sentence summary of the content",
			},
			"subject_matter": {
				Type: genai.TypeArray,
				Description: "Domain-level topics the content covers",
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"entities": {
				Type: genai.TypeArray,
				Description: "Named entities mentioned (people, organizations, products)",
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"techniques": {
				Type: genai.TypeArray,
				Description: "Methods or practices discussed",
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"tools": {
				Type: genai.TypeArray,
				Description: "Software or products mentioned",
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"difficulty": {
				Type: genai.TypeString,
				Description: "One of: beginner, intermediate, advanced",
				Enum: []string{"beginner", "intermediate", "advanced"},
			},
			"style": {
				Type: genai.TypeString,
				Description: "One of: tutorial, analysis, discussion, demo, interview, news, review",
				Enum: []string{"tutorial", "analysis", "discussion", "demo", "interview", "news", "review"},
			},
		},
		Required: []string{"title", "summary", "subject_matter", "difficulty", "style"},
	}
}
