package models

import "github.com/tmc/langchaingo/schema"

// Response is what a retrieval chain returns for one question.
type Response struct {
	Input   string            `json:"input"`
	Context []schema.Document `json:"context"`
	Answer  string            `json:"answer"`
}

// Sources returns the distinct source URLs of the context documents, in order.
func (r *Response) Sources() []string {
	var sources []string
	seen := make(map[string]bool)

	for _, doc := range r.Context {
		src, _ := doc.Metadata["source"].(string)
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}

	return sources
}
