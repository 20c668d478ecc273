package generator

import (
	"fmt"
)

// Prompt is the system instruction and user message sent to the model.
type Prompt struct {
	System string
	User   string
}

const blogSystemPrompt = "You are a blog writer. Reply with the post in Markdown only, starting with a level-one heading as the title. Do not add explanations before or after the post."

// BuildBlogPrompt composes the single instruction used to write a post from search results.
func BuildBlogPrompt(req Request) Prompt {
	user := fmt.Sprintf(
		"Write an engaging blog post about the topic: %s based on the search results: %s Use emojis and make it interesting.",
		req.Topic, req.SearchResults,
	)
	return Prompt{
		System: blogSystemPrompt,
		User:   user,
	}
}
