package generator

// Request is the input of a single post generation.
type Request struct {
	Topic string
	// SearchResults is passed through verbatim; an empty value is allowed and
	// only degrades the output.
	SearchResults string
}

// Draft is the post produced by the model, in Markdown.
type Draft struct {
	Title    string
	Digest   string
	Markdown string
}
