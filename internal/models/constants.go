package models

const (
	ThinkTag         = `(?s)<think>.*?</think>`
	ContextSeparator = " "
	FallbackAnswer   = "I cannot answer this question based on the provided document."
)

var (
	// AnswerPromptTemplate takes the fallback phrase, the joined context and the question.
	AnswerPromptTemplate = `Only using the following context (do not use your own knowledge), answer the question. If the answer is not strictly in the context, say '%s'

Context: %s

Question: %s

Answer:`
)
