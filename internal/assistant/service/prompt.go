package service

import (
	"fmt"
	"strings"
)

const notePromptTemplate = `You are a helpful AI assistant.

Use the following note titled %q to answer the user's question.
Answer clearly and simply.
If the answer is not in the note, say you cannot find it in the note.

NOTE CONTENT:
%s

USER QUESTION:
%s
`

// composePrompt grounds the question in a note when one is attached and
// passes it through unchanged otherwise.
func composePrompt(message, noteContext, noteTitle string) string {
	if strings.TrimSpace(noteContext) == "" {
		return message
	}
	title := strings.TrimSpace(noteTitle)
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf(notePromptTemplate, title, strings.TrimSpace(noteContext), message)
}
