package nl2sql

import (
	"fmt"
	"strings"
)

const (
	systemPreamble = "\nYou are an assistant that is an expert in generating %[1]s SQL queries.\n" +
		"Having the access to database content, generate a correct %[1]s SQL query for the given question.\n" +
		"### Database content ###\n    "
	// The whitespace runs are part of the fine-tuning prompt and must stay byte-exact.
	contextLeadIn = " An example of a similar question and the query that was generated " +
		"                                to answer it is the following " +
		"The following are some similar previous questions and their correct SQL queries from the database: " +
		"            \n"
)

// BuildPrompt assembles the system and user messages sent to the model.
// Example contents are interpolated verbatim.
func BuildPrompt(dialect, schemaContent, question string, examples []ContextExample) Prompt {
	system := fmt.Sprintf(systemPreamble, dialect) + schemaContent
	if examples == nil {
		return Prompt{System: system, User: question}
	}

	var user strings.Builder
	user.WriteString(question)
	user.WriteString(contextLeadIn)
	for _, example := range examples {
		fmt.Fprintf(&user, "Question: %s \nSQL: %s \n", example.Question, example.SQL)
	}
	return Prompt{System: system, User: user.String()}
}

func (p Prompt) Messages() []Message {
	return []Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
}
