package prompt

import (
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

// BuildDescribe asks for a markdown overview of a schema and five example
// questions.
func BuildDescribe(description schema.Description, sourceType string) string {
	var b strings.Builder
	b.WriteString("You are a database expert assistant. Analyze the following database schema and provide:\n")
	b.WriteString("1. A clear description of the database structure\n")
	b.WriteString("2. 5 relevant natural language queries that could be asked about this data\n")
	b.WriteString("3. For each query, explain what information it would provide\n\n")
	b.WriteString("Database Type: " + sourceType + "\n\n")
	b.WriteString("Schema:\n")
	for _, name := range description.Names() {
		b.WriteString("### " + name + "\n")
		b.WriteString("Columns:\n")
		for _, column := range description[name] {
			b.WriteString("- " + column + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Format your response in markdown with clear sections.\n")
	return b.String()
}
