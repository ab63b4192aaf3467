package prompt

import (
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

// BuildCombined renders the prompt for a relational database and a tabular
// file queried together from one script.
func BuildCombined(question string, combined schema.Combined, opts Options) string {
	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectMySQL
	}
	sheets := sheetOrder(combined.Tabular, opts.SheetOrder)

	var b strings.Builder
	b.WriteString("You are a smart data assistant with access to two data sources.\n\n")
	fmt.Fprintf(&b, "### %s tables:\n", dialect)
	b.WriteString(renderNamed("Table", combined.Relational, combined.Relational.Names(), opts.MaxColumnsPerTable))
	b.WriteString("\n\n### Spreadsheet sheets:\n")
	b.WriteString(renderNamed("Sheet", combined.Tabular, sheets, opts.MaxColumnsPerTable))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, outputRules, "Python code", "code")
	b.WriteString("\n\n### Environment:\n")
	fmt.Fprintf(&b, "- All SQL targets a %s database through the bound connection conn.\n", dialect)
	b.WriteString("- Use pd.read_sql(\"SELECT ...\", conn) to query the database. Do not open other connections.\n")
	b.WriteString("- excel_data maps each sheet name to its DataFrame. Use excel_data['SheetName'] to access a sheet.\n")
	b.WriteString("- The sheets are also bound positionally:\n")
	b.WriteString(aliasLines(sheets))
	b.WriteString("\n\n### Rules:\n")
	b.WriteString("- ONLY use the tables, sheets and column names listed above. Do not invent new ones.\n")
	b.WriteString("- DO NOT use SHOW TABLES, DESCRIBE or any schema discovery.\n")
	b.WriteString("- Always call .reset_index() after groupby operations so grouped columns are visible in the output.\n")
	b.WriteString("- When both sources are involved, merge on a shared column (for example product_id). If none exists, use pd.concat or merge(..., how='cross').\n")
	fmt.Fprintf(&b, "- Always assign the final DataFrame to a variable called '%s'.\n\n", ResultVariable)
	b.WriteString(capabilities)
	b.WriteString("\n\n### User Query:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nReturn ONLY the Python code, nothing else.\n")
	return b.String()
}
