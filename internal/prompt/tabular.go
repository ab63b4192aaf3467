package prompt

import (
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

// capabilities lists what the script runtime accepts. Anything outside it is
// rejected at execution time.
const capabilities = `### Supported operations (anything else fails):
- Statements: assignments, df['col'] = ..., print(...). import pandas as pd / import numpy as np are accepted and ignored.
- No loops, no def, no lambda, no other imports.
- Builtins: len, str, int, float, round, abs, pd.merge, pd.concat.
- DataFrame: df['c'], df[['a', 'b']], df[mask], groupby(...)[...].sum/mean/count/min/max/median/nunique/size/agg, reset_index, sort_values, head, nlargest, nsmallest, query, dropna, drop_duplicates, rename, merge, fillna, columns, empty, shape.
- Series: sum, mean, min, max, count, median, std, nunique, value_counts, unique, round, isin, isna, notna, between, .str.contains/lower/upper/startswith/endswith/strip, .dt.year/month/day.`

const tabularRules = `### Query Rules:
- For "total" or "sum" questions by a category, use .groupby() followed by .sum().
- Always keep the category column in the result so the grouping is visible.
- Always call .reset_index() after groupby operations so grouped columns are visible in the output.
- For filtering, use .query() or boolean indexing.
- Handle missing data with .dropna(subset=[...]) when necessary.`

func buildTabular(question string, description schema.Description, opts Options) string {
	names := sheetOrder(description, opts.SheetOrder)

	var b strings.Builder
	b.WriteString("You are an expert data analyst. Convert the following natural language query into executable pandas code for spreadsheet data.\n\n")
	b.WriteString("### Data Structure:\n")
	fmt.Fprintf(&b, "- The file has %d sheets: %s\n", len(names), quoteList(names))
	b.WriteString("- Schema details:\n")
	b.WriteString(renderNamed("Sheet", description, names, opts.MaxColumnsPerTable))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, outputRules, "pandas code", "code")
	b.WriteString("\n\n### Important Instructions:\n")
	b.WriteString("1. The data is already loaded as follows:\n")
	b.WriteString("   excel_data = {sheet name: DataFrame}\n")
	b.WriteString(aliasLines(names))
	b.WriteString("\n")
	b.WriteString("2. Use ONLY the variable names provided above (df_0, df_1, etc.) in your code.\n")
	b.WriteString("3. DO NOT assume variables named after the data exist. Use the numbered df variables.\n")
	fmt.Fprintf(&b, "4. Store the final answer in a variable called '%s'.\n", ResultVariable)
	b.WriteString("5. print() output is shown to the user when no result is assigned.\n\n")
	b.WriteString(tabularRules)
	b.WriteString("\n\n")
	b.WriteString(capabilities)
	b.WriteString("\n\n### User Query:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nReturn ONLY the pandas code, nothing else.\n")
	return b.String()
}
