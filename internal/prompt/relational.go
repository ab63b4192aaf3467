package prompt

import (
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/schema"
)

const mysqlPivotExamples = `### Examples:
1. Pivoting a column into a crosstab report:
   SET @sql = '';
   SELECT GROUP_CONCAT(DISTINCT CONCAT('SUM(IF(` + "`ColumnName`" + ` = ''', ` + "`ColumnName`" + `, ''', Invoice_Qty, 0)) AS ', CONCAT('` + "`" + `', ` + "`ColumnName`" + `, '` + "`" + `'))) INTO @sql FROM table_name;
   SET @sql = CONCAT('SELECT Category1, Category2, ', @sql, ' FROM table_name GROUP BY Category1, Category2');
   PREPARE stmt FROM @sql;
   EXECUTE stmt;
   DEALLOCATE PREPARE stmt;

2. Pivoting with CASE WHEN:
   SELECT ` + "`GroupByColumn1`" + `,
          SUM(CASE WHEN ` + "`PivotColumn`" + ` = 'Value1' THEN ` + "`ValueColumn`" + ` ELSE 0 END) AS ` + "`Value1`" + `,
          SUM(CASE WHEN ` + "`PivotColumn`" + ` = 'Value2' THEN ` + "`ValueColumn`" + ` ELSE 0 END) AS ` + "`Value2`" + `
   FROM table_name
   GROUP BY ` + "`GroupByColumn1`" + `;`

const postgresPivotExamples = `### Examples:
1. Pivoting with conditional aggregation:
   SELECT "GroupByColumn1",
          SUM(CASE WHEN "PivotColumn" = 'Value1' THEN "ValueColumn" ELSE 0 END) AS "Value1",
          SUM("ValueColumn") FILTER (WHERE "PivotColumn" = 'Value2') AS "Value2"
   FROM table_name
   GROUP BY "GroupByColumn1";

2. Concatenating distinct values per group:
   SELECT "Category", STRING_AGG(DISTINCT "Item", ', ') AS items
   FROM table_name
   GROUP BY "Category";`

func buildRelational(question string, description schema.Description, opts Options) string {
	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectMySQL
	}
	quoting := "Enclose table and column names in backticks (`) when they contain spaces or reserved keywords."
	pivot := "use GROUP_CONCAT(DISTINCT ...) to build the pivoted column list and SUM(IF(...)) or SUM(CASE WHEN ...) per value"
	examples := mysqlPivotExamples
	if dialect == DialectPostgres {
		quoting = `Enclose table and column names in double quotes (") when they contain capitals, spaces or reserved keywords.`
		pivot = "use SUM(CASE WHEN ...) or aggregate FILTER (WHERE ...) per value, and STRING_AGG for concatenation"
		examples = postgresPivotExamples
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert SQL assistant. Convert the following natural language query into a valid %s query.\n\n", dialect)
	b.WriteString("### Database Schema:\n")
	b.WriteString(renderNamed("Table", description, description.Names(), opts.MaxColumnsPerTable))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, outputRules, "SQL query", "query")
	b.WriteString("\n\n### Query Rules:\n")
	b.WriteString("- Use SUM(), COUNT() and AVG() for total, count or average calculations.\n")
	b.WriteString("- " + quoting + "\n")
	fmt.Fprintf(&b, "- Limit results to %d rows unless the question specifies otherwise.\n", rowLimit(opts))
	b.WriteString("- For pivot or crosstab requests, " + pivot + ".\n")
	b.WriteString("- When several tables are involved, determine the JOIN conditions from matching key columns. Prefer joins over subqueries.\n")
	b.WriteString("- For date filtering, assume the date column is named like created_at or date unless the schema says otherwise.\n")
	b.WriteString("- For latest or most recent records, use ORDER BY ... DESC with LIMIT 1.\n")
	b.WriteString("- Only read data. Do not modify tables.\n\n")
	b.WriteString(examples)
	b.WriteString("\n\n### User Query:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nReturn ONLY the SQL query, nothing else.\n")
	return b.String()
}
