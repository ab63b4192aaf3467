package generator

import "testing"

func TestSanitizeStripsFormatting(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "sql fence", in: "```sql\nSELECT 1;\n```", want: "SELECT 1;"},
		{name: "python fence", in: "```python\nresult = df_0.head()\n```", want: "result = df_0.head()"},
		{name: "bare fence", in: "```\nSELECT 1\n```", want: "SELECT 1"},
		{name: "hash comments", in: "# load data\nresult = df_0\n  # trailing note", want: "result = df_0"},
		{name: "sql comments", in: "-- totals\nSELECT SUM(amount) FROM orders", want: "SELECT SUM(amount) FROM orders"},
		{name: "bold", in: "**SELECT** 1", want: "SELECT 1"},
		{name: "emphasis", in: "*Note* SELECT 1", want: "Note SELECT 1"},
		{name: "bullet", in: "* SELECT 1", want: "SELECT 1"},
		{name: "inline code", in: "`SELECT 1`", want: "SELECT 1"},
		{name: "count star", in: "SELECT COUNT(*) AS cnt FROM orders;", want: "SELECT COUNT(*) AS cnt FROM orders;"},
		{name: "multiplication", in: "SELECT price * qty, a*b*c FROM t", want: "SELECT price * qty, a*b*c FROM t"},
		{name: "select star", in: "SELECT * FROM `order items` LIMIT 5", want: "SELECT * FROM `order items` LIMIT 5"},
		{name: "whitespace", in: "\n\n  SELECT 1  \n", want: "SELECT 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"```sql\nSELECT 1;\n```",
		"*a* *b* *c*",
		"****x****",
		"`````sql\nSELECT 1\n`````",
		"# c\n-- d\n**e**\n* f\n`g`",
		"result = df_0.groupby('city')['revenue'].sum().reset_index()",
		"`` `x` ``",
		"",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
