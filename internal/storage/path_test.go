package storage

import "testing"

func TestSchemaRecordKey(t *testing.T) {
	key, err := SchemaRecordKey("relational")
	if err != nil {
		t.Fatalf("SchemaRecordKey() error = %v", err)
	}
	if key != "schema_relational.json" {
		t.Fatalf("SchemaRecordKey() = %q", key)
	}
}

func TestSchemaRecordKeyRejectsInvalidKind(t *testing.T) {
	for _, kind := range []string{"", "../oops", "a/b", "-lead"} {
		if _, err := SchemaRecordKey(kind); err == nil {
			t.Fatalf("SchemaRecordKey(%q) expected error", kind)
		}
	}
}

func TestCleanKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/schema_tabular.json", "schema_tabular.json"},
		{" cache//schema_x.json ", "cache/schema_x.json"},
		{"cache/./old/../schema.json", "cache/schema.json"},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("CleanKey(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	for _, key := range []string{"", "/", "..", "../etc/passwd", "a/../../b"} {
		if _, err := CleanKey(key); err == nil {
			t.Fatalf("CleanKey(%q) expected error", key)
		}
	}
}

func TestCleanPrefix(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", " /nlquery/prod/ ": "nlquery/prod", "a/./b": "a/b"} {
		if got := CleanPrefix(in); got != want {
			t.Fatalf("CleanPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
