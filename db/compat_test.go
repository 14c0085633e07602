package db

import "testing"

func TestRewritePlaceholders(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"no placeholders", "SELECT 1", "SELECT 1"},
		{"single", "SELECT * FROM videos WHERE id = ?", "SELECT * FROM videos WHERE id = $1"},
		{"multiple", "INSERT INTO saved_videos (user_id, video_id) VALUES (?, ?)", "INSERT INTO saved_videos (user_id, video_id) VALUES ($1, $2)"},
		{"question in string literal", "SELECT '?' AS q FROM videos WHERE id = ?", "SELECT '?' AS q FROM videos WHERE id = $1"},
		{"escaped quote", "SELECT 'it''s' WHERE x = ?", "SELECT 'it''s' WHERE x = $1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := rewritePlaceholders(tc.in); got != tc.want {
				t.Errorf("rewritePlaceholders(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompatDBRewriteDialects(t *testing.T) {
	q := "SELECT * FROM videos WHERE id = ?"

	sqlite := &CompatDB{Dialect: DialectSQLite}
	if got := sqlite.rewrite(q); got != q {
		t.Errorf("sqlite rewrite changed query: %q", got)
	}

	pg := &CompatDB{Dialect: DialectPostgres}
	if got := pg.rewrite(q); got != "SELECT * FROM videos WHERE id = $1" {
		t.Errorf("postgres rewrite = %q", got)
	}
}

func TestBeginTxSQL(t *testing.T) {
	if got := (&CompatDB{Dialect: DialectSQLite}).BeginTxSQL(); got != "BEGIN IMMEDIATE" {
		t.Errorf("sqlite BeginTxSQL = %q", got)
	}
	if got := (&CompatDB{Dialect: DialectPostgres}).BeginTxSQL(); got != "BEGIN" {
		t.Errorf("postgres BeginTxSQL = %q", got)
	}
}
