package diff

import (
	"errors"
	"sort"
	"testing"
)

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const gitDiff = `diff --git a/src/main.go b/src/main.go
index 83db48f..bf269f4 100644
--- a/src/main.go
+++ b/src/main.go
@@ -1,3 +1,4 @@
 package main
 
+import "fmt"
 func main() {}
diff --git a/docs/old.md b/docs/old.md
deleted file mode 100644
index e69de29..0000000
--- a/docs/old.md
+++ /dev/null
@@ -1 +0,0 @@
-gone
diff --git a/NEW b/NEW
new file mode 100644
--- /dev/null
+++ b/NEW
@@ -0,0 +1,2 @@
+hello
+world
\ No newline at end of file
`

func TestChangedFiles_GitDiff(t *testing.T) {
	files, err := ChangedFiles(gitDiff)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"NEW", "docs/old.md", "src/main.go"}
	if got := sortedKeys(files); !equalStrings(got, want) {
		t.Errorf("ChangedFiles = %v, want %v", got, want)
	}
}

func TestChangedFiles_PlainUnifiedWithTimestamps(t *testing.T) {
	text := "--- a/lib/util.py\t2024-01-01 10:00:00\n" +
		"+++ b/lib/util.py\t2024-01-02 10:00:00\n" +
		"@@ -10,2 +10,2 @@ def helper():\n" +
		"-    return 1\n" +
		"+    return 2\n" +
		"     pass\n"
	files, err := ChangedFiles(text)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if got := sortedKeys(files); !equalStrings(got, []string{"lib/util.py"}) {
		t.Errorf("ChangedFiles = %v", got)
	}
}

func TestChangedFiles_RenameWithoutHunks(t *testing.T) {
	text := "diff --git a/old/name.go b/new/name.go\n" +
		"similarity index 100%\n" +
		"rename from old/name.go\n" +
		"rename to new/name.go\n"
	files, err := ChangedFiles(text)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	want := []string{"new/name.go", "old/name.go"}
	if got := sortedKeys(files); !equalStrings(got, want) {
		t.Errorf("ChangedFiles = %v, want %v", got, want)
	}
}

func TestChangedFiles_BinaryAndQuoted(t *testing.T) {
	text := "diff --git \"a/assets/my logo.png\" \"b/assets/my logo.png\"\n" +
		"index 1111111..2222222 100644\n" +
		"Binary files \"a/assets/my logo.png\" and \"b/assets/my logo.png\" differ\n"
	files, err := ChangedFiles(text)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if got := sortedKeys(files); !equalStrings(got, []string{"assets/my logo.png"}) {
		t.Errorf("ChangedFiles = %v", got)
	}
}

func TestChangedFiles_Empty(t *testing.T) {
	files, err := ChangedFiles("")
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("ChangedFiles(\"\") = %v, want empty", sortedKeys(files))
	}
}

func TestChangedFiles_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "missing +++",
			text: "--- a/x\nnot a header\n",
		},
		{
			name: "--- at end of input",
			text: "--- a/x\n",
		},
		{
			name: "hunk before any file",
			text: "@@ -1 +1 @@\n-a\n+b\n",
		},
		{
			name: "bad hunk header",
			text: "--- a/x\n+++ b/x\n@@ -one +1 @@\n",
		},
		{
			name: "truncated hunk",
			text: "--- a/x\n+++ b/x\n@@ -1,3 +1,3 @@\n a\n",
		},
		{
			name: "garbage inside hunk",
			text: "--- a/x\n+++ b/x\n@@ -1,2 +1,2 @@\n a\n?? b\n",
		},
		{
			name: "prose only",
			text: "please build this\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChangedFiles(tt.text)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestChangedFiles_CRLF(t *testing.T) {
	text := "diff --git a/src/main.go b/src/main.go\r\n" +
		"--- a/src/main.go\r\n" +
		"+++ b/src/main.go\r\n" +
		"@@ -1 +1 @@\r\n" +
		"-a\r\n" +
		"+b\r\n"
	files, err := ChangedFiles(text)
	if err != nil {
		t.Fatalf("ChangedFiles: %v", err)
	}
	if got := sortedKeys(files); !equalStrings(got, []string{"src/main.go"}) {
		t.Errorf("ChangedFiles = %q, want [src/main.go]", got)
	}
	if !MatchesWhitelist(files, []string{"src/*.go"}) {
		t.Error("CRLF patch should match src/*.go")
	}
}

func TestMatchesWhitelist(t *testing.T) {
	set := func(paths ...string) map[string]struct{} {
		m := make(map[string]struct{})
		for _, p := range paths {
			m[p] = struct{}{}
		}
		return m
	}

	tests := []struct {
		name     string
		paths    map[string]struct{}
		patterns []string
		want     bool
	}{
		{"empty whitelist matches", set("docs/readme.md"), nil, true},
		{"docs only against src", set("docs/readme.md"), []string{"src/**"}, false},
		{"nested src file", set("docs/readme.md", "src/a/b/c.go"), []string{"src/**"}, true},
		{"top-level glob", set("go.mod"), []string{"*.mod"}, true},
		{"single star stays in dir", set("src/a/b.go"), []string{"src/*.go"}, false},
		{"any of several patterns", set("Makefile"), []string{"src/**", "Makefile"}, true},
		{"invalid pattern ignored", set("src/a.go"), []string{"[", "src/*.go"}, true},
		{"no paths", set(), []string{"src/**"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesWhitelist(tt.paths, tt.patterns); got != tt.want {
				t.Errorf("MatchesWhitelist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWhitelist(t *testing.T) {
	got := ParseWhitelist("src/**\n\n  docs/*.md  \n")
	want := []string{"src/**", "docs/*.md"}
	if !equalStrings(got, want) {
		t.Errorf("ParseWhitelist = %v, want %v", got, want)
	}
	if got := ParseWhitelist(""); len(got) != 0 {
		t.Errorf("ParseWhitelist(\"\") = %v, want empty", got)
	}
}
