package repo

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input        string
		defaultOwner string
		want         string
		wantDefault  bool
		wantErr      bool
	}{
		{"acme/widgets", "", "https://github.com/acme/widgets", false, false},
		{"widgets", "acme", "https://github.com/acme/widgets", true, false},
		{"widgets", "", "", false, true},
		{"https://github.com/acme/widgets.git", "", "https://github.com/acme/widgets", false, false},
		{"https://GitHub.com/acme/widgets/", "", "https://github.com/acme/widgets", false, false},
		{"git@github.com:acme/widgets.git", "", "https://github.com/acme/widgets", false, false},
		{"https://ghe.example.com/team/svc", "", "https://ghe.example.com/team/svc", false, false},
		{"https://github.com/acme", "", "", false, true},
		{"a/b/c", "", "", false, true},
		{"  ", "", "", false, true},
		{"/srv/mirrors/widgets.git", "", "/srv/mirrors/widgets.git", false, false},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.input, tt.defaultOwner)
		if (err != nil) != tt.wantErr {
			t.Errorf("Normalize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if got.URL != tt.want {
			t.Errorf("Normalize(%q).URL = %q, want %q", tt.input, got.URL, tt.want)
		}
		if got.OwnerDefaultApplied != tt.wantDefault {
			t.Errorf("Normalize(%q).OwnerDefaultApplied = %v, want %v", tt.input, got.OwnerDefaultApplied, tt.wantDefault)
		}
	}
}

func TestNormalizeAll_DedupesAndKeepsOrder(t *testing.T) {
	got, err := NormalizeAll([]string{
		"acme/b",
		"https://github.com/acme/a",
		"a",
		"git@github.com:acme/b.git",
	}, "acme")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://github.com/acme/b", "https://github.com/acme/a"}
	if len(got) != len(want) {
		t.Fatalf("got %d targets, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].URL != want[i] {
			t.Errorf("target[%d] = %q, want %q", i, got[i].URL, want[i])
		}
	}
}

func TestNormalizeAll_PropagatesError(t *testing.T) {
	if _, err := NormalizeAll([]string{"acme/a", "bare"}, ""); err == nil {
		t.Error("expected error for bare name without default owner")
	}
}

func TestOwnerName(t *testing.T) {
	owner, name, err := OwnerName("https://github.com/acme/widgets")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "acme" || name != "widgets" {
		t.Errorf("OwnerName = %q, %q", owner, name)
	}
	if _, _, err := OwnerName("/local/path"); err == nil {
		t.Error("expected error for local path")
	}
}

func TestDirName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://github.com/Acme/My_Widgets", "acme__my_widgets"},
		{"https://github.com/acme/widgets.go", "acme__widgets.go"},
		{"/tmp/x/remote.git", "remote"},
	}
	for _, tt := range tests {
		if got := DirName(tt.in); got != tt.want {
			t.Errorf("DirName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirName_DistinctRepositories(t *testing.T) {
	urls := []string{
		"https://github.com/acme/my_lib",
		"https://github.com/acme/my-lib",
		"https://github.com/acme-my/lib",
		"https://github.com/acme/my.lib",
	}
	seen := map[string]string{}
	for _, u := range urls {
		name := DirName(u)
		if prev, ok := seen[name]; ok {
			t.Errorf("DirName(%q) = DirName(%q) = %q", u, prev, name)
		}
		seen[name] = u
	}
}

func TestSame(t *testing.T) {
	if !Same("git@github.com:acme/w.git", "https://github.com/acme/w") {
		t.Error("ssh and https forms should be the same repository")
	}
	if Same("https://github.com/acme/w", "https://github.com/acme/x") {
		t.Error("different repositories reported as same")
	}
	if !Same("/tmp/remote.git", "/tmp/remote.git") {
		t.Error("identical local paths should match")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, owner, name string
	}{
		{"https://github.com/acme/widgets", "acme", "widgets"},
		{"/tmp/remotes/widgets.git", "", "widgets"},
	}
	for _, tt := range tests {
		owner, name := Slug(tt.in)
		if owner != tt.owner || name != tt.name {
			t.Errorf("Slug(%q) = %q, %q; want %q, %q", tt.in, owner, name, tt.owner, tt.name)
		}
	}
}
