package command

import "testing"

func TestParseClassification(t *testing.T) {
	cases := []struct {
		pattern string
		want    Class
	}{
		{"/bin/ls -al", PathArgStrict},
		{"/bin/ls", PathStrict},
		{"/bin/ls -*(a|l)", PathStrictArgWildcard},
		{"/bin/l* -l", PathWildcardArgStrict},
		{"/bin/l*", PathWildcard},
		{"/bin/l* -(l|a)*", PathArgWildcard},
		{"* -a", PathFullWildcardArgStrict},
		{"* -(a|l)", PathFullWildcardArgWildcard},
		{"*", PathFullWildcard},
		{"**", PathArgFullWildcard},
	}
	for _, c := range cases {
		got := Parse(c.pattern).Class
		if got != c.want {
			t.Errorf("Parse(%q).Class = %v, want %v", c.pattern, got, c.want)
		}
	}
}

func TestStarNeverMatchesWithArgs(t *testing.T) {
	p := Parse("*")
	if p.Matches("/bin/ls", "-l") {
		t.Fatalf("bare * pattern must not match a call with arguments")
	}
	if !p.Matches("/bin/ls", "") {
		t.Fatalf("bare * pattern must match a zero-arg call")
	}
}

func TestDoubleStarMatchesAnyArgs(t *testing.T) {
	p := Parse("**")
	if !p.Matches("/bin/ls", "-l -a /root") {
		t.Fatalf("** pattern must match any command with any arguments")
	}
}

func TestStrictPathRequiresExactMatch(t *testing.T) {
	p := Parse("/bin/ls -l")
	if !p.Matches("/bin/ls", "-l") {
		t.Fatalf("expected strict pattern to match identical invocation")
	}
	if p.Matches("/bin/ls", "-la") {
		t.Fatalf("strict args must not match a different literal")
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	resolved := "/usr/sbin/nginx"
	argv := []string{"nginx", "-c", "/etc/nginx.conf"}
	c1 := Canonical(resolved, argv)

	split := Split(c1)
	c2 := Canonical(split[0], split)
	if c1 != c2 {
		t.Fatalf("canonical form is not idempotent: %q != %q", c1, c2)
	}
}

func TestWildcardPrecedence(t *testing.T) {
	strict := Parse("/bin/ls -l")
	wildcard := Parse("/bin/ls *")
	if strict.Class >= wildcard.Class {
		t.Fatalf("strict pattern class %v should rank better (lower) than wildcard class %v", strict.Class, wildcard.Class)
	}
}
