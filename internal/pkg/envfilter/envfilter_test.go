package envfilter

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestFilterKeepList(t *testing.T) {
	env := []string{"HOME=/root", "LC_ALL=C", "PATH=/usr/bin"}
	policy := Policy{Keep: []string{"HOME", "LC_*"}, Path: "/usr/local/sbin:/usr/sbin"}
	got := Filter(env, policy)
	want := []string{"HOME=/root", "LC_ALL=C", "PATH=/usr/local/sbin:/usr/sbin"}
	assert.DeepEqual(t, got, want)
}

func TestFilterCheckListRejectsUnsafeValue(t *testing.T) {
	env := []string{"LD_PRELOAD=/evil/lib.so"}
	policy := Policy{Check: []string{"LD_PRELOAD"}, Path: "/usr/bin"}
	got := Filter(env, policy)
	assert.DeepEqual(t, got, []string{"PATH=/usr/bin"})
}

func TestFilterCheckListAcceptsSafeValue(t *testing.T) {
	env := []string{"SOME_VAR=plainvalue"}
	policy := Policy{Check: []string{"SOME_VAR"}, Path: "/usr/bin"}
	got := Filter(env, policy)
	assert.DeepEqual(t, got, []string{"SOME_VAR=plainvalue", "PATH=/usr/bin"})
}

func TestFilterKeepWinsOverCheck(t *testing.T) {
	env := []string{"TZ=/etc/malicious"}
	policy := Policy{Keep: []string{"TZ"}, Check: []string{"TZ"}, Path: "/usr/bin"}
	got := Filter(env, policy)
	assert.DeepEqual(t, got, []string{"TZ=/etc/malicious", "PATH=/usr/bin"})
}

func TestFilterTZSafety(t *testing.T) {
	cases := []struct {
		value string
		safe  bool
	}{
		{"Europe/Paris", true},
		{"/etc/malicious", false},
		{"../../etc/passwd", false},
	}
	for _, c := range cases {
		assert.Equal(t, isSafeTZ(c.value), c.safe, "isSafeTZ(%q)", c.value)
	}
}

func TestFilterPathAlwaysReplaced(t *testing.T) {
	env := []string{"PATH=/attacker/bin"}
	policy := Policy{Path: "/usr/bin"}
	got := Filter(env, policy)
	assert.DeepEqual(t, got, []string{"PATH=/usr/bin"})
}

func TestFilterDropsUnlistedVariables(t *testing.T) {
	env := []string{"RANDOM_VAR=whatever"}
	policy := Policy{Path: "/usr/bin"}
	got := Filter(env, policy)
	assert.DeepEqual(t, got, []string{"PATH=/usr/bin"})
}
