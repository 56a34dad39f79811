package emails

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", []string{}},
		{"no emails", "just a bio about hiking", []string{}},
		{"mixed case is lowercased", "contact: Alice@Example.COM or nope", []string{"alice@example.com"}},
		{"duplicates collapse", "a@b.com and A@B.COM", []string{"a@b.com"}},
		{"first occurrence order", "z@z.io, a@a.io, z@Z.io", []string{"z@z.io", "a@a.io"}},
		{"plus and percent", "mail first.last+tag%x@sub.mail-host.co.uk now", []string{"first.last+tag%x@sub.mail-host.co.uk"}},
		{"permissive tld", "hello@startup.technology", []string{"hello@startup.technology"}},
		{"single letter tld rejected", "a@b.c", []string{}},
		{"inside html", `<a href="mailto:Team@Acme.org">Team@Acme.org</a>`, []string{"team@acme.org"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Extract(tc.text))
		})
	}
}

func TestExtractResultsAreUniqueAndValid(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("Ops@Corp.NET ops@corp.net sales@corp.net; ", 20) + "x@y.dev"
	got := Extract(text)

	seen := map[string]bool{}
	for _, addr := range got {
		lower := strings.ToLower(addr)
		require.False(t, seen[lower], "duplicate %s", addr)
		seen[lower] = true
		require.True(t, Valid(addr), "invalid %s", addr)
		require.Equal(t, lower, addr)
	}
	require.Equal(t, []string{"ops@corp.net", "sales@corp.net", "x@y.dev"}, got)
}

func TestSetMergesSourcesInOrder(t *testing.T) {
	t.Parallel()

	set := NewSet()
	set.AddText("bio: a@b.com A@B.COM")
	set.Add("c@d.com", "A@b.com", " ")
	require.Equal(t, 2, set.Len())
	require.Equal(t, []string{"a@b.com", "c@d.com"}, set.Values())
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("a@b.com"))
	require.False(t, Valid("a@b"))
	require.False(t, Valid("prefix a@b.com"))
	require.False(t, Valid(""))
}
