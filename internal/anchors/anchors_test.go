package anchors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnchorIDStableForSameContent(t *testing.T) {
	t.Parallel()

	a := AnchorID("/anchors/a.md", "body text")
	b := AnchorID("/anchors/a.md", "body text")
	c := AnchorID("/anchors/a.md", "different body")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestParseFrontMatter(t *testing.T) {
	t.Parallel()

	raw := []byte("---\ntitle: First Snow\ntags:\n  - winter\n  - memory\n---\n\nIt snowed for the first time.")
	title, tags, body := parseFrontMatter("first-snow.md", raw)
	require.Equal(t, "First Snow", title)
	require.Equal(t, []string{"winter", "memory"}, tags)
	require.Equal(t, "It snowed for the first time.", body)
}

func TestParseFrontMatterFallsBackToFilename(t *testing.T) {
	t.Parallel()

	title, tags, body := parseFrontMatter("no-header.md", []byte("just a body, no front matter"))
	require.Equal(t, "no-header", title)
	require.Empty(t, tags)
	require.Equal(t, "just a body, no front matter", body)
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "first-snow", slugify("First Snow"))
	require.Equal(t, "anchor", slugify("!!!"))
}

func TestParseDSN(t *testing.T) {
	t.Parallel()

	host, port, useTLS, apiKey, err := parseDSN("qdrant://localhost:6334")
	require.NoError(t, err)
	require.Equal(t, "localhost", host)
	require.Equal(t, 6334, port)
	require.False(t, useTLS)
	require.Empty(t, apiKey)

	host, port, useTLS, apiKey, err = parseDSN("https://qdrant.internal:6335?api_key=secret")
	require.NoError(t, err)
	require.Equal(t, "qdrant.internal", host)
	require.Equal(t, 6335, port)
	require.True(t, useTLS)
	require.Equal(t, "secret", apiKey)

	host, port, _, _, err = parseDSN("")
	require.NoError(t, err)
	require.Equal(t, "localhost", host)
	require.Equal(t, 6334, port)
}
