package decommission_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsunset/dbsunset/internal/decommission"
)

func TestParseRepoURL(t *testing.T) {
	t.Parallel()

	ref, err := decommission.ParseRepoURL("https://github.com/octo/elements")
	require.NoError(t, err)
	assert.Equal(t, "octo", ref.Owner)
	assert.Equal(t, "elements", ref.Name)
	assert.Equal(t, "octo/elements", ref.String())
}

func TestParseRepoURL_TrailingSlash(t *testing.T) {
	t.Parallel()

	ref, err := decommission.ParseRepoURL("https://github.com/octo/elements/")
	require.NoError(t, err)
	assert.Equal(t, "octo", ref.Owner)
	assert.Equal(t, "elements", ref.Name)
}

func TestParseRepoURL_Rejections(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"github.com/octo/elements",
		"http://github.com/octo/elements",
		"https://gitlab.com/octo/elements",
		"https://github.com/octo",
		"https://github.com/octo/elements/tree/main",
		"https://github.com//elements",
		"https://github.com/octo/elements?tab=readme",
		"git@github.com:octo/elements.git",
	} {
		_, err := decommission.ParseRepoURL(raw)
		assert.Error(t, err, "url %q", raw)
	}
}
