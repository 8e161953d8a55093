package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SouthPatron/reasonchip/pkg/pipeline"
)

func TestSplitNameEqualsPath(t *testing.T) {
	name, path, ok := splitNameEqualsPath("chatbot=/data/chatbot")
	require.True(t, ok)
	assert.Equal(t, "chatbot", name)
	assert.Equal(t, "/data/chatbot", path)

	_, _, ok = splitNameEqualsPath("no-equals-sign")
	assert.False(t, ok)
}

func TestNamespaceCollectionPrefixesEveryPipelineName(t *testing.T) {
	col := pipeline.NewCollection(map[string]*pipeline.Pipeline{
		"app.entry": {Name: "app.entry", Tasks: nil},
	})

	namespaced := namespaceCollection("chatbot", col)

	_, err := namespaced.Resolve("chatbot.app.entry")
	require.NoError(t, err)
	_, err = namespaced.Resolve("app.entry")
	assert.Error(t, err)
}

func TestLoadNamedCollectionsRejectsMissingEquals(t *testing.T) {
	_, err := loadNamedCollections([]string{"bad-spec-no-equals"})
	assert.Error(t, err)
}
