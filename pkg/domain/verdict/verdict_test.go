package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailOpenNeverFlags(t *testing.T) {
	v := FailOpen()
	assert.Equal(t, SourceFallbackError, v.Source)
	assert.False(t, v.IsFlagged)
	assert.Empty(t, v.FlaggedCategories)
}

func TestSexualOnly(t *testing.T) {
	assert.False(t, Classification{}.SexualOnly())
	assert.True(t, Classification{FlaggedCategories: []string{CategorySexual}}.SexualOnly())
	assert.True(t, Classification{FlaggedCategories: []string{CategorySexual, CategorySexualMinors}}.SexualOnly())
	assert.False(t, Classification{FlaggedCategories: []string{CategorySexual, CategoryHate}}.SexualOnly())
	assert.False(t, Classification{FlaggedCategories: []string{CategoryViolence}}.SexualOnly())
}

func TestDominantCategory(t *testing.T) {
	assert.Equal(t, "", Classification{}.DominantCategory())
	assert.Equal(t, CategorySexual, Classification{FlaggedCategories: []string{CategorySexual}}.DominantCategory())
	// The first non-sexual category drives user-facing messaging.
	assert.Equal(t, CategoryHate, Classification{FlaggedCategories: []string{CategorySexual, CategoryHate, CategoryViolence}}.DominantCategory())
}
