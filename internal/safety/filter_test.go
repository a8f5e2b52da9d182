package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaf-platform/leo/internal/vectorstore"
)

func TestFilterForKnownCategories(t *testing.T) {
	for _, category := range Categories() {
		f := FilterFor(category)
		require.NotEmpty(t, f, "category %s must have a predicate", category)
		assert.Equal(t, "public", f["visibility"],
			"every predicate must constrain visibility for %s", category)
	}
}

func TestFilterForAll(t *testing.T) {
	f := FilterFor(CategoryAll)
	assert.Equal(t, vectorstore.Filter{"visibility": "public"}, f)
}

func TestFilterForUnknownCategory(t *testing.T) {
	f := FilterFor("orders")
	assert.NotNil(t, f, "unknown category gets an empty predicate, not nil")
	assert.Empty(t, f)
}

func TestFilterForReturnsCopy(t *testing.T) {
	f := FilterFor(CategoryProducts)
	f["visibility"] = "private"

	again := FilterFor(CategoryProducts)
	assert.Equal(t, "public", again["visibility"], "callers must not be able to poison the table")
}

func TestCollectionFor(t *testing.T) {
	assert.Equal(t, vectorstore.CollectionProducts, CollectionFor(CategoryProducts))
	assert.Equal(t, vectorstore.CollectionEvents, CollectionFor(CategoryEvents))
	assert.Equal(t, "", CollectionFor("orders"))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(CategoryProducts))
	assert.True(t, Known(CategoryAll))
	assert.False(t, Known("payments"))
	assert.False(t, Known(""))
}
