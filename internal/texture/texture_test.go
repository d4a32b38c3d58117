package texture

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItoa(t *testing.T) {
	t.Parallel()

	require.Equal(t, "768", itoa(0))
	require.Equal(t, "768", itoa(-1))
	require.Equal(t, "3", itoa(3))
	require.Equal(t, "1536", itoa(1536))
}

func TestCloseTypesFiltersUnknown(t *testing.T) {
	t.Parallel()

	got := closeTypes([]string{"person", "bogus", "place"})
	require.Equal(t, []EntityType{TypePerson, TypePlace}, got)
}

func TestSameTypeSet(t *testing.T) {
	t.Parallel()

	require.True(t, sameTypeSet([]string{"person"}, []EntityType{TypePerson, TypeConcept}))
	require.False(t, sameTypeSet([]string{"person"}, []EntityType{TypePlace}))
	require.True(t, sameTypeSet(nil, []EntityType{TypePlace})) // unknown either side: don't block resolution
}

func TestClosedEdgeTypesCoverPersonPerson(t *testing.T) {
	t.Parallel()

	allowed := edgeTypeMap[[2]EntityType{TypePerson, TypePerson}]
	require.Contains(t, allowed, "knows")
	require.Contains(t, allowed, "likes")
}
