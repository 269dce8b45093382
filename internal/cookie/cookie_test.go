package cookie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderParseRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 0xDEADBEEF, 0xFFFFFFFF} {
		s := Render(v)
		require.Len(t, s, 8)
		got, err := Parse(s)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("short")
	require.Error(t, err)
	_, err = Parse("zzzzzzzz")
	require.Error(t, err)
}

func TestSortTargets(t *testing.T) {
	descs := []TargetDesc{
		{Token: 9, Port: 1},
		{Token: 2, Port: 5},
		{Token: 2, Port: 1},
	}
	SortTargets(descs)
	require.Equal(t, []TargetDesc{
		{Token: 2, Port: 1},
		{Token: 2, Port: 5},
		{Token: 9, Port: 1},
	}, descs)
}
