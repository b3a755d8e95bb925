package itemid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kolpa/bakare/internal/itemid"
)

func Test_Of_Is_Deterministic_For_Equal_Content(t *testing.T) {
	t.Parallel()

	a, err := itemid.Of(strings.NewReader("same content"))
	require.NoError(t, err)

	b, err := itemid.Of(strings.NewReader("same content"))
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.Equal(t, a.String(), b.String())
}

func Test_Of_Differs_For_Different_Content(t *testing.T) {
	t.Parallel()

	a, err := itemid.Of(strings.NewReader("x"))
	require.NoError(t, err)

	b, err := itemid.Of(strings.NewReader("y"))
	require.NoError(t, err)

	require.False(t, a.Equal(b))
}

func Test_String_Is_Lowercase_Hex_Of_64_Bytes(t *testing.T) {
	t.Parallel()

	id, err := itemid.Of(strings.NewReader("anything"))
	require.NoError(t, err)

	require.Len(t, id, 64) // SHA-512 output
	require.Equal(t, strings.ToLower(id.String()), id.String())
	require.Len(t, id.String(), 128)
}

func Test_Base64_Roundtrips_Through_FromBase64(t *testing.T) {
	t.Parallel()

	id, err := itemid.Of(strings.NewReader("round trip me"))
	require.NoError(t, err)

	parsed, err := itemid.FromBase64(id.Base64())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func Test_Hex_Roundtrips_Through_FromHex(t *testing.T) {
	t.Parallel()

	id, err := itemid.Of(strings.NewReader("round trip me too"))
	require.NoError(t, err)

	parsed, err := itemid.FromHex(id.String())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func Test_OfWithChecksum_Id_Matches_Of(t *testing.T) {
	t.Parallel()

	id, err := itemid.Of(strings.NewReader("dual hash"))
	require.NoError(t, err)

	id2, checksum, err := itemid.OfWithChecksum(strings.NewReader("dual hash"))
	require.NoError(t, err)

	require.True(t, id.Equal(id2))
	require.NotZero(t, checksum)
}
