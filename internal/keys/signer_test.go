package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

const (
	oneHex  = "0000000000000000000000000000000000000000000000000000000000000001"
	oneNsec = "nsec1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqsmhltgl"
	onePub  = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
	oneNpub = "npub10xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqpkge6d"
)

func TestParseHexAndNsec(t *testing.T) {
	fromHex, err := Parse(oneHex)
	require.NoError(t, err)
	assert.Equal(t, onePub, fromHex.PubKey())
	assert.Equal(t, oneNpub, fromHex.NPub())
	assert.Equal(t, oneNsec, fromHex.NSec())

	fromNsec, err := Parse("  " + oneNsec + "\n")
	require.NoError(t, err)
	assert.Equal(t, onePub, fromNsec.PubKey())
}

func TestParseRejectsBadKeys(t *testing.T) {
	for _, bad := range []string{
		"",
		"not-a-key",
		"abcd",
		strings.Repeat("0", 64),
		"nsec1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqsmhltgx",
		oneNpub,
	} {
		_, err := Parse(bad)
		require.Error(t, err, bad)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), bad)
	}
}

func TestSignIsDeterministicAndVerifies(t *testing.T) {
	s, err := Parse(oneHex)
	require.NoError(t, err)

	mk := func() *record.Record {
		return record.New(record.KindContent, "", 1700000000, [][]string{{"d", "bible-genesis-1-1"}}, "In the beginning.")
	}
	a, b := mk(), mk()
	require.NoError(t, s.Sign(a))
	require.NoError(t, s.Sign(b))

	assert.Equal(t, onePub, a.PubKey)
	assert.Len(t, a.Sig, 128)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Sig, b.Sig)
	assert.True(t, a.CheckID())
	require.NoError(t, Verify(a))

	a.Content = "tampered"
	assert.Error(t, Verify(a))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	s, err := Parse(oneHex)
	require.NoError(t, err)
	other, err := Parse(strings.Repeat("0", 63) + "2")
	require.NoError(t, err)

	r := record.New(record.KindIndex, "", 1, nil, "")
	require.NoError(t, s.Sign(r))

	forged := record.New(record.KindIndex, "", 1, nil, "")
	require.NoError(t, other.Sign(forged))
	forged.PubKey = r.PubKey
	forged.ID = forged.ComputeID()

	assert.Error(t, Verify(forged))
}

func TestSignRejectsForeignAuthor(t *testing.T) {
	s, err := Parse(oneHex)
	require.NoError(t, err)
	r := record.New(record.KindIndex, strings.Repeat("b", 64), 1, nil, "")
	err = s.Sign(r)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryInternal))
}
