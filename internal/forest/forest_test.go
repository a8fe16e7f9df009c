package forest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/keys"
	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/structure"
	"github.com/Silberengel/scriptorium/internal/tags"
)

const (
	testSecret = "0000000000000000000000000000000000000000000000000000000000000001"
	createdAt  = int64(1700000000)
	relayHint  = "wss://relay.example.com"
)

const document = `= Bible
== Genesis
=== Genesis Chapter 1
==== 1:1
In the beginning.
==== 1:2
And the earth.
== Exodus
=== Exodus Chapter 1
==== 1:1
Now these are the names.
`

func testSigner(t *testing.T) *keys.Signer {
	t.Helper()
	s, err := keys.Parse(testSecret)
	require.NoError(t, err)
	return s
}

func compileDoc(t *testing.T, doc string, opts Options) *Forest {
	t.Helper()
	md, err := metadata.Parse([]byte("title: Bible\nauthor: Various\nversion: KJV\n"))
	require.NoError(t, err)
	o := structure.DefaultOptions()
	o.ChapterLevel, o.SectionLevel = 3, 4
	root, _, err := structure.Parse(doc, md.Title, o)
	require.NoError(t, err)
	require.NoError(t, tags.Derive(root, md, nil))

	if opts.PubKey == "" {
		opts.PubKey = testSigner(t).PubKey()
	}
	if opts.CreatedAt == 0 {
		opts.CreatedAt = createdAt
	}
	opts.RelayHint = relayHint
	f, err := Compile(root, opts)
	require.NoError(t, err)
	return f
}

func TestCompileOrderIsTopological(t *testing.T) {
	f := compileDoc(t, document, Options{})
	require.NoError(t, f.Sign(testSigner(t)))
	require.True(t, f.Signed())

	recs := f.Records()
	assert.Len(t, recs, 8)
	pos := make(map[record.Key]int, len(recs))
	for i, r := range recs {
		pos[r.Key()] = i
	}
	for i, r := range recs {
		require.NoError(t, keys.Verify(r))
		for _, child := range r.References() {
			cp, ok := pos[child]
			require.True(t, ok, "reference to unknown record %s", child)
			assert.Less(t, cp, i, "%s must precede %s", child, r.DTag())
		}
	}
	assert.Equal(t, "bible-kjv", f.Root().DTag())
	assert.Equal(t, record.KindIndex, f.Root().Kind)
	assert.Empty(t, f.Root().Content)
}

func TestReferencesCarryChildIDs(t *testing.T) {
	f := compileDoc(t, document, Options{})
	require.NoError(t, f.Sign(testSigner(t)))

	chapter, ok := f.Lookup(record.Key{Kind: record.KindIndex, PubKey: f.Root().PubKey, DTag: "bible-genesis-1-kjv"})
	require.True(t, ok)
	verse, ok := f.Lookup(record.Key{Kind: record.KindContent, PubKey: f.Root().PubKey, DTag: "bible-genesis-1-1-kjv"})
	require.True(t, ok)
	assert.Equal(t, "In the beginning.", verse.Content)

	var aTags [][]string
	for _, tag := range chapter.Tags {
		if tag[0] == "a" {
			aTags = append(aTags, tag)
		}
	}
	require.Len(t, aTags, 2)
	assert.Equal(t, []string{"a", "30041:" + verse.PubKey + ":bible-genesis-1-1-kjv", relayHint, verse.ID}, aTags[0])
}

func TestCompileIsDeterministic(t *testing.T) {
	a := compileDoc(t, document, Options{})
	b := compileDoc(t, document, Options{})
	s := testSigner(t)
	require.NoError(t, a.Sign(s))
	require.NoError(t, b.Sign(s))

	ra, rb := a.Records(), b.Records()
	require.Len(t, rb, len(ra))
	for i := range ra {
		assert.Equal(t, string(ra[i].Serialize()), string(rb[i].Serialize()))
		assert.Equal(t, ra[i].Sig, rb[i].Sig)
	}
}

type failingSigner struct {
	*keys.Signer
	failAt int
	calls  int
}

func (s *failingSigner) Sign(r *record.Record) error {
	s.calls++
	if s.calls == s.failAt {
		return errors.New("hsm unavailable")
	}
	return s.Signer.Sign(r)
}

func TestSignFromResumesAfterFailure(t *testing.T) {
	f := compileDoc(t, document, Options{})
	fs := &failingSigner{Signer: testSigner(t), failAt: 3}

	require.Error(t, f.Sign(fs))
	assert.False(t, f.Signed())

	require.NoError(t, f.SignFrom(2, fs))
	require.True(t, f.Signed())

	want := compileDoc(t, document, Options{})
	require.NoError(t, want.Sign(testSigner(t)))
	assert.Equal(t, want.Root().ID, f.Root().ID, "resumed signing matches a clean run")

	err := f.SignFrom(f.Len()+1, fs)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryInternal))
}

func TestResigningDoesNotDuplicateReferences(t *testing.T) {
	f := compileDoc(t, document, Options{})
	s := testSigner(t)
	require.NoError(t, f.Sign(s))
	first := f.Root().ID
	require.NoError(t, f.SignFrom(0, s))
	assert.Equal(t, first, f.Root().ID)
	assert.Len(t, f.Root().References(), 2)
}

func TestDuplicateDTagIsValidationError(t *testing.T) {
	root := &structure.Node{Kind: structure.KindCollection, Title: "Bible", DTag: "bible", Tags: [][]string{{"d", "bible"}}}
	for range 2 {
		root.Children = append(root.Children, &structure.Node{
			Kind:  structure.KindSection,
			Title: "1:1",
			DTag:  "bible-1",
			Tags:  [][]string{{"d", "bible-1"}},
		})
	}
	_, err := Compile(root, Options{PubKey: testSigner(t).PubKey(), CreatedAt: createdAt})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestCreatedAtReuse(t *testing.T) {
	s := testSigner(t)
	first := compileDoc(t, document, Options{})
	require.NoError(t, first.Sign(s))
	prev, err := first.Index()
	require.NoError(t, err)

	again := compileDoc(t, document, Options{CreatedAt: createdAt + 500, Previous: prev.Lookup})
	require.NoError(t, again.Sign(s))
	assert.Equal(t, again.Len(), again.Reused())
	assert.Equal(t, first.Root().ID, again.Root().ID, "unchanged input regenerates identical records")

	edited := compileDoc(t, document+"More names.\n", Options{CreatedAt: createdAt + 500, Previous: prev.Lookup})
	require.NoError(t, edited.Sign(s))
	assert.Equal(t, createdAt+500, edited.Root().CreatedAt, "ancestors of a changed record get a new time")

	genesis, ok := edited.Lookup(record.Key{Kind: record.KindIndex, PubKey: s.PubKey(), DTag: "bible-genesis-kjv"})
	require.True(t, ok)
	assert.Equal(t, createdAt, genesis.CreatedAt, "untouched branch keeps its time")
}
