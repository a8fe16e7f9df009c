package structure

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
)

func bookOptions() Options {
	o := DefaultOptions()
	o.ChapterLevel = 3
	o.SectionLevel = 4
	return o
}

func lines(s string) []string {
	return SplitLines(strings.TrimPrefix(s, "\n"))
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"defaults", DefaultOptions(), true},
		{"default structure levels", Options{PromoteDefaultStructure: true}, true},
		{"chapter too shallow", Options{ChapterLevel: 2, SectionLevel: 4}, false},
		{"section not below chapter", Options{ChapterLevel: 4, SectionLevel: 4}, false},
		{"bad chapter regex", Options{ChapterPattern: "("}, false},
		{"bad section regex", Options{SectionPattern: "[a-"}, false},
		{"negative unwrap level", Options{UnwrapLines: true, UnwrapLevel: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), "got %v", err)
		})
	}
}

func TestResolvedLevels(t *testing.T) {
	r := Options{PromoteDefaultStructure: true}.resolved()
	assert.Equal(t, 3, r.ChapterLevel)
	assert.Equal(t, 4, r.SectionLevel)

	r = Options{}.resolved()
	assert.Equal(t, 4, r.ChapterLevel)
	assert.Equal(t, 5, r.SectionLevel)

	r = Options{PromoteDefaultStructure: true, ChapterLevel: 4}.resolved()
	assert.Equal(t, 5, r.SectionLevel, "explicit chapter level is kept")
}

func TestKindForLevel(t *testing.T) {
	o := Options{ChapterLevel: 4, SectionLevel: 6}.resolved()
	assert.Equal(t, KindCollection, o.kindForLevel(2))
	assert.Equal(t, KindBook, o.kindForLevel(3))
	assert.Equal(t, KindChapter, o.kindForLevel(4))
	assert.Equal(t, KindChapter, o.kindForLevel(5))
	assert.Equal(t, KindSection, o.kindForLevel(6))
	assert.Equal(t, KindSection, o.kindForLevel(9))
}

func TestPromoteDefaultStructure(t *testing.T) {
	in := lines(`
= The Bible
Genesis Chapter 1
1:1 In the beginning God created the heaven and the earth.
1:2.
And the earth was without form.
4 Kings Chapter 2.
== Existing heading 1:1
`)
	out, err := Promote(in, Options{PromoteDefaultStructure: true})
	require.NoError(t, err)

	want := []string{
		"= The Bible",
		"=== Genesis Chapter 1",
		"==== 1:1",
		"In the beginning God created the heaven and the earth.",
		"==== 1:2",
		"And the earth was without form.",
		"=== 4 Kings Chapter 2.",
		"== Existing heading 1:1",
	}
	assert.Equal(t, want, out)
}

func TestPromoteCustomPatterns(t *testing.T) {
	in := []string{"PSALM 23", "Verse 1 The Lord is my shepherd", "", "plain"}
	out, err := Promote(in, Options{
		ChapterPattern: `^PSALM \d+$`,
		SectionPattern: `^Verse \d+`,
		ChapterLevel:   4,
		SectionLevel:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"==== PSALM 23", "===== Verse 1", "The Lord is my shepherd", "", "plain"}, out)
}

func TestUnwrapOnlyBelowLevel(t *testing.T) {
	in := lines(`
== Intro
first wrapped
line stays
==== 1:1
In the beginning
God created

* list item
:attr: value
----
`)
	out := Unwrap(in, 4)
	want := []string{
		"== Intro",
		"first wrapped",
		"line stays",
		"==== 1:1",
		"In the beginning God created",
		"",
		"* list item",
		":attr: value",
		"----",
	}
	assert.Equal(t, want, out)

	assert.Equal(t, out, Unwrap(out, 4), "unwrap is stable on its own output")
}

func TestBuildHierarchy(t *testing.T) {
	in := lines(`
:doctype: article
= The Bible
== Genesis
=== Genesis Chapter 1
==== 1:1
In the beginning
God created

the heaven.
==== 1:2
And the earth.
== Exodus
=== Exodus Chapter 1
==== 1:1
Now these are the names.
`)
	root, diags, err := Build(in, "", bookOptions())
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.Equal(t, KindCollection, root.Kind)
	assert.Equal(t, "The Bible", root.Title, "level 1 heading titles an untitled root")
	require.Len(t, root.Children, 2)

	genesis := root.Children[0]
	assert.Equal(t, KindBook, genesis.Kind)
	assert.Equal(t, 1, genesis.Ordinal)
	require.Len(t, genesis.Children, 1)

	ch1 := genesis.Children[0]
	assert.Equal(t, KindChapter, ch1.Kind)
	require.Len(t, ch1.Children, 2)
	assert.Equal(t, "In the beginning\nGod created\n\nthe heaven.", ch1.Children[0].Body)
	assert.Equal(t, 2, ch1.Children[1].Ordinal)

	counts := root.Count()
	assert.Equal(t, 1, counts[KindCollection])
	assert.Equal(t, 2, counts[KindBook])
	assert.Equal(t, 2, counts[KindChapter])
	assert.Equal(t, 3, counts[KindSection])
}

func TestBuildOrphanSectionPreamble(t *testing.T) {
	in := lines(`
= Scriptures
== Genesis
==== 1:1
In the beginning.
`)
	root, diags, err := Build(in, "Scriptures", bookOptions())
	require.NoError(t, err)
	require.Len(t, diags, 1)

	book := root.Children[0]
	require.Len(t, book.Children, 1)
	pre := book.Children[0]
	assert.Equal(t, KindChapter, pre.Kind)
	assert.True(t, pre.Preamble)
	assert.Equal(t, PreambleTitle, pre.Title)
	require.Len(t, pre.Children, 1)
	assert.Equal(t, "1:1", pre.Children[0].Title)
}

func TestBuildOrphanSectionWithoutPreamble(t *testing.T) {
	in := lines(`
== Genesis
==== 1:1
In the beginning.
`)
	opts := bookOptions()
	opts.Preamble = false
	root, _, err := Build(in, "Scriptures", opts)
	require.NoError(t, err)

	book := root.Children[0]
	require.Len(t, book.Children, 1)
	assert.Equal(t, KindSection, book.Children[0].Kind)
	assert.Zero(t, root.Count()[KindChapter])
}

func TestBuildBodyOpensSyntheticSection(t *testing.T) {
	in := lines(`
== Genesis
=== Genesis Chapter 1
Introductory text.
==== 1:1
In the beginning.
`)
	root, _, err := Build(in, "Bible", bookOptions())
	require.NoError(t, err)

	chapter := root.Children[0].Children[0]
	require.Len(t, chapter.Children, 2)
	intro := chapter.Children[0]
	assert.True(t, intro.Synthetic)
	assert.Equal(t, PreambleTitle, intro.Title)
	assert.Equal(t, "Introductory text.", intro.Body)
	assert.Equal(t, "In the beginning.", chapter.Children[1].Body)
}

func TestBuildPreambleChapterIsReused(t *testing.T) {
	in := lines(`
== Genesis
Opening words.
==== 1:1
In the beginning.
`)
	root, _, err := Build(in, "Bible", bookOptions())
	require.NoError(t, err)

	book := root.Children[0]
	require.Len(t, book.Children, 1, "body and section share one preamble chapter")
	assert.Len(t, book.Children[0].Children, 2)
}

func TestBuildChapterUnderCollectionGetsSyntheticBook(t *testing.T) {
	in := lines(`
= Bible
=== Chapter 1
==== 1:1
text
`)
	root, diags, err := Build(in, "", bookOptions())
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.True(t, ferrors.HasCategory(diags[0].AsError(), ferrors.CategoryStructure))

	book := root.Children[0]
	assert.Equal(t, KindBook, book.Kind)
	assert.True(t, book.Synthetic)
	assert.Empty(t, book.Title)
	assert.Equal(t, KindChapter, book.Children[0].Kind)
}

func TestParseRunsPrePasses(t *testing.T) {
	text := "= Bible\n== Genesis\nGenesis Chapter 1\n1:1 In the\nbeginning.\n"
	opts := Options{PromoteDefaultStructure: true, Preamble: true, UnwrapLines: true, UnwrapLevel: 4}

	root, _, err := Parse(text, "Bible", opts)
	require.NoError(t, err)

	section := root.Children[0].Children[0].Children[0]
	assert.Equal(t, KindSection, section.Kind)
	assert.Equal(t, "1:1", section.Title)
	assert.Equal(t, "In the beginning.", section.Body)
}

func TestPostOrderChildrenFirst(t *testing.T) {
	in := lines(`
== Genesis
=== Chapter 1
==== 1:1
a
==== 1:2
b
`)
	root, _, err := Build(in, "Bible", bookOptions())
	require.NoError(t, err)

	order := root.PostOrder()
	pos := make(map[*Node]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	require.NoError(t, root.Walk(func(n *Node, path []*Node) error {
		if len(path) > 0 {
			assert.Less(t, pos[n], pos[path[len(path)-1]])
		}
		return nil
	}))
	assert.Same(t, root, order[len(order)-1])
}

func TestBuildLevelSkipSynthesizesIntermediates(t *testing.T) {
	in := lines(`
==== Chapter 1
===== 1:1
text
`)
	root, diags, err := Build(in, "Bible", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, diags, 1)

	coll := root.Children[0]
	assert.Equal(t, KindCollection, coll.Kind)
	assert.True(t, coll.Synthetic)
	assert.Equal(t, 2, coll.Level)

	book := coll.Children[0]
	assert.Equal(t, KindBook, book.Kind)
	assert.True(t, book.Synthetic)
	assert.Empty(t, book.Title)

	chapter := book.Children[0]
	assert.Equal(t, "Chapter 1", chapter.Title)
	require.Len(t, chapter.Children, 1)
	assert.Equal(t, "text", chapter.Children[0].Body)
}
