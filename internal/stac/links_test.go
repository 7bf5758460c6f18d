package stac

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkSummary struct {
	Rel  string
	Href string
}

func summarize(links []*Link) []linkSummary {
	out := make([]linkSummary, 0, len(links))
	for _, l := range links {
		out = append(out, linkSummary{Rel: l.Rel, Href: l.Href})
	}
	return out
}

func TestRelinkReplacesStructuralLinks(t *testing.T) {
	links := []*Link{
		{Rel: RelSelf, Href: "https://old/self.json"},
		{Rel: RelParent, Href: "https://old/parent.json"},
		{Rel: RelParent, Href: "https://old/parent.json"},
		{Rel: RelChild, Href: "https://b/collections/c/2012-01-20/collection.json"},
		{Rel: RelRelated, Href: "https://waternode.ciroh.org/data-guide.html"},
		{Rel: RelItem, Href: "https://b/items/c/2012/01/20/a.json"},
	}

	got := Relink(links, Structure{
		Self:   "https://b/collections/c.json",
		Parent: "https://b/catalog.json",
		Root:   "https://b/catalog.json",
		Children: []string{
			"https://b/collections/c/2012-01-20/collection.json",
			"https://b/collections/c/2012-01-21/collection.json",
			"https://b/collections/c/2012-01-21/collection.json",
		},
	})

	want := []linkSummary{
		{RelSelf, "https://b/collections/c.json"},
		{RelRoot, "https://b/catalog.json"},
		{RelParent, "https://b/catalog.json"},
		{RelChild, "https://b/collections/c/2012-01-20/collection.json"},
		{RelChild, "https://b/collections/c/2012-01-21/collection.json"},
		{RelRelated, "https://waternode.ciroh.org/data-guide.html"},
		{RelItem, "https://b/items/c/2012/01/20/a.json"},
	}
	if diff := cmp.Diff(want, summarize(got)); diff != "" {
		t.Errorf("Relink() mismatch (-want +got):\n%s", diff)
	}
}

func TestRelinkIsIdempotent(t *testing.T) {
	s := Structure{
		Self:     "https://b/collections/c/2012-01-21/collection.json",
		Parent:   "https://b/collections/c.json",
		Root:     "https://b/catalog.json",
		Children: nil,
	}

	once := Relink(nil, s)
	twice := Relink(once, s)

	assert.Equal(t, summarize(once), summarize(twice))
	assert.Equal(t, 1, CountRel(twice, RelSelf))
	assert.Equal(t, 1, CountRel(twice, RelParent))
	assert.Equal(t, 1, CountRel(twice, RelRoot))
	assert.Equal(t, 0, CountRel(twice, RelChild))
}

func TestRelinkOmitsEmptyHrefs(t *testing.T) {
	got := Relink(nil, Structure{Self: "https://b/catalog.json"})
	require.Len(t, got, 1)
	assert.Equal(t, RelSelf, got[0].Rel)
	assert.Equal(t, MediaTypeJSON, got[0].Type)
}

func TestAddItemLink(t *testing.T) {
	links, added := AddItemLink(nil, "https://b/items/c/2012/01/21/x.json")
	require.True(t, added)

	links, added = AddItemLink(links, "https://b/items/c/2012/01/21/x.json")
	assert.False(t, added)
	assert.Len(t, links, 1)
	assert.Equal(t, MediaTypeGeoJSON, links[0].Type)
}

func TestItemIDs(t *testing.T) {
	links := []*Link{
		{Rel: RelItem, Href: "https://b/items/c/2012/01/21/VFM_20120121T000000_ab12cd34.json"},
		{Rel: RelItem, Href: "https://b/items/c/2012/01/21/other.json?version=2"},
		{Rel: RelItem, Href: "https://b/items/c/2012/01/21/not-json"},
		{Rel: RelChild, Href: "https://b/collections/c/2012-01-21/collection.json"},
	}

	want := map[string]bool{
		"VFM_20120121T000000_ab12cd34": true,
		"other":                        true,
	}
	assert.Equal(t, want, ItemIDs(links))
}

func TestHrefHelpers(t *testing.T) {
	links := []*Link{
		{Rel: RelChild, Href: "a"},
		{Rel: RelChild, Href: "b"},
		{Rel: RelRoot, Href: "r"},
	}
	assert.Equal(t, []string{"a", "b"}, Hrefs(links, RelChild))
	assert.Equal(t, "r", Href(links, RelRoot))
	assert.Equal(t, "", Href(links, RelSelf))

	kept := RemoveLinks(links, RelChild)
	assert.Equal(t, []linkSummary{{RelRoot, "r"}}, summarize(kept))
}
