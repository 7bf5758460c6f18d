package stac

import (
	"path"
	"strings"

	gostac "github.com/planetlabs/go-stac"
)

// Link relation types.
const (
	RelSelf       = "self"
	RelRoot       = "root"
	RelParent     = "parent"
	RelChild      = "child"
	RelItem       = "item"
	RelCollection = "collection"
	RelRelated    = "related"
)

// Structure is the complete set of structural links a catalog or collection
// node must carry. Empty hrefs are omitted.
type Structure struct {
	Self     string
	Parent   string
	Root     string
	Children []string
}

// Relink removes every self, parent, root and child link from links and
// re-adds the links described by s, so repeated runs never accumulate stale or
// duplicate structural links. Other links (item, related, ...) are kept in
// their original order.
func Relink(links []*gostac.Link, s Structure) []*gostac.Link {
	kept := RemoveLinks(links, RelSelf, RelParent, RelRoot, RelChild)

	out := make([]*gostac.Link, 0, len(kept)+3+len(s.Children))
	if s.Self != "" {
		out = append(out, &gostac.Link{Rel: RelSelf, Href: s.Self, Type: MediaTypeJSON})
	}
	if s.Root != "" {
		out = append(out, &gostac.Link{Rel: RelRoot, Href: s.Root, Type: MediaTypeJSON})
	}
	if s.Parent != "" {
		out = append(out, &gostac.Link{Rel: RelParent, Href: s.Parent, Type: MediaTypeJSON})
	}
	seen := make(map[string]bool, len(s.Children))
	for _, child := range s.Children {
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		out = append(out, &gostac.Link{Rel: RelChild, Href: child, Type: MediaTypeJSON})
	}
	return append(out, kept...)
}

// RemoveLinks returns links without any link whose rel is in rels.
func RemoveLinks(links []*gostac.Link, rels ...string) []*gostac.Link {
	drop := make(map[string]bool, len(rels))
	for _, rel := range rels {
		drop[rel] = true
	}
	kept := make([]*gostac.Link, 0, len(links))
	for _, link := range links {
		if link == nil || drop[link.Rel] {
			continue
		}
		kept = append(kept, link)
	}
	return kept
}

// Hrefs returns the hrefs of all links with the given rel, in order.
func Hrefs(links []*gostac.Link, rel string) []string {
	var hrefs []string
	for _, link := range links {
		if link != nil && link.Rel == rel {
			hrefs = append(hrefs, link.Href)
		}
	}
	return hrefs
}

// Href returns the first href with the given rel, or "".
func Href(links []*gostac.Link, rel string) string {
	for _, link := range links {
		if link != nil && link.Rel == rel {
			return link.Href
		}
	}
	return ""
}

// CountRel counts links with the given rel.
func CountRel(links []*gostac.Link, rel string) int {
	return len(Hrefs(links, rel))
}

// AddItemLink appends an item link unless one with the same href exists.
// It reports whether the link was added.
func AddItemLink(links []*gostac.Link, href string) ([]*gostac.Link, bool) {
	for _, link := range links {
		if link != nil && link.Rel == RelItem && link.Href == href {
			return links, false
		}
	}
	return append(links, &gostac.Link{Rel: RelItem, Href: href, Type: MediaTypeGeoJSON}), true
}

// ItemIDs returns the ids of the items a node links to. Item hrefs end in
// "<item-id>.json".
func ItemIDs(links []*gostac.Link) map[string]bool {
	ids := make(map[string]bool)
	for _, href := range Hrefs(links, RelItem) {
		if id := ItemIDFromHref(href); id != "" {
			ids[id] = true
		}
	}
	return ids
}

// ItemIDFromHref extracts the item id from an item document href.
func ItemIDFromHref(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	base := path.Base(href)
	if !strings.HasSuffix(base, ".json") {
		return ""
	}
	return strings.TrimSuffix(base, ".json")
}
