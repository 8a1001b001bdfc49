package model

import "github.com/google/uuid"

// itemNamespace scopes the name-based UUIDs derived for items without an id.
var itemNamespace = uuid.MustParse("6f1d3c8e-5a4b-5e2f-9c71-0b8a2d4e6f10")

// ItemID derives the fallback identity of an item: a UUIDv5 of its link, or of
// "title-pubDate" when the link is empty. The result is stable across reloads.
func ItemID(it *FeedItem) string {
	key := it.Link
	if key == "" {
		key = it.Title + "-" + it.PubDate
	}
	return uuid.NewSHA1(itemNamespace, []byte(key)).String()
}

// EnsureIDs assigns ItemID to every item without an identity and returns how
// many were assigned.
func EnsureIDs(items []FeedItem) int {
	n := 0
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = ItemID(&items[i])
			n++
		}
	}
	return n
}
