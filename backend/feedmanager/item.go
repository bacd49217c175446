package feedmanager

import (
	"bytes"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

var descriptionPolicy = bluemonday.StrictPolicy()

// Item is a single entry of a polled feed.
type Item struct {
	Title       string
	Description string
	Link        string
	GUID        string
	Published   *time.Time
}

// Key identifies an item within its feed. It is the GUID when present, then the link, then the title. Items with an
// empty key cannot be tracked and are never reported as new.
func (i Item) Key() string {
	switch {
	case i.GUID != "":
		return i.GUID
	case i.Link != "":
		return i.Link
	default:
		return i.Title
	}
}

// ParseItems extracts the items of a feed document in document order.
func ParseItems(body []byte) ([]Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		items = append(items, Item{
			Title:       fi.Title,
			Description: plainText(fi.Description),
			Link:        fi.Link,
			GUID:        fi.GUID,
			Published:   fi.PublishedParsed,
		})
	}

	return items, nil
}

// plainText strips markup from an item description and collapses whitespace. Webhook embeds are plain text.
func plainText(s string) string {
	if s == "" {
		return ""
	}

	s = html.UnescapeString(descriptionPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
