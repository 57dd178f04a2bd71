// SPDX-License-Identifier: MIT

package invision

import (
	"github.com/tidwall/gjson"
)

// Typed views over the raw upstream documents. The mirror persists the raw
// bytes untouched (apart from asset localisation); these structs only carry
// the fields control flow needs. Identifiers are numeric upstream and are
// formatted as decimal strings wherever they name paths.

// Project is one top-level unit on the upstream service.
type Project struct {
	ID         string
	Type       string
	Name       string
	UpdatedAt  string
	ItemCount  int64
	IsArchived bool

	// Raw is the project's complete JSON document as the upstream sent it.
	Raw []byte
}

// ProjectFromJSON builds the typed view of one element of the upstream
// project list.
func ProjectFromJSON(raw []byte) Project {
	doc := gjson.ParseBytes(raw)
	return Project{
		ID:         doc.Get("id").String(),
		Type:       doc.Get("type").String(),
		Name:       doc.Get("data.name").String(),
		UpdatedAt:  doc.Get("data.updatedAt").String(),
		ItemCount:  doc.Get("data.itemCount").Int(),
		IsArchived: doc.Get("data.isArchived").Bool(),
		Raw:        raw,
	}
}

// Screen is a single design artifact within a project.
type Screen struct {
	ID                      string
	Name                    string
	IsArchived              bool
	UpdatedAt               string
	ImageVersion            int64
	ConversationCount       int64
	UnreadConversationCount int64
}

func screenFromResult(r gjson.Result, archived bool) Screen {
	return Screen{
		ID:                      r.Get("id").String(),
		Name:                    r.Get("name").String(),
		IsArchived:              archived || r.Get("isArchived").Bool(),
		UpdatedAt:               r.Get("updatedAt").String(),
		ImageVersion:            r.Get("imageVersion").Int(),
		ConversationCount:       r.Get("conversationCount").Int(),
		UnreadConversationCount: r.Get("unreadConversationCount").Int(),
	}
}

// ScreenList is the typed view of a project's screens document: the live
// screens, the archived ones (fetched separately) and the archived count the
// grouped endpoint reports.
type ScreenList struct {
	Screens              []Screen
	ArchivedScreens      []Screen
	ArchivedScreensCount int64
}

// ScreenListFromJSON parses the grouped-screens document. The archived
// endpoint reuses the same shape with an "archivedscreens" array.
func ScreenListFromJSON(doc []byte) *ScreenList {
	root := gjson.ParseBytes(doc)
	list := &ScreenList{
		ArchivedScreensCount: root.Get("archivedScreensCount").Int(),
	}
	for _, r := range root.Get("screens").Array() {
		list.Screens = append(list.Screens, screenFromResult(r, false))
	}
	for _, r := range root.Get("archivedscreens").Array() {
		list.ArchivedScreens = append(list.ArchivedScreens, screenFromResult(r, true))
	}
	return list
}

// Tag is a global label associated with projects via membership in
// prototypeIDs.
type Tag struct {
	ID           string
	Name         string
	PrototypeIDs []string

	Raw []byte
}

// Contains reports whether the tag references the given project.
func (t Tag) Contains(projectID string) bool {
	for _, id := range t.PrototypeIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

func tagFromResult(r gjson.Result) Tag {
	t := Tag{
		ID:   r.Get("id").String(),
		Name: r.Get("name").String(),
		Raw:  []byte(r.Raw),
	}
	for _, id := range r.Get("prototypeIDs").Array() {
		t.PrototypeIDs = append(t.PrototypeIDs, id.String())
	}
	return t
}

// Share is a public keyed link granting external access to a project.
// Shares are compared by id for change detection.
type Share struct {
	ID  string
	Key string
}

func validJSON(doc []byte) bool {
	return gjson.ValidBytes(doc)
}
