// SPDX-License-Identifier: MIT

package mirror

import (
	"github.com/tidwall/gjson"

	"github.com/mirrorlab/invmirror/internal/invision"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// historyHeadOffset encodes the observed relation between a screen's history
// and its versions/ directory: the current version's file lives at image.<ext>
// and has no entry under versions/files, so a complete screen holds
// len(history.versions) - 1 version files.
const historyHeadOffset = 1

type projectFreshness int

const (
	// projectMissing: no usable local state, run the fresh path.
	projectMissing projectFreshness = iota
	// projectInvalid: local state exists but cannot be trusted; the project
	// is ignored rather than destroyed.
	projectInvalid
	// projectStale: metadata differs, the directory must be invalidated.
	projectStale
	// projectFresh: metadata matches the upstream.
	projectFresh
)

// checkProjectFreshness compares the stored project.json against the fresh
// upstream metadata. Both project.json and screens.json must exist for the
// local state to count at all.
func checkProjectFreshness(layout storage.Layout, p invision.Project) projectFreshness {
	if !storage.Exists(layout.ProjectJSON(p.ID)) || !storage.Exists(layout.ScreensJSON(p.ID)) {
		return projectMissing
	}

	local, err := storage.ReadJSON(layout.ProjectJSON(p.ID))
	if err != nil || !gjson.ValidBytes(local) {
		return projectInvalid
	}
	doc := gjson.ParseBytes(local)
	for _, key := range []string{"id", "data", "type"} {
		if !doc.Get(key).Exists() {
			return projectInvalid
		}
	}

	if doc.Get("data.updatedAt").String() != p.UpdatedAt ||
		doc.Get("data.itemCount").Int() != p.ItemCount {
		return projectStale
	}
	return projectFresh
}

// diffScreens compares the fresh screen list against the locally stored
// screens.json, by position the way the upstream orders them. It returns the
// screens whose directories must be invalidated and whether the whole project
// is up to date (nothing stale, counts matching).
//
// Live screens compare the full (updatedAt, imageVersion, conversationCount,
// unreadConversationCount) tuple; archived screens compare updatedAt only.
// A fresh screen with no local counterpart counts as stale.
func diffScreens(localDoc []byte, fresh *invision.ScreenList) (stale []invision.Screen, upToDate bool) {
	var local *invision.ScreenList
	if gjson.ValidBytes(localDoc) {
		local = invision.ScreenListFromJSON(localDoc)
	} else {
		local = &invision.ScreenList{}
	}

	for i, s := range fresh.Screens {
		if i >= len(local.Screens) || !liveScreenEqual(s, local.Screens[i]) {
			stale = append(stale, s)
		}
	}
	for i, s := range fresh.ArchivedScreens {
		if i >= len(local.ArchivedScreens) || s.UpdatedAt != local.ArchivedScreens[i].UpdatedAt {
			stale = append(stale, s)
		}
	}

	upToDate = len(stale) == 0 &&
		len(fresh.Screens) == len(local.Screens) &&
		int(fresh.ArchivedScreensCount) == len(local.ArchivedScreens)
	return stale, upToDate
}

func liveScreenEqual(a, b invision.Screen) bool {
	return a.UpdatedAt == b.UpdatedAt &&
		a.ImageVersion == b.ImageVersion &&
		a.ConversationCount == b.ConversationCount &&
		a.UnreadConversationCount == b.UnreadConversationCount
}

// sharesChanged reports whether the fresh shares differ from the stored
// shares.json: different length, or any id differing in order.
func sharesChanged(fresh []invision.Share, localDoc []byte) bool {
	if !gjson.ValidBytes(localDoc) {
		return true
	}
	local := gjson.GetBytes(localDoc, "shares").Array()
	if len(local) != len(fresh) {
		return true
	}
	for i, s := range fresh {
		if s.ID != local[i].Get("id").String() {
			return true
		}
	}
	return false
}

// screenComplete reports whether the screen directory already satisfies the
// completeness invariant, in which case no network calls are needed:
// screen.json plus image.* and thumbnail.* always; inspect.json, history.json
// and the expected number of versions/ entries for non-archived screens.
func screenComplete(layout storage.Layout, projectID string, s invision.Screen) bool {
	dir := layout.ScreenDir(projectID, s.ID)

	if !storage.Exists(layout.ScreenJSON(projectID, s.ID)) {
		return false
	}
	if !storage.GlobExists(dir, "image") || !storage.GlobExists(dir, "thumbnail") {
		return false
	}
	if s.IsArchived {
		return true
	}

	if !storage.Exists(layout.InspectJSON(projectID, s.ID)) ||
		!storage.Exists(layout.HistoryJSON(projectID, s.ID)) {
		return false
	}

	history, err := storage.ReadJSON(layout.HistoryJSON(projectID, s.ID))
	if err != nil {
		return false
	}
	versions := gjson.GetBytes(history, "versions")
	if !versions.IsArray() {
		return false
	}
	want := len(versions.Array()) - historyHeadOffset
	if want < 0 {
		want = 0
	}
	got, err := storage.CountEntries(layout.VersionsDir(projectID, s.ID))
	return err == nil && got == want
}
