// SPDX-License-Identifier: MIT

package invision

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// Typed wrappers around the upstream endpoints. Each returns the raw JSON
// body plus, where control flow needs them, decoded views. The adapter is
// stateless apart from the shared Client; it chooses the endpoint by entity
// state (archived screens use a different URL than live ones).

// Projects fetches the project list, live or archived.
func (c *Client) Projects(ctx context.Context, archived bool) ([]Project, error) {
	q := url.Values{
		"isArchived":     {strconv.FormatBool(archived)},
		"isCollaborator": {"true"},
	}
	doc, err := c.getJSON(ctx, "projects.list", c.base+"/api:unifiedprojects.getProjects", q)
	if err != nil {
		return nil, err
	}
	results := gjson.GetBytes(doc, "results")
	if !results.IsArray() {
		return nil, &UpstreamError{Sentinel: ErrDecode, Op: "projects.list", Body: "missing results array"}
	}
	projects := make([]Project, 0, len(results.Array()))
	for _, r := range results.Array() {
		projects = append(projects, ProjectFromJSON([]byte(r.Raw)))
	}
	return projects, nil
}

// Tags fetches the global tag list. The raw return value is the tags array
// itself, which is what the archive persists at common/tags.json.
func (c *Client) Tags(ctx context.Context) ([]byte, []Tag, error) {
	doc, err := c.getJSON(ctx, "tags.list", c.base+"/api:unifiedprojects.getTags", nil)
	if err != nil {
		return nil, nil, err
	}
	arr := gjson.GetBytes(doc, "tags")
	if !arr.IsArray() {
		return nil, nil, &UpstreamError{Sentinel: ErrDecode, Op: "tags.list", Body: "missing tags array"}
	}
	tags := make([]Tag, 0, len(arr.Array()))
	for _, r := range arr.Array() {
		tags = append(tags, tagFromResult(r))
	}
	return []byte(arr.Raw), tags, nil
}

// Screens fetches a project's live screens (grouped form).
func (c *Client) Screens(ctx context.Context, projectID string) (*ScreenList, []byte, error) {
	q := url.Values{"id": {projectID}}
	doc, err := c.getJSON(ctx, "screens.list", c.base+"/api:desktop_partials.projectScreens2Grouped", q)
	if err != nil {
		return nil, nil, err
	}
	return ScreenListFromJSON(doc), doc, nil
}

// ArchivedScreens fetches a project's archived screens.
func (c *Client) ArchivedScreens(ctx context.Context, projectID string) (*ScreenList, []byte, error) {
	q := url.Values{"id": {projectID}}
	doc, err := c.getJSON(ctx, "screens.archived", c.base+"/api:desktop_partials.projectScreens2Archived", q)
	if err != nil {
		return nil, nil, err
	}
	return ScreenListFromJSON(doc), doc, nil
}

// ScreenDetails fetches the per-screen document with hotspots and image
// references. Archived screens only expose the quick-view endpoint.
func (c *Client) ScreenDetails(ctx context.Context, screenID string, archived bool) ([]byte, error) {
	if archived {
		q := url.Values{"screenID": {screenID}}
		return c.getJSON(ctx, "screen.quickview", c.base+"/api:desktop_partials/screenQuickView", q)
	}
	q := url.Values{
		"screenID": {screenID},
		"trigger":  {"initial-load"},
	}
	return c.getJSON(ctx, "screen.details", c.base+"/api:desktop_partials.consoleScreen", q)
}

// ScreenInspect fetches the layers and extraction info of a live screen.
func (c *Client) ScreenInspect(ctx context.Context, screenID string) ([]byte, error) {
	q := url.Values{"id": {screenID}}
	return c.getJSON(ctx, "screen.inspect", c.base+"/api:inspect.getExtractionJSON", q)
}

// ScreenHistory fetches the ordered version list of a live screen.
func (c *Client) ScreenHistory(ctx context.Context, screenID string) ([]byte, error) {
	q := url.Values{"screenID": {screenID}}
	return c.getJSON(ctx, "screen.history", c.base+"/api:desktop_partials/screenHistory", q)
}

// ProjectAssets fetches the inspect asset listing of a project.
func (c *Client) ProjectAssets(ctx context.Context, projectID string) ([]byte, error) {
	q := url.Values{"projectID": {projectID}}
	return c.getJSON(ctx, "project.assets", c.base+"/api:inspect.getProjectAssets", q)
}

// Shares fetches a project's share links. The raw document is persisted as
// shares.json; the typed slice drives change detection.
func (c *Client) Shares(ctx context.Context, projectID string) ([]byte, []Share, error) {
	q := url.Values{"prototypeID": {projectID}}
	doc, err := c.getJSON(ctx, "shares.list", c.base+"/api:project_shares_tab_partials.getView", q)
	if err != nil {
		return nil, nil, err
	}
	var shares []Share
	for _, r := range gjson.GetBytes(doc, "shares").Array() {
		shares = append(shares, Share{
			ID:  r.Get("id").String(),
			Key: r.Get("key").String(),
		})
	}
	return doc, shares, nil
}
