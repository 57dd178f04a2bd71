// SPDX-License-Identifier: MIT

// Package invisiontest provides a configurable fake upstream for tests. It
// speaks the full cookie/XSRF handshake, serves the JSON endpoints from
// in-memory fixtures and serves asset bytes under a path that the localiser
// recognises as the upstream asset host.
package invisiontest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	// DefaultEmail and DefaultPassword are the credentials the fake accepts.
	DefaultEmail    = "user@example.com"
	DefaultPassword = "hunter2"

	xsrfToken = "test-xsrf-token"

	// assetPrefix embeds the upstream asset host into served URLs so the
	// localiser's host detection fires against the test server.
	assetPrefix = "/files/invisionapp.com/"
)

type failure struct {
	remaining int
	status    int
}

// Upstream is an in-process fake of the mirrored service.
type Upstream struct {
	*httptest.Server

	Email    string
	Password string

	mu              sync.Mutex
	live            []json.RawMessage
	archived        []json.RawMessage
	tags            []json.RawMessage
	screens         map[string]json.RawMessage // project id → grouped doc
	archivedScreens map[string]json.RawMessage // project id → archived doc
	details         map[string]json.RawMessage // screen id → console doc
	quickViews      map[string]json.RawMessage // screen id → quick-view doc
	inspects        map[string]json.RawMessage
	histories       map[string]json.RawMessage
	shares          map[string]json.RawMessage // project id → shares doc
	projectAssets   map[string]json.RawMessage
	assets          map[string][]byte // path after the asset prefix
	assetDownloads  int
	requests        map[string]int
	failures        map[string]*failure
}

// New starts a fake upstream with no fixtures. Callers must Close it.
func New() *Upstream {
	u := &Upstream{
		Email:           DefaultEmail,
		Password:        DefaultPassword,
		screens:         make(map[string]json.RawMessage),
		archivedScreens: make(map[string]json.RawMessage),
		details:         make(map[string]json.RawMessage),
		quickViews:      make(map[string]json.RawMessage),
		inspects:        make(map[string]json.RawMessage),
		histories:       make(map[string]json.RawMessage),
		shares:          make(map[string]json.RawMessage),
		projectAssets:   make(map[string]json.RawMessage),
		assets:          make(map[string][]byte),
		requests:        make(map[string]int),
		failures:        make(map[string]*failure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login-api/api/v2/login", u.handleClassicLogin)
	mux.HandleFunc("/api/account/login", u.handleAPILogin)
	mux.HandleFunc("/api:unifiedprojects.getProjects", u.authed(u.handleProjects))
	mux.HandleFunc("/api:unifiedprojects.getTags", u.authed(u.handleTags))
	mux.HandleFunc("/api:desktop_partials.projectScreens2Grouped", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.screens[q]
		return d, ok
	}, "id")))
	mux.HandleFunc("/api:desktop_partials.projectScreens2Archived", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.archivedScreens[q]
		return d, ok
	}, "id")))
	mux.HandleFunc("/api:desktop_partials.consoleScreen", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.details[q]
		return d, ok
	}, "screenID")))
	mux.HandleFunc("/api:desktop_partials/screenQuickView", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.quickViews[q]
		return d, ok
	}, "screenID")))
	mux.HandleFunc("/api:desktop_partials/screenHistory", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.histories[q]
		return d, ok
	}, "screenID")))
	mux.HandleFunc("/api:inspect.getExtractionJSON", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.inspects[q]
		return d, ok
	}, "id")))
	mux.HandleFunc("/api:inspect.getProjectAssets", u.authed(u.lookup(func(q string) (json.RawMessage, bool) {
		d, ok := u.projectAssets[q]
		return d, ok
	}, "projectID")))
	mux.HandleFunc("/api:project_shares_tab_partials.getView", u.authed(u.handleShares))
	mux.HandleFunc(assetPrefix, u.handleAsset)

	u.Server = httptest.NewServer(mux)
	return u
}

// --- fixture setters ---

func (u *Upstream) AddLiveProject(doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.live = append(u.live, json.RawMessage(doc))
}

func (u *Upstream) AddArchivedProject(doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.archived = append(u.archived, json.RawMessage(doc))
}

// ReplaceLiveProjects swaps the whole live project list (update scenarios).
func (u *Upstream) ReplaceLiveProjects(docs ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.live = nil
	for _, d := range docs {
		u.live = append(u.live, json.RawMessage(d))
	}
}

func (u *Upstream) SetTags(docs ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tags = nil
	for _, d := range docs {
		u.tags = append(u.tags, json.RawMessage(d))
	}
}

func (u *Upstream) SetScreens(projectID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.screens[projectID] = json.RawMessage(doc)
}

func (u *Upstream) SetArchivedScreens(projectID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.archivedScreens[projectID] = json.RawMessage(doc)
}

func (u *Upstream) SetScreenDetails(screenID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.details[screenID] = json.RawMessage(doc)
}

func (u *Upstream) SetQuickView(screenID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.quickViews[screenID] = json.RawMessage(doc)
}

func (u *Upstream) SetInspect(screenID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.inspects[screenID] = json.RawMessage(doc)
}

func (u *Upstream) SetHistory(screenID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.histories[screenID] = json.RawMessage(doc)
}

func (u *Upstream) SetShares(projectID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.shares[projectID] = json.RawMessage(doc)
}

func (u *Upstream) SetProjectAssets(projectID, doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.projectAssets[projectID] = json.RawMessage(doc)
}

// AddAsset registers asset bytes and returns the URL documents should
// reference. path is the piece after the asset host, e.g.
// "avatars/u1.png" or "screens/files/12001.png".
func (u *Upstream) AddAsset(path string, data []byte) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.assets[path] = data
	return u.URL + assetPrefix + path
}

// AssetURL returns the URL for a registered asset path.
func (u *Upstream) AssetURL(path string) string {
	return u.URL + assetPrefix + path
}

// FailNext makes the next n requests to the endpoint path answer with the
// given status before recovering.
func (u *Upstream) FailNext(path string, n, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures[path] = &failure{remaining: n, status: status}
}

// --- observation ---

// AssetDownloads reports how many asset payloads were served.
func (u *Upstream) AssetDownloads() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.assetDownloads
}

// Requests reports how many calls hit the endpoint path.
func (u *Upstream) Requests(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests[path]
}

// --- handlers ---

// track records the hit and applies failure injection; it reports whether the
// handler should continue.
func (u *Upstream) track(w http.ResponseWriter, r *http.Request) bool {
	u.mu.Lock()
	u.requests[r.URL.Path]++
	f := u.failures[r.URL.Path]
	if f != nil && f.remaining > 0 {
		f.remaining--
		status := f.status
		u.mu.Unlock()
		w.WriteHeader(status)
		return false
	}
	u.mu.Unlock()
	return true
}

func (u *Upstream) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !u.track(w, r) {
			return
		}
		if r.Header.Get("x-xsrf-token") != xsrfToken {
			http.Error(w, `{"error":"missing xsrf token"}`, http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (u *Upstream) lookup(get func(string) (json.RawMessage, bool), param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		doc, ok := get(r.URL.Query().Get(param))
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, doc)
	}
}

func (u *Upstream) handleClassicLogin(w http.ResponseWriter, r *http.Request) {
	if !u.track(w, r) {
		return
	}
	var body struct {
		DeviceID string `json:"deviceID"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.Email != u.Email || body.Password != u.Password {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: xsrfToken, Path: "/"})
	http.SetCookie(w, &http.Cookie{Name: "session-token", Value: "classic-session", Path: "/"})
	writeJSON(w, json.RawMessage(`{"status":"ok"}`))
}

func (u *Upstream) handleAPILogin(w http.ResponseWriter, r *http.Request) {
	if !u.track(w, r) {
		return
	}
	if r.Header.Get("x-xsrf-token") != xsrfToken {
		http.Error(w, `{"error":"missing xsrf token"}`, http.StatusForbidden)
		return
	}
	if err := r.ParseForm(); err != nil ||
		r.PostFormValue("email") != u.Email || r.PostFormValue("password") != u.Password {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "sessionID", Value: "api-session", Path: "/"})
	writeJSON(w, json.RawMessage(`{"status":"ok"}`))
}

func (u *Upstream) handleProjects(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	list := u.live
	if r.URL.Query().Get("isArchived") == "true" {
		list = u.archived
	}
	out := make([]json.RawMessage, len(list))
	copy(out, list)
	u.mu.Unlock()

	doc, _ := json.Marshal(map[string]any{"results": out})
	writeJSON(w, doc)
}

func (u *Upstream) handleTags(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	out := make([]json.RawMessage, len(u.tags))
	copy(out, u.tags)
	u.mu.Unlock()

	doc, _ := json.Marshal(map[string]any{"tags": out})
	writeJSON(w, doc)
}

func (u *Upstream) handleShares(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	doc, ok := u.shares[r.URL.Query().Get("prototypeID")]
	u.mu.Unlock()
	if !ok {
		doc = json.RawMessage(`{"shares":[]}`)
	}
	writeJSON(w, doc)
}

func (u *Upstream) handleAsset(w http.ResponseWriter, r *http.Request) {
	if !u.track(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, assetPrefix)
	u.mu.Lock()
	data, ok := u.assets[path]
	if ok {
		u.assetDownloads++
	}
	u.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, doc json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, "%s", doc)
}
