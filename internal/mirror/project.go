// SPDX-License-Identifier: MIT

package mirror

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mirrorlab/invmirror/internal/assets"
	"github.com/mirrorlab/invmirror/internal/invision"
	"github.com/mirrorlab/invmirror/internal/log"
	"github.com/mirrorlab/invmirror/internal/storage"
)

// task bundles the collaborators one project traversal needs.
type task struct {
	cl     Client
	layout storage.Layout
	loc    *assets.Localizer
	cfg    Config
	log    zerolog.Logger
}

// runProject mirrors a single project end to end. Failures below the share
// level degrade (logged, project continues); failures on project metadata or
// the screen listing fail the whole project.
func (t *task) runProject(ctx context.Context, p invision.Project, tags []invision.Tag) ProjectResult {
	res := ProjectResult{ID: p.ID, Name: p.Name}
	lg := t.log.With().Str(log.FieldProjectID, p.ID).Logger()

	fresh := projectMissing
	if t.cfg.Mode == ModeUpdate {
		fresh = checkProjectFreshness(t.layout, p)
		switch fresh {
		case projectInvalid:
			lg.Warn().Str(log.FieldEvent, "project.invalid").Msg("local project state unreadable, leaving untouched")
			res.Outcome = OutcomeIgnored
			return res
		case projectStale:
			if err := t.layout.RemoveProject(p.ID); err != nil {
				return failed(res, lg, "invalidate stale project", err)
			}
			fresh = projectMissing
		}
	}

	if fresh != projectFresh {
		doc, err := enrichTags(p, tags)
		if err != nil {
			return failed(res, lg, "enrich tags", err)
		}
		doc, err = t.loc.Localize(ctx, doc, p.ID, "")
		if err != nil {
			return failed(res, lg, "localise project document", err)
		}
		if err := storage.WriteJSON(t.layout.ProjectJSON(p.ID), doc); err != nil {
			return failed(res, lg, "write project document", err)
		}
	}

	t.mirrorShares(ctx, p.ID, lg)

	list, screensDoc, err := t.cl.Screens(ctx, p.ID)
	if err != nil {
		return failed(res, lg, "fetch screens", err)
	}
	if list.ArchivedScreensCount != 0 {
		archived, archivedDoc, err := t.cl.ArchivedScreens(ctx, p.ID)
		if err != nil {
			return failed(res, lg, "fetch archived screens", err)
		}
		arr := gjson.GetBytes(archivedDoc, "archivedscreens")
		if arr.Exists() {
			screensDoc, err = sjson.SetRawBytes(screensDoc, "archivedscreens", []byte(arr.Raw))
			if err != nil {
				return failed(res, lg, "merge archived screens", err)
			}
		}
		list.ArchivedScreens = archived.ArchivedScreens
	}

	res.Screens = len(list.Screens)
	res.ArchivedScreens = len(list.ArchivedScreens)

	if t.cfg.Mode == ModeUpdate && fresh == projectFresh {
		local, _ := storage.ReadJSON(t.layout.ScreensJSON(p.ID))
		stale, upToDate := diffScreens(local, list)
		for _, s := range stale {
			if err := t.layout.RemoveScreen(p.ID, s.ID); err != nil {
				return failed(res, lg, "invalidate stale screen", err)
			}
		}
		if upToDate {
			res.Outcome = OutcomeIgnored
			return res
		}
	}

	doc, err := t.loc.Localize(ctx, screensDoc, p.ID, "")
	if err != nil {
		return failed(res, lg, "localise screens document", err)
	}
	if err := storage.WriteJSON(t.layout.ScreensJSON(p.ID), doc); err != nil {
		return failed(res, lg, "write screens document", err)
	}

	// Archived projects expose no per-screen detail endpoints; their listing
	// is all the upstream still serves.
	if p.IsArchived {
		res.Outcome = OutcomeSuccessful
		return res
	}

	all := make([]invision.Screen, 0, len(list.Screens)+len(list.ArchivedScreens))
	all = append(all, list.Screens...)
	all = append(all, list.ArchivedScreens...)

	done := t.runScreens(ctx, p.ID, all)
	want := len(list.Screens) + int(list.ArchivedScreensCount)
	if done == want {
		res.Outcome = OutcomeSuccessful
		return res
	}
	res.Outcome = OutcomeFailed
	res.Error = fmt.Sprintf("%d of %d screens mirrored", done, want)
	lg.Error().Str(log.FieldEvent, "project.partial").Msg(res.Error)
	return res
}

// mirrorShares fetches and stores the share links. Share failures never fail
// the project: the links are auxiliary to the archive.
func (t *task) mirrorShares(ctx context.Context, projectID string, lg zerolog.Logger) {
	sharesDoc, shares, err := t.cl.Shares(ctx, projectID)
	if err != nil {
		lg.Warn().Err(err).Str(log.FieldEvent, "shares.fetch").Msg("fetch shares")
		return
	}
	if len(shares) == 0 {
		return
	}
	if t.cfg.Mode == ModeUpdate {
		if local, err := storage.ReadJSON(t.layout.SharesJSON(projectID)); err == nil && !sharesChanged(shares, local) {
			return
		}
	}
	doc, err := t.loc.Localize(ctx, sharesDoc, projectID, "")
	if err != nil {
		lg.Warn().Err(err).Str(log.FieldEvent, "shares.localise").Msg("localise shares document")
		return
	}
	if err := storage.WriteJSON(t.layout.SharesJSON(projectID), doc); err != nil {
		lg.Warn().Err(err).Str(log.FieldEvent, "shares.write").Msg("write shares document")
	}
}

// enrichTags splices the tags referencing the project into data.tags of its
// raw document. Projects without tags keep their document untouched.
func enrichTags(p invision.Project, tags []invision.Tag) ([]byte, error) {
	var matching [][]byte
	for _, t := range tags {
		if t.Contains(p.ID) {
			matching = append(matching, t.Raw)
		}
	}
	if len(matching) == 0 {
		return p.Raw, nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range matching {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return sjson.SetRawBytes(p.Raw, "data.tags", buf.Bytes())
}

func failed(res ProjectResult, lg zerolog.Logger, msg string, err error) ProjectResult {
	lg.Error().Err(err).Str(log.FieldEvent, "project.failed").Msg(msg)
	res.Outcome = OutcomeFailed
	res.Error = fmt.Sprintf("%s: %v", msg, err)
	return res
}
