// SPDX-License-Identifier: MIT

package mirror

import (
	"context"

	"github.com/mirrorlab/invmirror/internal/assets"
	"github.com/mirrorlab/invmirror/internal/invision"
)

// Client is the slice of the upstream adapter the orchestrator needs;
// satisfied by *invision.Client and by test doubles.
type Client interface {
	Login(ctx context.Context) error
	Projects(ctx context.Context, archived bool) ([]invision.Project, error)
	Tags(ctx context.Context) ([]byte, []invision.Tag, error)
	Screens(ctx context.Context, projectID string) (*invision.ScreenList, []byte, error)
	ArchivedScreens(ctx context.Context, projectID string) (*invision.ScreenList, []byte, error)
	ScreenDetails(ctx context.Context, screenID string, archived bool) ([]byte, error)
	ScreenInspect(ctx context.Context, screenID string) ([]byte, error)
	ScreenHistory(ctx context.Context, screenID string) ([]byte, error)
	Shares(ctx context.Context, projectID string) ([]byte, []invision.Share, error)

	assets.Downloader
}

var _ Client = (*invision.Client)(nil)
