// SPDX-License-Identifier: MIT

package invision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mirrorlab/invmirror/internal/log"
)

// Login performs the two-step credential exchange. The classic login seeds
// the session cookies (including the XSRF token); the API login exchanges
// them for the session the projects endpoints accept. Both must succeed
// before any other call.
func (c *Client) Login(ctx context.Context) error {
	logger := log.WithComponent("invision")

	body, err := json.Marshal(map[string]string{
		"deviceID": "App",
		"email":    c.opts.Email,
		"password": c.opts.Password,
	})
	if err != nil {
		return fmt.Errorf("%w: encode classic login: %w", ErrAuthFailed, err)
	}
	resp, err := c.do(ctx, "login.classic", http.MethodPost,
		c.login+"/login-api/api/v2/login", nil, body,
		http.Header{"Content-Type": {"application/json"}})
	if err != nil {
		return fmt.Errorf("%w: classic login: %w", ErrAuthFailed, err)
	}
	drain(resp)
	logger.Debug().Str(log.FieldEvent, "auth.classic").Msg("classic login succeeded")

	form := url.Values{
		"email":    {c.opts.Email},
		"password": {c.opts.Password},
		"webview":  {"false"},
	}
	resp, err = c.do(ctx, "login.api", http.MethodPost,
		c.base+"/api/account/login", nil, []byte(form.Encode()),
		http.Header{"Content-Type": {"application/x-www-form-urlencoded"}})
	if err != nil {
		return fmt.Errorf("%w: api login: %w", ErrAuthFailed, err)
	}
	drain(resp)
	logger.Info().Str(log.FieldEvent, "auth.success").Msg("authenticated against upstream")

	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
