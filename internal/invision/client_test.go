// SPDX-License-Identifier: MIT

package invision_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mirrorlab/invmirror/internal/invision"
	"github.com/mirrorlab/invmirror/internal/invision/invisiontest"
)

func newTestClient(t *testing.T, u *invisiontest.Upstream) *invision.Client {
	t.Helper()
	cl, err := invision.New(invision.Options{
		Email:             u.Email,
		Password:          u.Password,
		BaseURL:           u.URL,
		LoginURL:          u.URL,
		MaxRetries:        3,
		RetryWait:         time.Millisecond,
		RetryMaxWait:      5 * time.Millisecond,
		RequestsPerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return cl
}

func login(t *testing.T, cl *invision.Client) {
	t.Helper()
	if err := cl.Login(context.Background()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
}

func TestLoginSeedsSession(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()
	u.SetTags(`{"id":1,"name":"design","prototypeIDs":[101]}`)

	cl := newTestClient(t, u)
	login(t, cl)

	// The tags endpoint requires the XSRF header read from the seeded cookie.
	if _, _, err := cl.Tags(context.Background()); err != nil {
		t.Fatalf("Tags() after login failed: %v", err)
	}
	if got := u.Requests("/api/account/login"); got != 1 {
		t.Errorf("api login requests = %d, want 1", got)
	}
}

func TestLoginRejectedIsAuthFailed(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()

	cl, err := invision.New(invision.Options{
		Email:             u.Email,
		Password:          "wrong",
		BaseURL:           u.URL,
		LoginURL:          u.URL,
		MaxRetries:        1,
		RetryWait:         time.Millisecond,
		RetryMaxWait:      time.Millisecond,
		RequestsPerSecond: 1000,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	err = cl.Login(context.Background())
	if !errors.Is(err, invision.ErrAuthFailed) {
		t.Fatalf("Login() error = %v, want ErrAuthFailed", err)
	}
	if !errors.Is(err, invision.ErrStatus) {
		t.Errorf("Login() error should wrap the upstream status error, got %v", err)
	}
}

func TestRetryOnRateLimitThenSuccess(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()
	u.SetTags(`{"id":1,"name":"design","prototypeIDs":[]}`)

	cl := newTestClient(t, u)
	login(t, cl)

	const path = "/api:unifiedprojects.getTags"
	u.FailNext(path, 3, http.StatusTooManyRequests)

	if _, _, err := cl.Tags(context.Background()); err != nil {
		t.Fatalf("Tags() should recover after 429s, got %v", err)
	}
	if got := u.Requests(path); got != 4 {
		t.Errorf("requests = %d, want 4 (3 failures + 1 success)", got)
	}
}

func TestNonRetryableStatusFailsImmediately(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()

	cl := newTestClient(t, u)
	login(t, cl)

	const path = "/api:unifiedprojects.getTags"
	u.FailNext(path, 1, http.StatusNotFound)

	_, _, err := cl.Tags(context.Background())
	if !errors.Is(err, invision.ErrStatus) {
		t.Fatalf("Tags() error = %v, want ErrStatus", err)
	}
	var ue *invision.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error %v is not an *UpstreamError", err)
	}
	if ue.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", ue.Status)
	}
	if got := u.Requests(path); got != 1 {
		t.Errorf("requests = %d, want 1 (no retries on 404)", got)
	}
}

func TestRetriesExhausted(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()

	cl := newTestClient(t, u)
	login(t, cl)

	const path = "/api:unifiedprojects.getTags"
	u.FailNext(path, 100, http.StatusServiceUnavailable)

	_, _, err := cl.Tags(context.Background())
	if !errors.Is(err, invision.ErrRetriesExhausted) {
		t.Fatalf("Tags() error = %v, want ErrRetriesExhausted", err)
	}
	// MaxRetries=3 means 1 initial attempt + 3 retries.
	if got := u.Requests(path); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
}

func TestContextCancelAbortsRetryLoop(t *testing.T) {
	u := invisiontest.New()
	defer u.Close()

	cl := newTestClient(t, u)
	login(t, cl)

	const path = "/api:unifiedprojects.getTags"
	u.FailNext(path, 100, http.StatusServiceUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := cl.Tags(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Tags() error = %v, want context.Canceled", err)
	}
}
