package dispatch_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/autopilot/pkg/adapters/httpclient"
	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/dispatch"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/ports"
	"github.com/aretw0/autopilot/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method, path, query, auth, contentType, body string
}

func targetServer(t *testing.T, reply func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{
			method:      r.Method,
			path:        r.URL.Path,
			query:       r.URL.RawQuery,
			auth:        r.Header.Get("Authorization"),
			contentType: r.Header.Get("Content-Type"),
			body:        string(b),
		})
		reply(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestDispatch_LoginCapturesNestedToken(t *testing.T) {
	srv, _ := targetServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":10001,"data":{"token":"T1"}}`))
	})
	ctx := context.Background()
	store := state.New(memory.NewStore())
	d := dispatch.New(httpclient.New(), store, dispatch.WithBaseURL(srv.URL))

	out := d.Dispatch(ctx, domain.ActionSpec{Method: "POST", URL: "/api/user/login", Body: map[string]any{"user": "cat"}})
	require.NoError(t, out.Err)
	assert.Equal(t, "T1", out.Credential)

	tok, err := store.Get(ctx, domain.KeyLoginToken)
	require.NoError(t, err)
	assert.Equal(t, "T1", tok)
}

func TestDispatch_AttachesCredentialAndParams(t *testing.T) {
	srv, calls := targetServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	ctx := context.Background()
	store := state.New(memory.NewStore())
	require.NoError(t, store.SetLoginToken(ctx, "DYN"))
	d := dispatch.New(httpclient.New(), store)

	out := d.Dispatch(ctx, domain.ActionSpec{
		Method: "get",
		URL:    srv.URL + "/api/posts",
		Params: map[string]any{"page": float64(2), "q": "cats"},
	})
	require.True(t, out.OK())
	require.Len(t, *calls, 1)

	call := (*calls)[0]
	assert.Equal(t, "GET", call.method)
	assert.Equal(t, "page=2&q=cats", call.query)
	assert.Equal(t, "Bearer DYN", call.auth)
	assert.Equal(t, "application/json", call.contentType)

	last, ok := store.LastResponse(ctx)
	require.True(t, ok)
	assert.Equal(t, `{"data":[]}`, last)
}

func TestDispatch_PermanentTokenWins(t *testing.T) {
	srv, calls := targetServer(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx := context.Background()
	store := state.New(memory.NewStore(), state.WithPermanentToken("Bearer PERM"))
	require.NoError(t, store.SetLoginToken(ctx, "DYN"))

	dispatch.New(httpclient.New(), store).Dispatch(ctx, domain.ActionSpec{Method: "GET", URL: srv.URL})
	assert.Equal(t, "Bearer PERM", (*calls)[0].auth)
}

func TestDispatch_RawBodyText(t *testing.T) {
	srv, calls := targetServer(t, func(w http.ResponseWriter, r *http.Request) {})
	store := state.New(memory.NewStore())

	dispatch.New(httpclient.New(), store).Dispatch(context.Background(),
		domain.ActionSpec{Method: "POST", URL: srv.URL, BodyText: "hello"})
	assert.Equal(t, "hello", (*calls)[0].body)
	assert.Empty(t, (*calls)[0].auth)
}

func TestDispatch_FailedLoginKeepsNoToken(t *testing.T) {
	srv, _ := targetServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"token":"SHOULD-NOT-STICK"}`))
	})
	ctx := context.Background()
	store := state.New(memory.NewStore())

	out := dispatch.New(httpclient.New(), store).Dispatch(ctx, domain.ActionSpec{Method: "POST", URL: srv.URL + "/login"})
	assert.Equal(t, http.StatusUnauthorized, out.Status)
	assert.False(t, store.HasLoginToken(ctx))

	last, _ := store.LastResponse(ctx)
	assert.Contains(t, last, "SHOULD-NOT-STICK")
}

type failingTransport struct{}

func (failingTransport) Do(ctx context.Context, req ports.Request) (ports.Response, error) {
	return ports.Response{}, errors.New("connection refused")
}

func TestDispatch_TransportFailureRecordsSentinel(t *testing.T) {
	ctx := context.Background()
	store := state.New(memory.NewStore())

	out := dispatch.New(failingTransport{}, store).Dispatch(ctx, domain.ActionSpec{Method: "GET", URL: "http://target/api"})
	assert.Error(t, out.Err)

	last, ok := store.LastResponse(ctx)
	require.True(t, ok)
	assert.Equal(t, "ERROR: connection refused", last)
}

func TestDispatch_InvalidSpec(t *testing.T) {
	ctx := context.Background()
	store := state.New(memory.NewStore())

	out := dispatch.New(failingTransport{}, store).Dispatch(ctx, domain.ActionSpec{Method: "GET"})
	assert.ErrorIs(t, out.Err, domain.ErrInvalidAction)

	last, _ := store.LastResponse(ctx)
	assert.True(t, strings.HasPrefix(last, domain.ErrorPrefix))
}

func TestDispatchAll_ContinuesAfterFailure(t *testing.T) {
	srv, calls := targetServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})
	ctx := context.Background()
	store := state.New(memory.NewStore())
	d := dispatch.New(httpclient.New(), store, dispatch.WithBaseURL(srv.URL+"/"))

	outs := d.DispatchAll(ctx, []domain.ActionSpec{
		{Method: "GET", URL: "/first"},
		{Method: "", URL: "/broken"},
		{Method: "GET", URL: "second"},
	})
	require.Len(t, outs, 3)
	assert.Error(t, outs[1].Err)
	assert.Len(t, *calls, 2)

	last, _ := store.LastResponse(ctx)
	assert.Equal(t, "/second", last)
}

func TestDispatchAll_StopsWhenCancelled(t *testing.T) {
	srv, calls := targetServer(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outs := dispatch.New(httpclient.New(), state.New(memory.NewStore())).DispatchAll(ctx,
		[]domain.ActionSpec{{Method: "GET", URL: srv.URL}})
	assert.Empty(t, outs)
	assert.Empty(t, *calls)
}

func TestDispatch_CustomLoginPattern(t *testing.T) {
	srv, _ := targetServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jwt":"J"}`))
	})
	ctx := context.Background()
	store := state.New(memory.NewStore())
	d := dispatch.New(httpclient.New(), store, dispatch.WithLoginPattern("SIGNIN"))

	d.Dispatch(ctx, domain.ActionSpec{Method: "POST", URL: srv.URL + "/auth/signin"})
	tok, ok := store.LoginToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "J", tok)
}

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"nested data token", `{"data":{"token":"T1"},"token":"T2"}`, "T1", true},
		{"top-level token", `{"token":"T2","jwt":"J"}`, "T2", true},
		{"accessToken", `{"accessToken":"A"}`, "A", true},
		{"access_token", `{"access_token":"a"}`, "a", true},
		{"authToken", `{"authToken":"B"}`, "B", true},
		{"jwt", `{"jwt":"J"}`, "J", true},
		{"empty data token falls through", `{"data":{"token":""},"jwt":"J"}`, "J", true},
		{"none", `{"data":{"user":"x"}}`, "", false},
		{"not json", `token=abc`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := dispatch.ExtractCredential(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
