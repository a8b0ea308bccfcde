package mdm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdeck-backend/internal/models"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	form   map[string]string
	token  string
	user   string
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var recorded []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form := map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		user, _, _ := r.BasicAuth()

		mu.Lock()
		recorded = append(recorded, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			form:   form,
			token:  r.Header.Get(teacherTokenHeader),
			user:   user,
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func TestClient_ClearRestrictions_SendsStudentAndToken(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"code":200}`)
	c := NewClient(Config{BaseURL: srv.URL, NetworkID: "net-1", APIKey: "key"})

	err := c.ClearRestrictions(context.Background(), "42", "teacher-token")
	require.NoError(t, err)

	require.Len(t, *recorded, 1)
	got := (*recorded)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/teacher/lessons/stop", got.path)
	assert.Equal(t, "42", got.form["student"])
	assert.Equal(t, "teacher-token", got.token)
	assert.Equal(t, "net-1", got.user)
}

func TestClient_LockIntoApp(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusAccepted, `{}`)
	c := NewClient(Config{BaseURL: srv.URL + "/"})

	require.NoError(t, c.LockIntoApp(context.Background(), "7", "com.example.login", "tok"))

	got := (*recorded)[0]
	assert.Equal(t, "/teacher/apply/applock", got.path)
	assert.Equal(t, "7", got.form["students"])
	assert.Equal(t, "com.example.login", got.form["apps"])
}

func TestClient_RestartDevice_NoTeacherToken(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{}`)
	c := NewClient(Config{BaseURL: srv.URL})

	require.NoError(t, c.RestartDevice(context.Background(), "UDID-1"))

	got := (*recorded)[0]
	assert.Equal(t, "/devices/UDID-1/restart", got.path)
	assert.Empty(t, got.token)
}

func TestClient_Non2xxIsAPIError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusForbidden, "token expired\n")
	c := NewClient(Config{BaseURL: srv.URL})

	err := c.ClearRestrictions(context.Background(), "42", "old")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "token expired", apiErr.Body)
}

func TestClient_GetApp_ClassifiesOnIngest(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"app":{"bundleId":"com.prodigygame.math","name":"Prodigy Math","icon":"https://cdn/icon.png","vendor":"Prodigy","description":"Math game"}}`)
	c := NewClient(Config{BaseURL: srv.URL})

	info, err := c.GetApp(context.Background(), "com.prodigygame.math")
	require.NoError(t, err)

	assert.Equal(t, "Prodigy Math", info.Name)
	assert.Equal(t, "https://cdn/icon.png", info.Icon)
	assert.Equal(t, models.CategoryMath, info.Category)
}

func TestClient_GetApp_BadJSON(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `not json`)
	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.GetApp(context.Background(), "com.example")
	assert.Error(t, err)
}

func TestClient_ListApps_ForLocation(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK, `{"apps":[
		{"bundleId":"com.getepic.epic","name":"Epic Books"},
		{"bundleId":"","name":"broken"},
		{"bundleId":"com.apple.mobilesafari","name":"Safari","vendor":"Apple"}
	]}`)
	c := NewClient(Config{BaseURL: srv.URL})

	apps, err := c.ListApps(context.Background(), 12)
	require.NoError(t, err)

	require.Len(t, apps, 2)
	assert.Equal(t, models.CategoryReading, apps[0].Category)
	assert.Equal(t, models.CategoryUtilities, apps[1].Category)
	require.Len(t, *recorded, 1)
	assert.Equal(t, "/apps", (*recorded)[0].path)
	assert.Equal(t, "location=12", (*recorded)[0].query)
}
