// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/picket/pkg/check"
	"github.com/DataDog/picket/pkg/site"
	"github.com/DataDog/picket/pkg/util/passwd"
)

func newTestServer(t *testing.T) (*Server, *site.Site) {
	t.Helper()
	hash, err := passwd.CreateHash("letmein")
	require.NoError(t, err)
	doc := fmt.Sprintf(`{
	  "webui": {
	    "hostname": "localhost",
	    "port": 8443,
	    "cert": "cert.pem",
	    "key": "key.pem",
	    "users": {"admin": %q}
	  },
	  "actions": {"email": {"type": "email", "options": {"recipients": []}}},
	  "checks": {
	    "agent": {"type": "remote"},
	    "probe": {"type": "remote", "actions": ["email"]}
	  }
	}`, hash)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	st, err := site.Load(path)
	require.NoError(t, err)
	srv, err := New(st)
	require.NoError(t, err)
	return srv, st
}

func do(t *testing.T, srv *Server, method, target, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if auth {
		r.SetBasicAuth("admin", "letmein")
	}
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, r)
	return w
}

func TestNewRequiresWebConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"checks": {}}`), 0o600))
	st, err := site.Load(path)
	require.NoError(t, err)
	_, err = New(st)
	assert.Error(t, err)
}

func TestAuthentication(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/status", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.SetBasicAuth("admin", "wrong")
	w = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/status", nil)
	r.SetBasicAuth("ghost", "letmein")
	w = httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, http.MethodGet, "/status", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/status", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var st site.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Fail)
	require.NotNil(t, st.Info)
	assert.Equal(t, "2 checks in fail state", *st.Info)
	assert.Contains(t, st.Checks, "agent")
	assert.Contains(t, st.Checks, "probe")
	assert.Equal(t, "remote", st.Checks["agent"].CheckType)
	assert.Contains(t, w.Body.String(), `"checkType"`)
}

func TestGetLog(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/log", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	_, ok := body["log"]
	assert.True(t, ok)
}

func TestRunCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/checks/agent/run", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodPost, "/checks/nope/run", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutAndDeleteCheck(t *testing.T) {
	srv, st := newTestServer(t)

	w := do(t, srv, http.MethodPut, "/checks/extra", `{"type": "remote"}`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, st.GetCheck("extra"))

	// rename through the body name field
	w = do(t, srv, http.MethodPut, "/checks/extra", `{"type": "remote", "name": "spare"}`, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, st.GetCheck("extra"))
	require.NotNil(t, st.GetCheck("spare"))

	w = do(t, srv, http.MethodPut, "/checks/bad", `{"type": "pigeon"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPut, "/checks/bad", `{nope`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodDelete, "/checks/spare", "", true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Nil(t, st.GetCheck("spare"))
}

func TestRemoteUpdate(t *testing.T) {
	srv, st := newTestServer(t)

	body := `{
	  "name": "agent",
	  "type": "disk",
	  "data": {"failState": true, "failCount": 1, "log": ["disk full"]}
	}`
	w := do(t, srv, http.MethodPost, "/update", body, true)
	assert.Equal(t, http.StatusOK, w.Code)

	c := st.GetCheck("agent")
	require.NotNil(t, c)
	assert.Equal(t, "disk", c.SubType)
	assert.Equal(t, check.StateFail, c.FailState)
	assert.Equal(t, []string{"disk full"}, c.Log)

	w = do(t, srv, http.MethodPost, "/update", `{"name": "nope", "type": "disk", "data": {}}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/update", `{nope`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActionsTest(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/actions/test", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body["ok"], "no sms action is configured")
}
