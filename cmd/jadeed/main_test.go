package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadibuxm/jadeed/internal/platform/store/storetest"
)

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "create-demo-org", "modules"} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, "config.yaml", cmd.PersistentFlags().Lookup("config").DefValue)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "dev (commit: none")
}

func TestCreateDemoOrgFlags(t *testing.T) {
	cmd := newCreateDemoOrgCmd(&rootOptions{})
	assert.Equal(t, "Demo Tech Company", cmd.Flags().Lookup("org-name").DefValue)
	assert.Equal(t, "admin", cmd.Flags().Lookup("admin-username").DefValue)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("json", &buf)
	require.NoError(t, err)
	logger.Info("hello", "module", "store")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "store", line["module"])

	buf.Reset()
	logger, err = newLogger("", &buf)
	require.NoError(t, err)
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, err = newLogger("xml", &buf)
	assert.ErrorIs(t, err, errUnknownLogFormat)
}

func TestModulesCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"modules"})
	require.NoError(t, cmd.Execute())

	for _, name := range []string{"store", "accounts", "organizations", "accounting", "jira", "github", "productmgmt", "aiengine", "jadeed"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "requestlog.middleware")
}

func TestRootModuleRoutes(t *testing.T) {
	st := storetest.New(t)
	m := &rootModule{store: st}
	r := chi.NewRouter()
	m.routes(r)

	get := func(path string) (int, map[string]string) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"status": "ok"}, body)

	code, body = get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, st.DB().Close())
	code, body = get("/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["status"])
	assert.NotEmpty(t, body["error"])
}
