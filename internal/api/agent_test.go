package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/just-nadir/justpos-sync/internal/database"
	"github.com/just-nadir/justpos-sync/internal/schema"
	"github.com/just-nadir/justpos-sync/internal/store"
)

func TestAgentStatus(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	st, err := store.NewSQLiteStore(db, schema.Default())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.InsertRow(ctx, "products", map[string]any{"name": "P"})
	require.NoError(t, err)
	require.NoError(t, st.SetCursor(ctx, 4242))

	srv := httptest.NewServer(NewAgentHandler(st).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		QueueDepth   int   `json:"queue_depth"`
		LastPulledAt int64 `json:"last_pulled_at"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, status.QueueDepth)
	assert.Equal(t, int64(4242), status.LastPulledAt)
}
