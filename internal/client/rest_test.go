package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

func newRESTClient(t *testing.T) (*backend, *REST) {
	t.Helper()
	b := newBackend(t)
	return b, NewREST(RESTOptions{BaseURL: b.base, Timeout: 2 * time.Second})
}

func TestRESTGet(t *testing.T) {
	_, c := newRESTClient(t)

	f, rev, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rev)
	assert.Equal(t, encodeForest(t, sampleForest()), encodeForest(t, f))
}

func TestRESTMutations(t *testing.T) {
	b, c := newRESTClient(t)
	ctx := context.Background()

	m, err := c.Apply(ctx, coordinator.Intent{Op: coordinator.OpInsert, ParentID: "dev", Kind: "bookmark"})
	require.NoError(t, err)
	assert.True(t, m.Success)
	assert.Equal(t, uint64(1), m.Revision)
	require.NotEmpty(t, m.ID)
	assert.Equal(t, tree.DefaultLeafName, nameOf(t, m.Forest, m.ID))

	m, err = c.Save(ctx, tree.Forest{{ID: "solo", Name: "Solo", URL: "https://solo.dev"}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Revision)
	require.Len(t, m.Forest, 1)

	m, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Revision)
	assert.Empty(t, m.Forest)

	m, err = c.Save(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), m.Revision)

	server, _ := b.coord.Snapshot()
	assert.Empty(t, server)
}

func TestRESTErrors(t *testing.T) {
	b, c := newRESTClient(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		intent coordinator.Intent
		status int
		code   types.Code
	}{
		{"unknown node", coordinator.Intent{Op: coordinator.OpRename, ID: "ghost", Name: "x"}, http.StatusNotFound, types.CodeNotFound},
		{"folder into itself", coordinator.Intent{Op: coordinator.OpMove, IDs: []string{"dev"}, ParentID: "dev"}, http.StatusBadRequest, types.CodeInvalidTarget},
		{"unknown op", coordinator.Intent{Op: "explode"}, http.StatusBadRequest, types.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Apply(ctx, tt.intent)
			var remote *RemoteError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.status, remote.Status)
			assert.Equal(t, tt.code, remote.Code)
			assert.NotEmpty(t, remote.Message)
		})
	}

	b.store.fail(errDiskFull)
	_, err := c.Clear(ctx)
	assert.True(t, IsCode(err, types.CodeIO), "got %v", err)
	assert.Equal(t, uint64(0), b.coord.Revision())
}

func TestRESTQueries(t *testing.T) {
	b, c := newRESTClient(t)
	ctx := context.Background()

	tagged := sampleForest()
	tagged[1].Tags = []string{"writing"}
	_, err := b.coord.Apply(ctx, "test", coordinator.Replace(tagged))
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Folders)
	assert.Equal(t, 2, stats.Bookmarks)
	assert.Equal(t, 1, stats.Tags)

	tags, err := c.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"writing"}, tags)

	matches, err := c.Search(ctx, tree.Query{URLGlob: "https://react.*"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "react", matches[0].Node.ID)
	assert.Equal(t, "dev", matches[0].ParentID)

	_, err = c.Search(ctx, tree.Query{URLGlob: "[broken"})
	assert.True(t, IsCode(err, types.CodeInvalidTarget), "got %v", err)
}

func TestRESTHealth(t *testing.T) {
	b, c := newRESTClient(t)
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)

	require.NoError(t, b.coord.Stop(ctx))
	h, err = c.Health(ctx)
	assert.True(t, IsCode(err, types.CodeUnavailable), "got %v", err)
	assert.NotEqual(t, "ok", h.Status)
}
