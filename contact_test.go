package zmailbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetContact(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("GetContactsRequest", `{"cn": [{"id": "700", "l": "7", "fileAsStr": "Doe, Jane", "_attrs": {"firstName": "Jane", "lastName": "Doe", "email": "jane@example.com"}}]}`, nil)
	inv.on("GetContactsRequest", `{"cn": [{"id": "700", "l": "7", "fileAsStr": "Doe, Janet", "_attrs": {"firstName": "Janet", "lastName": "Doe", "email": "janet@example.com"}}]}`, nil)
	mb := newTestMailbox(t, inv)

	cn, err := mb.GetContact(ctx, "700")
	require.NoError(t, err)
	assert.Equal(t, "Jane", cn.Attr("firstName"))
	assert.Equal(t, "Doe, Jane", cn.FileAs)
	assert.False(t, cn.IsDirty())

	req := inv.last("GetContactsRequest")
	assert.Equal(t, true, req.Attrs["sync"])
	assert.Equal(t, []map[string]any{{"id": "700"}}, req.Attrs["cn"])

	again, err := mb.GetContact(ctx, "700")
	require.NoError(t, err)
	assert.Same(t, cn, again)
	assert.Equal(t, 1, inv.count("GetContactsRequest"))

	// Flag changes are patched into a new cached copy.
	require.NoError(t, notifyOnNextNoOp(t, mb, inv, `{"notify": [{"seq": 1, "modified": {"cn": [{"id": "700", "f": "f"}]}}]}`))
	again, err = mb.GetContact(ctx, "700")
	require.NoError(t, err)
	assert.NotSame(t, cn, again)
	assert.True(t, again.Flags.Has(FlagFlagged))
	assert.Equal(t, "Jane", again.Attr("firstName"))
	assert.False(t, cn.Flags.Has(FlagFlagged))
	assert.Equal(t, 1, inv.count("GetContactsRequest"))

	// Attribute changes make the cached copy stale.
	require.NoError(t, notifyOnNextNoOp(t, mb, inv, `{"notify": [{"seq": 2, "modified": {"cn": [{"id": "700", "_attrs": {"firstName": "Janet"}}]}}]}`))
	stale := mb.GetContactFromCache("700")
	require.NotNil(t, stale)
	assert.True(t, stale.IsDirty())
	assert.Equal(t, "Janet", stale.Attr("firstName"))
	assert.Equal(t, "Jane", again.Attr("firstName"))

	fresh, err := mb.GetContact(ctx, "700")
	require.NoError(t, err)
	assert.NotSame(t, cn, fresh)
	assert.False(t, fresh.IsDirty())
	assert.Equal(t, "janet@example.com", fresh.Attr("email"))
	assert.Equal(t, 2, inv.count("GetContactsRequest"))

	require.NoError(t, notifyOnNextNoOp(t, mb, inv, `{"notify": [{"seq": 3, "deleted": {"id": "700"}}]}`))
	assert.Nil(t, mb.GetContactFromCache("700"))
}

func TestGetContactErrors(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("GetContactsRequest", `{}`, nil)
	mb := newTestMailbox(t, inv)

	_, err := mb.GetContact(ctx, "")
	assert.True(t, IsClientError(err))

	_, err = mb.GetContact(ctx, "701")
	assert.True(t, IsFault(err, FaultNoSuchContact))
}

func TestClearContactCache(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.always("GetContactsRequest", `{"cn": [{"id": "700", "fileAsStr": "Doe, Jane"}]}`, nil)
	mb := newTestMailbox(t, inv)

	_, err := mb.GetContact(ctx, "700")
	require.NoError(t, err)
	mb.ClearContactCache()
	assert.Nil(t, mb.GetContactFromCache("700"))
	_, err = mb.GetContact(ctx, "700")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count("GetContactsRequest"))
}
