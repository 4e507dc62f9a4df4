package zmailbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const folderReply = `{"folder": [{"id": "1", "name": "USER_ROOT", "folder": [
	{"id": "2", "name": "Inbox", "l": "1"},
	{"id": "7", "name": "Contacts", "l": "1", "view": "contact"}
]}]}`

func TestPopulateWithoutSession(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("GetFolderRequest", folderReply, nil)
	inv.on("GetTagRequest", `{"tag": [{"id": "64", "name": "urgent"}]}`, nil)
	mb := NewWithInvoker(inv, Options{AccountID: testAccountID, Notify: NotifyNoSession})

	contacts, err := mb.GetContacts(ctx)
	require.NoError(t, err)
	require.NotNil(t, contacts)
	assert.Equal(t, ViewContact, contacts.DefaultView())

	tag, err := mb.GetTagByName(ctx, "urgent")
	require.NoError(t, err)
	require.NotNil(t, tag)

	assert.Equal(t, 0, inv.count("NoOpRequest"))
	assert.Equal(t, 1, inv.count("GetFolderRequest"))
	assert.Equal(t, 1, inv.count("GetTagRequest"))

	req := inv.last("GetFolderRequest")
	assert.True(t, req.NoSession)
	assert.Equal(t, true, req.Attrs["visible"])

	// Loaded once.
	_, err = mb.GetAllFolders(ctx)
	require.NoError(t, err)
	_, err = mb.GetAllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.count("GetFolderRequest"))
	assert.Equal(t, 1, inv.count("GetTagRequest"))
}

func TestPopulateFallsBackWhenNoOpHasNoRefresh(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("GetFolderRequest", folderReply, nil)
	inv.on("GetTagRequest", `{}`, nil)
	mb := NewWithInvoker(inv, Options{AccountID: testAccountID})

	inbox, err := mb.GetInbox(ctx)
	require.NoError(t, err)
	require.NotNil(t, inbox)
	assert.Equal(t, 1, inv.count("NoOpRequest"))
	assert.Equal(t, 1, inv.count("GetFolderRequest"))
	assert.False(t, inv.last("GetFolderRequest").NoSession)

	ok, err := mb.HasTags(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, inv.count("NoOpRequest"))
	assert.Equal(t, 1, inv.count("GetTagRequest"))
}

func TestPopulateRefreshReachesCaches(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.always("SearchRequest", hitsPage(1, 1, false), nil)
	inv.on("GetFolderRequest", folderReply, nil)
	mb := NewWithInvoker(inv, Options{AccountID: testAccountID, Notify: NotifyNoSession})

	p := SearchParams{Query: "x"}
	_, err := mb.SearchPage(ctx, p, 0, true, false)
	require.NoError(t, err)
	_, err = mb.GetInbox(ctx)
	require.NoError(t, err)
	_, err = mb.SearchPage(ctx, p, 0, true, false)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.count("SearchRequest"))
}

func TestAlwaysRefreshFolders(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("NoOpRequest", nil, mustContext(t, testRefresh))
	mb := NewWithInvoker(inv, Options{AccountID: testAccountID, AlwaysRefreshFolders: true})

	for j := 0; j < 3; j++ {
		_, err := mb.GetInbox(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inv.count("NoOpRequest"))
	assert.Equal(t, 0, inv.count("GetFolderRequest"))
}

func TestTagPermissionDenied(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.on("GetFolderRequest", folderReply, nil)
	inv.fail("GetTagRequest", &Fault{Code: FaultPermDenied, Reason: "permission denied", Request: "GetTagRequest"})
	mb := NewWithInvoker(inv, Options{Notify: NotifyNoSession})

	tags, err := mb.GetAllTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.Equal(t, 1, inv.count("GetTagRequest"))

	_, err = mb.GetAllTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.count("GetTagRequest"))
}

func TestTagFetchFaultPropagates(t *testing.T) {
	inv := newFakeInvoker()
	inv.fail("GetTagRequest", &Fault{Code: FaultServiceFailure, Reason: "boom"})
	mb := NewWithInvoker(inv, Options{Notify: NotifyNoSession})

	_, err := mb.GetAllTags(context.Background())
	assert.True(t, IsFault(err, FaultServiceFailure))
}

func TestNoTagCache(t *testing.T) {
	inv := newFakeInvoker()
	mb := NewWithInvoker(inv, Options{Notify: NotifyNoSession, NoTagCache: true})

	names, err := mb.GetAllTagNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 0, inv.count("GetTagRequest"))
}

func TestPopulateIOError(t *testing.T) {
	ctx := context.Background()
	inv := newFakeInvoker()
	inv.fail("NoOpRequest", &IOError{Op: "NoOpRequest", Err: errors.New("connection refused")})
	mb := NewWithInvoker(inv, Options{})

	_, err := mb.GetInbox(ctx)
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.True(t, Retryable(err))

	// Nothing was loaded, so the next call tries again.
	inv.on("NoOpRequest", nil, mustContext(t, testRefresh))
	inbox, err := mb.GetInbox(ctx)
	require.NoError(t, err)
	assert.NotNil(t, inbox)
}

func TestTargetAccountSentWithRequests(t *testing.T) {
	inv := newFakeInvoker()
	inv.on("GetFolderRequest", folderReply, nil)
	mb := NewWithInvoker(inv, Options{Notify: NotifyNoSession, TargetAccount: "acct-shared"})

	_, err := mb.GetInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acct-shared", inv.last("GetFolderRequest").TargetAccount)
}
