package zmailbox

import (
	"context"
	"fmt"
)

// NoOp sends a request that does nothing, returning any pending
// notifications. It also keeps the session alive.
func (m *Mailbox) NoOp(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noOpLocked(ctx)
}

func (m *Mailbox) noOpLocked(ctx context.Context) error {
	_, err := m.invokeLocked(ctx, NewRequest("NoOpRequest", nil))
	return err
}

// ensureFolders populates the folder tree on first use. Under
// AlwaysRefreshFolders every access also picks up pending notifications.
func (m *Mailbox) ensureFolders(ctx context.Context) error {
	if m.mirror.foldersLoaded() {
		if m.opts.AlwaysRefreshFolders {
			return m.noOpLocked(ctx)
		}
		return nil
	}
	return m.populateFolderCache(ctx)
}

func (m *Mailbox) populateFolderCache(ctx context.Context) error {
	if m.opts.Notify == NotifyFull {
		// The first response of a session carries a refresh.
		if err := m.noOpLocked(ctx); err != nil {
			return err
		}
		if m.mirror.foldersLoaded() {
			return nil
		}
	}

	resp, err := m.invokeLocked(ctx, NewRequest("GetFolderRequest", map[string]any{"visible": true}))
	if err != nil {
		return err
	}
	var r struct {
		Folders []ItemData `json:"folder"`
	}
	if err := resp.Decode(&r); err != nil {
		return fmt.Errorf("zmailbox GetFolder: %w", err)
	}
	if len(r.Folders) == 0 {
		return fmt.Errorf("zmailbox GetFolder: %w: response without root folder", ErrMalformedNotification)
	}
	debugLog(m.log, "folder tree fetched", "root", r.Folders[0].ID)
	return m.proc.dispatchRefresh(&RefreshEvent{Folders: &r.Folders[0]})
}

// ensureTags populates the tag index on first use.
func (m *Mailbox) ensureTags(ctx context.Context) error {
	if m.mirror.tagsLoaded {
		return nil
	}
	return m.populateTagCache(ctx)
}

func (m *Mailbox) populateTagCache(ctx context.Context) error {
	if m.opts.Notify == NotifyFull {
		if err := m.noOpLocked(ctx); err != nil {
			return err
		}
		if m.mirror.tagsLoaded {
			return nil
		}
	}

	var tags []ItemData
	if !m.opts.NoTagCache {
		resp, err := m.invokeLocked(ctx, NewRequest("GetTagRequest", nil))
		switch {
		case IsFault(err, FaultPermDenied):
			debugLog(m.log, "tag list not readable, using an empty one")
		case err != nil:
			return err
		default:
			var r struct {
				Tags []ItemData `json:"tag"`
			}
			if err := resp.Decode(&r); err != nil {
				return fmt.Errorf("zmailbox GetTag: %w", err)
			}
			tags = r.Tags
		}
	}
	return m.proc.dispatchRefresh(&RefreshEvent{Tags: tags, HasTags: true})
}
