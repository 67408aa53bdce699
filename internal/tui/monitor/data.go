package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/nhatky/internal/db"
)

const (
	maxEntries   = 50
	maxConflicts = 20
)

// FetchData retrieves all data needed for the monitor display
func FetchData(ctx context.Context, src Source, net Connectivity, ownerID string) RefreshDataMsg {
	msg := RefreshDataMsg{Timestamp: time.Now()}
	var data Snapshot
	var err error

	if data.Queue, err = src.ListAllQueue(ctx); err != nil {
		msg.Err = fmt.Errorf("read queue: %w", err)
		return msg
	}

	if data.Entries, err = src.GetAllTimelineEntries(ctx, ownerID); err != nil {
		msg.Err = fmt.Errorf("read entries: %w", err)
		return msg
	}
	if len(data.Entries) > maxEntries {
		data.Entries = data.Entries[:maxEntries]
	}

	if data.Conflicts, err = src.ListConflicts(ctx, maxConflicts); err != nil {
		msg.Err = fmt.Errorf("read conflicts: %w", err)
		return msg
	}

	if data.Counts, err = src.SyncCounts(ctx); err != nil {
		msg.Err = fmt.Errorf("count unsynced: %w", err)
		return msg
	}

	data.LastSuccess, _ = src.GetTimeSetting(ctx, db.SettingLastSyncSuccess)
	if net != nil {
		data.Online = net.Online()
	}

	msg.Data = data
	return msg
}
