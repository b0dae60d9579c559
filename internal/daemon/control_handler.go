package daemon

import (
	"github.com/overlayd/overlayd/internal/controlsock"
	"github.com/overlayd/overlayd/internal/transfer"
)

// controlHandler adapts a Daemon's subsystems to controlsock.Handler, the
// surface cmd/overlayd's CLI subcommands dial over the control socket
// (§6.1).
type controlHandler struct {
	d *Daemon
}

func (h *controlHandler) ListShares() ([]controlsock.ShareDirectory, error) {
	dirs := h.d.index.Browse()
	out := make([]controlsock.ShareDirectory, 0, len(dirs))
	for _, dir := range dirs {
		files := make([]controlsock.ShareFile, 0, len(dir.Files))
		for _, f := range dir.Files {
			files = append(files, controlsock.ShareFile{Name: f.Name, Size: f.Size})
		}
		out = append(out, controlsock.ShareDirectory{Path: dir.VirtualPath, Files: files})
	}
	return out, nil
}

func (h *controlHandler) RescanShares() error {
	return h.d.index.Refill()
}

func (h *controlHandler) ListTransfers(direction string) ([]controlsock.TransferEntry, error) {
	dir := transfer.Direction(direction)
	var transfers []transfer.Transfer
	if direction == "" {
		transfers = append(h.d.engine.List(transfer.Upload, nil), h.d.engine.List(transfer.Download, nil)...)
	} else {
		transfers = h.d.engine.List(dir, nil)
	}

	out := make([]controlsock.TransferEntry, 0, len(transfers))
	for _, t := range transfers {
		bytesTransferred, _ := t.Progress()
		errText := ""
		if err := t.Err(); err != nil {
			errText = err.Error()
		}
		out = append(out, controlsock.TransferEntry{
			ID:               t.ID,
			Direction:        string(t.Direction),
			Username:         t.Username,
			Group:            t.Group,
			RemoteFilename:   t.RemoteFilename,
			Size:             t.Size,
			BytesTransferred: bytesTransferred,
			State:            string(t.State()),
			Err:              errText,
		})
	}
	return out, nil
}

func (h *controlHandler) CancelTransfer(direction, username, id string) error {
	return h.d.engine.Cancel(transfer.Direction(direction), username, id, false)
}

func (h *controlHandler) ListAgents() ([]controlsock.AgentEntry, error) {
	names := h.d.fabric.ConnectedAgents()
	out := make([]controlsock.AgentEntry, 0, len(names))
	for _, name := range names {
		out = append(out, controlsock.AgentEntry{Name: name, Connected: true})
	}
	return out, nil
}

func (h *controlHandler) RecentLogs(n int) ([]controlsock.LogLine, error) {
	entries := h.d.logs.Recent(n)
	out := make([]controlsock.LogLine, 0, len(entries))
	for _, e := range entries {
		out = append(out, controlsock.LogLine{
			Timestamp: e.Timestamp,
			Level:     e.Level,
			Message:   e.Message,
			Fields:    e.Fields,
		})
	}
	return out, nil
}

var _ controlsock.Handler = (*controlHandler)(nil)
