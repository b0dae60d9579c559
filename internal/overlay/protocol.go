package overlay

import (
	"context"
	"io"
	"time"

	"github.com/overlayd/overlayd/internal/shareindex"
)

// SearchScope narrows where a search request is sent.
type SearchScope int

const (
	ScopeNetwork SearchScope = iota
	ScopeUser
	ScopeRoom
)

// SearchOptions configures an outbound search request.
type SearchOptions struct {
	MaxResults    int
	FilterPattern string
}

// UploadOptions configures an outbound upload to a peer.
type UploadOptions struct {
	GroupName string
}

// DownloadOptions configures an outbound download from a peer.
type DownloadOptions struct{}

// BrowseResult is a peer's full share listing, as returned by BrowseAsync.
type BrowseResult struct {
	Directories []shareindex.Directory
}

// UserInfo is what the protocol returns for an incoming "get user info"
// request, resolved by Resolvers.UserInfo.
type UserInfo struct {
	Description     string
	UploadSlotsFree int
	QueueLength     int
}

// DisconnectCause identifies why a session ended, per §4.3: four causes
// short-circuit the reconnect loop, everything else triggers it.
type DisconnectCause int

const (
	// DisconnectUnexpected is any connection loss not covered below — the
	// only cause that triggers a reconnect attempt.
	DisconnectUnexpected DisconnectCause = iota
	DisconnectShutdown
	DisconnectOperator
	DisconnectInvalidCredentials
	DisconnectDisplaced
)

func (c DisconnectCause) String() string {
	switch c {
	case DisconnectUnexpected:
		return "unexpected"
	case DisconnectShutdown:
		return "shutdown"
	case DisconnectOperator:
		return "operator"
	case DisconnectInvalidCredentials:
		return "invalid_credentials"
	case DisconnectDisplaced:
		return "displaced"
	default:
		return "unknown"
	}
}

// reconnects reports whether this cause should re-enter the reconnect loop.
func (c DisconnectCause) reconnects() bool {
	return c == DisconnectUnexpected
}

// ProtocolEventKind identifies the shape of a ProtocolEvent's payload.
type ProtocolEventKind int

const (
	EventDisconnected ProtocolEventKind = iota
	EventSearchRequest
	EventPrivateMessage
	EventRoomMessage
	EventPeerStatus
)

// ProtocolEvent is one item from PeerProtocol.Events — the inbound event
// streams a logged-in session subscribes to (§4.3): disconnects, search
// requests, private messages, room messages, and peer status changes.
type ProtocolEvent struct {
	Kind ProtocolEventKind

	Disconnect     DisconnectInfo
	SearchRequest  *SearchRequestInfo
	PrivateMessage *PrivateMessageInfo
	RoomMessage    *RoomMessageInfo
	PeerStatus     *PeerStatusInfo
}

type DisconnectInfo struct {
	Cause DisconnectCause
	Err   error
}

type SearchRequestInfo struct {
	Token    string
	Query    string
	Username string
}

type PrivateMessageInfo struct {
	From      string
	Message   string
	Timestamp time.Time
}

type RoomMessageInfo struct {
	Room      string
	From      string
	Message   string
	Timestamp time.Time
}

type PeerStatusInfo struct {
	Username string
	Online   bool
}

// Resolvers are the callbacks a PeerProtocol implementation calls into when
// a peer asks something of this node (§6 "resolver hooks"). Controller
// fills Browse, Directory and SearchResponse from the shared-file index at
// construction time when they are nil and Config.Shares is set; UserInfo
// and EnqueueDownload are left as given (see Config).
type Resolvers struct {
	// Browse answers a peer's request for this node's full share listing.
	Browse func(ctx context.Context) (BrowseResult, error)
	// Directory answers a peer's request for one directory's contents.
	Directory func(ctx context.Context, path string) (shareindex.Directory, error)
	// UserInfo answers a peer's request for this node's profile info.
	UserInfo func(ctx context.Context, username string) (UserInfo, error)
	// EnqueueDownload is called when a peer pushes a file to us
	// unsolicited (an "upload to you" the protocol library auto-accepts).
	EnqueueDownload func(ctx context.Context, peer, filename string, size int64) error
	// SearchResponse answers an incoming search request against this
	// node's share index.
	SearchResponse func(ctx context.Context, query string) ([]shareindex.File, error)
}

// PeerProtocol is the overlay peer-protocol library this core depends on
// (§6 "Overlay peer-protocol library"). It is implemented outside this
// repository; Controller only drives it.
type PeerProtocol interface {
	Connect(ctx context.Context) error
	Login(ctx context.Context, username, password string) error
	Disconnect(reason string) error

	SearchAsync(ctx context.Context, query string, scope SearchScope, token string, opts SearchOptions) error
	UploadAsync(ctx context.Context, peer, filename string, size int64, stream io.Reader, opts UploadOptions) error
	DownloadAsync(ctx context.Context, peer, filename, localPath string, opts DownloadOptions) error
	BrowseAsync(ctx context.Context, peer string) (BrowseResult, error)

	SendUploadSpeedAsync(ctx context.Context, bytesPerSecond int64) error
	SetSharedCountsAsync(ctx context.Context, dirs, files int) error

	// ReconfigureOptions applies a live option patch, reporting whether a
	// reconnect is required for it to take effect (§6).
	ReconfigureOptions(patch map[string]any) (reconnectRequired bool, err error)

	// RegisterResolvers installs the callbacks the protocol calls into
	// for peer-initiated requests. Called once before the first Connect.
	RegisterResolvers(Resolvers) error

	// Events delivers disconnects and the inbound streams described in
	// §4.3(c). Closed once the protocol is permanently torn down.
	Events() <-chan ProtocolEvent
}

// CredentialSource supplies the *current* login credentials. The
// reconnect loop re-reads this on every attempt rather than caching the
// credentials used at the most recent login, since the operator may have
// corrected them in the meantime (§4.3).
type CredentialSource interface {
	Current() (username, password string)
}
