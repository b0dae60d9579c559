// Package controlsock implements the Unix domain socket control plane
// cmd/overlayd's CLI subcommands talk to (§6.1), replacing the teacher's
// GUI IPC: a daemon process listens on the socket, a short-lived CLI
// process dials it, sends one request, reads one response, and exits.
package controlsock

import "encoding/json"

// MessageType identifies the kind of request or response carried in a
// Request/Response envelope.
type MessageType string

const (
	// Request types (client -> server)
	MsgListShares     MessageType = "ListShares"
	MsgRescanShares   MessageType = "RescanShares"
	MsgListTransfers  MessageType = "ListTransfers"
	MsgCancelTransfer MessageType = "CancelTransfer"
	MsgListAgents     MessageType = "ListAgents"
	MsgListLogs       MessageType = "ListLogs"

	// Response types (server -> client)
	MsgOK                   MessageType = "OK"
	MsgError                MessageType = "Error"
	MsgShareListResponse    MessageType = "ShareListResponse"
	MsgTransferListResponse MessageType = "TransferListResponse"
	MsgAgentListResponse    MessageType = "AgentListResponse"
	MsgLogListResponse      MessageType = "LogListResponse"
)

// Request is a single control-plane call. Which fields are meaningful
// depends on Type: ListTransfers/CancelTransfer use Direction (and
// CancelTransfer also uses Username/ID); ListLogs reuses ID to carry the
// requested entry count as a decimal string; the others ignore all three.
type Request struct {
	Type      MessageType `json:"type"`
	Direction string      `json:"direction,omitempty"`
	Username  string      `json:"username,omitempty"`
	ID        string      `json:"id,omitempty"`
}

// Response is the single reply to a Request.
type Response struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ShareFile is one file entry under a ShareDirectory.
type ShareFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ShareDirectory is one directory entry in a ListShares response.
type ShareDirectory struct {
	Path  string      `json:"path"`
	Files []ShareFile `json:"files"`
}

// ShareListData wraps the share catalog returned by ListShares.
type ShareListData struct {
	Directories []ShareDirectory `json:"directories"`
}

// TransferEntry is one transfer's status, as reported by ListTransfers.
type TransferEntry struct {
	ID               string `json:"id"`
	Direction        string `json:"direction"`
	Username         string `json:"username"`
	Group            string `json:"group"`
	RemoteFilename   string `json:"remote_filename"`
	Size             int64  `json:"size"`
	BytesTransferred int64  `json:"bytes_transferred"`
	State            string `json:"state"`
	Err              string `json:"err,omitempty"`
}

// TransferListData wraps the transfers returned by ListTransfers.
type TransferListData struct {
	Transfers []TransferEntry `json:"transfers"`
}

// AgentEntry is one registered agent's status, as reported by ListAgents.
type AgentEntry struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// AgentListData wraps the agents returned by ListAgents.
type AgentListData struct {
	Agents []AgentEntry `json:"agents"`
}

// LogLine is one buffered log entry, as reported by ListLogs.
type LogLine struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogListData wraps the entries returned by ListLogs.
type LogListData struct {
	Lines []LogLine `json:"lines"`
}

// NewRequest builds a Request carrying no extra fields.
func NewRequest(msgType MessageType) *Request {
	return &Request{Type: msgType}
}

// NewOKResponse builds a bare success response.
func NewOKResponse() *Response {
	return &Response{Type: MsgOK, Success: true}
}

// NewErrorResponse builds a failure response carrying err's message.
func NewErrorResponse(err string) *Response {
	return &Response{Type: MsgError, Success: false, Error: err}
}

// NewShareListResponse builds a ListShares success response.
func NewShareListResponse(dirs []ShareDirectory) *Response {
	return &Response{Type: MsgShareListResponse, Success: true, Data: &ShareListData{Directories: dirs}}
}

// NewTransferListResponse builds a ListTransfers success response.
func NewTransferListResponse(transfers []TransferEntry) *Response {
	return &Response{Type: MsgTransferListResponse, Success: true, Data: &TransferListData{Transfers: transfers}}
}

// NewAgentListResponse builds a ListAgents success response.
func NewAgentListResponse(agents []AgentEntry) *Response {
	return &Response{Type: MsgAgentListResponse, Success: true, Data: &AgentListData{Agents: agents}}
}

// NewLogListResponse builds a ListLogs success response.
func NewLogListResponse(lines []LogLine) *Response {
	return &Response{Type: MsgLogListResponse, Success: true, Data: &LogListData{Lines: lines}}
}

// Encode serializes r to JSON.
func (r *Request) Encode() ([]byte, error) { return json.Marshal(r) }

// Encode serializes r to JSON.
func (r *Response) Encode() ([]byte, error) { return json.Marshal(r) }

// DecodeRequest deserializes a Request from JSON.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// DecodeResponse deserializes a Response from JSON.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShareListData extracts ShareListData from r.Data, which after a JSON
// round trip through interface{} arrives as map[string]interface{} rather
// than the original struct.
func (r *Response) ShareListData() (*ShareListData, error) {
	return decodeData[ShareListData](r.Data)
}

// TransferListData extracts TransferListData from r.Data.
func (r *Response) TransferListData() (*TransferListData, error) {
	return decodeData[TransferListData](r.Data)
}

// AgentListData extracts AgentListData from r.Data.
func (r *Response) AgentListData() (*AgentListData, error) {
	return decodeData[AgentListData](r.Data)
}

// LogListData extracts LogListData from r.Data.
func (r *Response) LogListData() (*LogListData, error) {
	return decodeData[LogListData](r.Data)
}

func decodeData[T any](data interface{}) (*T, error) {
	if data == nil {
		return new(T), nil
	}
	if typed, ok := data.(*T); ok {
		return typed, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
