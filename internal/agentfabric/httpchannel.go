package agentfabric

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/overlayd/overlayd/internal/crypto"
	"golang.org/x/net/http2"
)

const ticketSignatureHeader = "X-Ticket-Signature"

// ShareCatalogSink ingests an agent's uploaded share catalog. The
// shareindex package does not yet implement one; a controller that wants
// to advertise agent-hosted files wires a concrete implementation in here.
type ShareCatalogSink interface {
	IngestShareCatalog(agentName string, body io.Reader) error
}

// HTTPHandlers implements the two secondary HTTP endpoints agents call
// after the control channel hands them a one-shot token (§6 "Secondary
// HTTP endpoints").
type HTTPHandlers struct {
	Fabric *Fabric
	Shares ShareCatalogSink // optional
}

// ServeShareUpload backs `POST /agents/shares/{token}`.
func (h *HTTPHandlers) ServeShareUpload(w http.ResponseWriter, r *http.Request) {
	token, sig, err := ticketFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	agentName, kind, err := h.Fabric.ValidateTicket(token, sig)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if kind != ticketShareUpload {
		http.Error(w, "ticket was not issued for a share upload", http.StatusBadRequest)
		return
	}

	if h.Shares != nil {
		if err := h.Shares.IngestShareCatalog(agentName, r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	} else {
		io.Copy(io.Discard, r.Body)
	}
	w.WriteHeader(http.StatusOK)
}

// ServeFileUpload backs `POST /agents/files/{token}`. It blocks holding
// the agent's connection open until the transfer engine has finished
// relaying the uploaded bytes to the waiting overlay peer.
func (h *HTTPHandlers) ServeFileUpload(w http.ResponseWriter, r *http.Request) {
	token, sig, err := ticketFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Fabric.ServeFileUpload(r.Context(), token, sig, r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ticketFromRequest extracts the hex-encoded token from the URL path's
// final segment and the signature from ticketSignatureHeader.
func ticketFromRequest(r *http.Request) (token, sig []byte, err error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("missing ticket in path")
	}
	token, err = hex.DecodeString(parts[len(parts)-1])
	if err != nil {
		return nil, nil, fmt.Errorf("malformed ticket: %w", err)
	}
	sig, err = hex.DecodeString(r.Header.Get(ticketSignatureHeader))
	if err != nil {
		return nil, nil, fmt.Errorf("malformed ticket signature: %w", err)
	}
	return token, sig, nil
}

// AgentClient is the agent-side (remote node) HTTP uploader: it posts a
// share catalog or a single file's bytes to the controller once the
// control channel has handed it a ticket to redeem. Retries transient
// failures via retryablehttp and prefers HTTP/2 for the long-lived,
// large-bodied file uploads.
type AgentClient struct {
	BaseURL string
	Secret  []byte

	http *retryablehttp.Client
}

// NewAgentClient builds an AgentClient whose retry policy and transport
// mirror the controller's own outbound HTTP stance: bounded retries with
// a capped backoff, HTTP/2 preferred over a pooled transport.
func NewAgentClient(baseURL string, secret []byte) *AgentClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 5
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = nil

	if tr, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
		tr.ForceAttemptHTTP2 = true
		_ = http2.ConfigureTransport(tr)
	}

	return &AgentClient{BaseURL: baseURL, Secret: secret, http: rc}
}

func (c *AgentClient) signedRequest(ctx context.Context, endpoint string, token []byte, body io.Reader) (*retryablehttp.Request, error) {
	sig := crypto.SignToken(c.Secret, token)
	url := fmt.Sprintf("%s/agents/%s/%s", strings.TrimRight(c.BaseURL, "/"), endpoint, hex.EncodeToString(token))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(ticketSignatureHeader, hex.EncodeToString(sig))
	return req, nil
}

// UploadShareCatalog posts body to `/agents/shares/{token}`.
func (c *AgentClient) UploadShareCatalog(ctx context.Context, token []byte, body io.Reader) error {
	req, err := c.signedRequest(ctx, "shares", token, body)
	if err != nil {
		return err
	}
	return c.doAndClose(req)
}

// UploadFile posts body to `/agents/files/{token}`.
func (c *AgentClient) UploadFile(ctx context.Context, token []byte, body io.Reader) error {
	req, err := c.signedRequest(ctx, "files", token, body)
	if err != nil {
		return err
	}
	return c.doAndClose(req)
}

func (c *AgentClient) doAndClose(req *retryablehttp.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controller rejected upload: %s", resp.Status)
	}
	return nil
}
