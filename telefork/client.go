package telefork

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/procfs"
	"proctool/ptrace"
)

// Client sends a target process's state to a telefork server.
type Client struct {
	HTTPClient *http.Client
}

// NewClient returns a Client with a bounded request timeout.
func NewClient() *Client {
	return &Client{HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

// Send seizes and interrupts pid, harvests its register banks and
// populated memory map, and POSTs them to serverURL. It reports the
// server's reply, not merely that the request was delivered.
func (cl *Client) Send(pid int, serverURL string) (bool, error) {
	c := ptrace.New(pid)
	if err := c.SeizeAndInterrupt(); err != nil {
		return false, err
	}
	defer c.Release()

	gpRegs, err := c.GetRegisters()
	if err != nil {
		return false, err
	}
	fpRegs, err := c.GetFPRegisters()
	if err != nil {
		return false, err
	}

	regions, err := procfs.ReadMemoryMaps(pid)
	if err != nil {
		return false, err
	}
	if err := procfs.PopulateMemory(pid, regions); err != nil {
		return false, err
	}

	payload, err := json.Marshal(Request{
		GPRegisterData: gpRegs,
		FPRegisterData: fpRegs,
		MemoryMaps:     regions,
	})
	if err != nil {
		return false, perrors.WrapWithPid(err, perrors.ErrExternal, "telefork_marshal_request", pid)
	}

	requestID := uuid.NewString()
	httpReq, err := http.NewRequest(http.MethodPost, serverURL, bytes.NewReader(payload))
	if err != nil {
		return false, perrors.WrapWithDetail(err, perrors.ErrExternal, "telefork_build_request", requestID)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)

	httpClient := cl.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logging.Info("telefork: sending", "pid", pid, "server", serverURL, "request_id", requestID)
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return false, perrors.WrapWithDetail(err, perrors.ErrExternal, "telefork_send", requestID)
	}
	defer resp.Body.Close()

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, perrors.WrapWithDetail(err, perrors.ErrExternal, "telefork_decode_response", requestID)
	}

	logging.Info("telefork: server replied", "pid", pid, "request_id", requestID, "success", result.Success)
	return result.Success, nil
}
