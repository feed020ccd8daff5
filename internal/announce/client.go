package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// POAResolver looks up a remote CSE's point-of-access base URL from its
// csi, typically backed by the local CSR resource created during
// registration (spec.md §3's CSR type).
type POAResolver func(csi string) (string, error)

// HTTPRemoteClient implements RemoteCSEClient over the same HTTP binding
// CSE-to-CSE requests use elsewhere in the system (spec.md §6's
// X-M2M-* header contract), addressed through POAResolver rather than a
// hardcoded base URL. No example repo demonstrates a third-party REST
// client wrapper actually exercised end-to-end (only present as an
// unused transitive dependency in one go.mod), so this stays on
// net/http directly rather than importing one for appearance's sake.
type HTTPRemoteClient struct {
	resolve    POAResolver
	httpClient *http.Client
	originator string
}

// NewHTTPRemoteClient builds an HTTPRemoteClient. originator is the local
// CSE-ID sent as X-M2M-Origin on every outbound request.
func NewHTTPRemoteClient(resolve POAResolver, originator string, httpClient *http.Client) *HTTPRemoteClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPRemoteClient{resolve: resolve, httpClient: httpClient, originator: originator}
}

func (c *HTTPRemoteClient) do(ctx context.Context, method, csi, path string, body map[string]any) (map[string]any, error) {
	base, err := c.resolve(csi)
	if err != nil {
		return nil, fmt.Errorf("resolve point of access for %s: %w", csi, err)
	}

	var reader *bytes.Reader
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return nil, fmt.Errorf("marshal announcement body: %w", merr)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build remote CSE request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-M2M-Origin", c.originator)
	req.Header.Set("X-M2M-RVI", "3")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote CSE request to %s failed: %w", csi, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote CSE %s responded with status %d", csi, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	var out map[string]any
	if derr := json.NewDecoder(resp.Body).Decode(&out); derr != nil {
		return nil, nil
	}
	return out, nil
}

func (c *HTTPRemoteClient) Create(ctx context.Context, remoteCSI, parentPath string, body map[string]any) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, remoteCSI, parentPath, body)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("remote CSE %s returned no body for create", remoteCSI)
	}
	ri, _ := resp["ri"].(string)
	if ri == "" {
		return "", fmt.Errorf("remote CSE %s response missing ri", remoteCSI)
	}
	return ri, nil
}

func (c *HTTPRemoteClient) Update(ctx context.Context, remoteCSI, ri string, body map[string]any) error {
	_, err := c.do(ctx, http.MethodPut, remoteCSI, "/"+ri, body)
	return err
}

func (c *HTTPRemoteClient) Delete(ctx context.Context, remoteCSI, ri string) error {
	_, err := c.do(ctx, http.MethodDelete, remoteCSI, "/"+ri, nil)
	return err
}

var _ RemoteCSEClient = (*HTTPRemoteClient)(nil)
