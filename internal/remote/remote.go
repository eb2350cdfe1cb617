// Package remote implements the two far sides a repository can sync
// with: another served repository over HTTP, and an OCI registry used
// as passive slice storage. Both satisfy the root Remote interface.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ramusdb/ramus"
	"github.com/ramusdb/ramus/internal/kv"
)

// HTTPRemote syncs against a repository served by kvserver. Slices
// move through the slice endpoints; the head moves through the branch
// CAS endpoint, so a racing push loses cleanly instead of silently
// overwriting.
type HTTPRemote struct {
	base   string
	client *http.Client
}

var _ ramus.Remote = (*HTTPRemote)(nil)

// NewHTTPRemote points a remote at the server rooted at base, for
// example "http://127.0.0.1:8420". Transfers are bounded by the
// request context, not a client timeout, since slices can be large.
func NewHTTPRemote(base string) *HTTPRemote {
	return &HTTPRemote{base: strings.TrimRight(base, "/"), client: &http.Client{}}
}

func (r *HTTPRemote) String() string { return r.base }

func (r *HTTPRemote) Head(ctx context.Context, branch string) (ramus.Key, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.branchURL(branch), nil)
	if err != nil {
		return ramus.Key{}, false, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return ramus.Key{}, false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var doc struct {
			Head string `json:"head"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return ramus.Key{}, false, fmt.Errorf("decode branch %s: %w", branch, err)
		}
		head, err := ramus.ParseKey(doc.Head)
		if err != nil {
			return ramus.Key{}, false, err
		}
		return head, true, nil
	case http.StatusNotFound:
		return ramus.Key{}, false, nil
	default:
		return ramus.Key{}, false, httpError(resp)
	}
}

func (r *HTTPRemote) Fetch(ctx context.Context, branch string, have []ramus.Key) (*ramus.Slice, error) {
	q := url.Values{}
	q.Set("branch", branch)
	for _, h := range have {
		q.Add("min", h.String())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/v1/slices?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	return ramus.DecodeSlice(resp.Body)
}

func (r *HTTPRemote) Push(ctx context.Context, branch string, old, head ramus.Key, s *ramus.Slice) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/v1/slices", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ramus-slice")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}

	body, err := json.Marshal(map[string]string{"head": head.String()})
	if err != nil {
		return err
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPut, r.branchURL(branch), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if !old.IsZero() {
		req.Header.Set(kv.HeadHeader, old.String())
	}
	resp, err = r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("%w: remote %q moved during push", ramus.ErrNonFastForward, branch)
	default:
		return httpError(resp)
	}
}

func (r *HTTPRemote) branchURL(branch string) string {
	return r.base + "/v1/branches/" + url.PathEscape(branch)
}

// httpError prefers the server's JSON error document over the bare
// status line.
func httpError(resp *http.Response) error {
	var doc struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err := json.Unmarshal(body, &doc); err == nil && doc.Message != "" {
		return fmt.Errorf("remote: http %d: %s", resp.StatusCode, doc.Message)
	}
	return fmt.Errorf("remote: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
