package kv

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HeadHeader carries the expected current head on branch CAS requests.
// Absent means the branch must not exist yet.
const HeadHeader = "X-Ramus-Head-Old"

// HTTPStore and HTTPBranches run the backend interfaces against
// another repository's served API, making any reachable server usable
// as a backend.
type HTTPStore struct {
	base   string
	client *http.Client
}

type HTTPBranches struct {
	base   string
	client *http.Client
}

// OpenHTTP returns backends reading and writing the server rooted at
// base.
func OpenHTTP(base string) (*HTTPStore, *HTTPBranches) {
	base = strings.TrimRight(base, "/")
	c := &http.Client{Timeout: 30 * time.Second}
	return &HTTPStore{base: base, client: c}, &HTTPBranches{base: base, client: c}
}

func (s *HTTPStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, httpError(resp)
	}
}

func (s *HTTPStore) Put(ctx context.Context, key, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return httpError(resp)
	}
}

func (s *HTTPStore) Mem(ctx context.Context, key []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, httpError(resp)
	}
}

func (s *HTTPStore) objectURL(key []byte) string {
	return s.base + "/v1/objects/" + hex.EncodeToString(key)
}

// headDoc is the wire form of a branch head.
type headDoc struct {
	Head string `json:"head"`
}

func (b *HTTPBranches) Read(ctx context.Context, name string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.branchURL(name), nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var doc headDoc
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return nil, false, fmt.Errorf("decode branch %s: %w", name, err)
		}
		head, err := hex.DecodeString(doc.Head)
		if err != nil {
			return nil, false, fmt.Errorf("branch %s: %w", name, err)
		}
		return head, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, httpError(resp)
	}
}

func (b *HTTPBranches) Update(ctx context.Context, name string, old, head []byte) error {
	body, err := json.Marshal(headDoc{Head: hex.EncodeToString(head)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.branchURL(name), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if old != nil {
		req.Header.Set(HeadHeader, hex.EncodeToString(old))
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrHeadMoved
	default:
		return httpError(resp)
	}
}

func (b *HTTPBranches) Remove(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.branchURL(name), nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return httpError(resp)
	}
}

func (b *HTTPBranches) List(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/v1/branches", nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode branch list: %w", err)
	}
	return names, nil
}

func (b *HTTPBranches) branchURL(name string) string {
	return b.base + "/v1/branches/" + url.PathEscape(name)
}

// httpError turns a non-2xx response into an error, preferring the
// server's JSON error document over the bare status.
func httpError(resp *http.Response) error {
	var doc struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err := json.Unmarshal(body, &doc); err == nil && doc.Message != "" {
		return fmt.Errorf("kv: http %d: %s", resp.StatusCode, doc.Message)
	}
	return fmt.Errorf("kv: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
