package chunkserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/sutd_dfs_project/helper"
)

// NodeClient calls the chunk server HTTP API. Nodes are addressed as host:port
// and every call goes through the shared retry policy.
type NodeClient struct {
	http  *http.Client
	retry helper.RetryPolicy
}

func NewNodeClient(retry helper.RetryPolicy) *NodeClient {
	return &NodeClient{
		http:  &http.Client{},
		retry: retry,
	}
}

func (c *NodeClient) Health(ctx context.Context, node string) error {
	return c.retry.Do(ctx, "health "+node, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, nodeURL(node, "/health"), nil, "")
		if err != nil {
			return err
		}
		defer drain(resp)
		return expectOK(resp)
	})
}

// Exists reports whether node holds the chunk. A 404 is an answer, not an error.
func (c *NodeClient) Exists(ctx context.Context, node, filename string, chunkID int) (bool, error) {
	var found bool
	err := c.retry.Do(ctx, "probe "+node, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodHead, chunkURL(node, "retrieve", filename, chunkID), nil, "")
		if err != nil {
			return err
		}
		defer drain(resp)
		switch resp.StatusCode {
		case http.StatusOK:
			found = true
			return nil
		case http.StatusNotFound:
			found = false
			return nil
		}
		return expectOK(resp)
	})
	return found, err
}

func (c *NodeClient) Retrieve(ctx context.Context, node, filename string, chunkID int) ([]byte, error) {
	var data []byte
	err := c.retry.Do(ctx, "retrieve "+node, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, chunkURL(node, "retrieve", filename, chunkID), nil, "")
		if err != nil {
			return err
		}
		defer drain(resp)
		if err := expectOK(resp); err != nil {
			return err
		}
		data, err = io.ReadAll(resp.Body)
		return err
	})
	return data, err
}

func (c *NodeClient) Store(ctx context.Context, node, filename string, chunkID int, data []byte) error {
	return c.retry.Do(ctx, "store "+node, func(ctx context.Context) error {
		body, contentType, err := chunkForm(filename, data)
		if err != nil {
			return err
		}
		resp, err := c.do(ctx, http.MethodPost, chunkURL(node, "store", filename, chunkID), body, contentType)
		if err != nil {
			return err
		}
		defer drain(resp)
		return expectOK(resp)
	})
}

// Delete returns an error wrapping helper.ErrNotFound when the node did not hold the chunk.
func (c *NodeClient) Delete(ctx context.Context, node, filename string, chunkID int) error {
	return c.retry.Do(ctx, "delete "+node, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodDelete, chunkURL(node, "delete", filename, chunkID), nil, "")
		if err != nil {
			return err
		}
		defer drain(resp)
		return expectOK(resp)
	})
}

func (c *NodeClient) Size(ctx context.Context, node, filename string, chunkID int) (int64, error) {
	var size int64
	err := c.retry.Do(ctx, "size "+node, func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodGet, chunkURL(node, "size", filename, chunkID), nil, "")
		if err != nil {
			return err
		}
		defer drain(resp)
		if err := expectOK(resp); err != nil {
			return err
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		size, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		return err
	})
	return size, err
}

/* =============================== Helper functions =============================== */

func (c *NodeClient) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func nodeURL(node, path string) string {
	return "http://" + node + path
}

func chunkURL(node, op, filename string, chunkID int) string {
	return nodeURL(node, fmt.Sprintf("/%s/%s/%d", op, filename, chunkID))
}

func chunkForm(filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(helper.CHUNK_FORM_FIELD, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func expectOK(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return helper.ErrChunkNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s returned %s", helper.ErrValidation, resp.Request.Method, resp.Request.URL, resp.Status)
	default:
		return fmt.Errorf("%s %s returned %s", resp.Request.Method, resp.Request.URL, resp.Status)
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
