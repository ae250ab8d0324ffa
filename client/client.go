// Package client uploads, downloads and deletes files by talking to the master
// for metadata and to chunk servers for the bytes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sutd_dfs_project/chunks"
	"github.com/sutd_dfs_project/chunkserver"
	"github.com/sutd_dfs_project/helper"
	"github.com/sutd_dfs_project/models"
)

type Client struct {
	masterURL string
	chunkSize int64
	http      *http.Client
	retry     helper.RetryPolicy
	nodes     *chunkserver.NodeClient
}

func NewClient(cfg helper.ClientConfig) *Client {
	return &Client{
		masterURL: strings.TrimSuffix(cfg.MasterURL, "/"),
		chunkSize: cfg.ChunkSize,
		http:      &http.Client{},
		retry:     cfg.Retry,
		nodes:     chunkserver.NewNodeClient(cfg.Retry),
	}
}

/* =============================== File-related functions =============================== */

// Upload creates filename on the master and pushes every chunk of r to each
// server in its plan. size must be the exact length of r.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, size int64) error {
	var plan models.ChunkAllocation
	body, err := json.Marshal(models.InitRequest{Filename: filename, Size: size})
	if err != nil {
		return err
	}
	// a repeated init would fail on the record its own first attempt created
	if err := c.master(ctx, c.retry.Once(), http.MethodPost, "/v1/files/init", body, &plan); err != nil {
		return fmt.Errorf("initialising %s: %w", filename, err)
	}

	splitter := chunks.NewSplitter(r, c.chunkSize)
	for {
		id, data, err := splitter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", filename, err)
		}
		targets, ok := plan[id]
		if !ok {
			return fmt.Errorf("%w: chunk %d of %s has no planned servers", helper.ErrValidation, id, filename)
		}
		for _, node := range targets {
			if err := c.nodes.Store(ctx, node, filename, id, data); err != nil {
				return fmt.Errorf("storing chunk %d of %s on %s: %w", id, filename, node, err)
			}
		}
		log.Debug().Str("file", filename).Int("chunk", id).Strs("servers", targets).
			Str("data", helper.TruncateOutput(data)).Msg("[Client] Chunk uploaded")
	}

	log.Info().Str("file", filename).Int64("size", size).Int("chunks", len(plan)).Msg("[Client] File uploaded")
	return nil
}

// UploadFile uploads the local file at path under filename.
func (c *Client) UploadFile(ctx context.Context, filename, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	return c.Upload(ctx, filename, f, fi.Size())
}

// Download writes filename to w in chunk order. Before writing anything it
// checks that every chunk is held by at least one reachable server.
func (c *Client) Download(ctx context.Context, filename string, w io.Writer) error {
	locations, err := c.Chunks(ctx, filename)
	if err != nil {
		return err
	}

	// preflight
	sources := make([][]string, len(locations))
	for id := 0; id < len(locations); id++ {
		for _, node := range locations[id] {
			if ok, err := c.nodes.Exists(ctx, node, filename, id); err == nil && ok {
				sources[id] = append(sources[id], node)
			}
		}
		if len(sources[id]) == 0 {
			return fmt.Errorf("%w: unable to retrieve chunk %d of %s from any chunk server", helper.ErrNotFound, id, filename)
		}
	}

	for id, nodes := range sources {
		data, err := c.retrieve(ctx, filename, id, nodes)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	log.Info().Str("file", filename).Int("chunks", len(sources)).Msg("[Client] File downloaded")
	return nil
}

// DownloadFile downloads filename into path, replacing it only once every chunk arrived.
func (c *Client) DownloadFile(ctx context.Context, filename, path string) error {
	var buf bytes.Buffer
	if err := c.Download(ctx, filename, &buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Delete removes every chunk replica and then the file record. Servers that
// cannot be reached are skipped; the master then refuses the delete until
// they are gone from placement.
func (c *Client) Delete(ctx context.Context, filename string) error {
	locations, err := c.Chunks(ctx, filename)
	if err != nil {
		return err
	}
	for id := 0; id < len(locations); id++ {
		for _, node := range locations[id] {
			err := c.nodes.Delete(ctx, node, filename, id)
			switch {
			case err == nil, errors.Is(err, helper.ErrNotFound):
			case errors.Is(err, helper.ErrTransient):
				log.Warn().Err(err).Str("node", node).Int("chunk", id).Msg("[Client] Chunk server unreachable, skipping")
			default:
				return fmt.Errorf("deleting chunk %d of %s from %s: %w", id, filename, node, err)
			}
		}
	}
	if err := c.master(ctx, c.retry, http.MethodDelete, "/v1/files/"+url.PathEscape(filename), nil, nil); err != nil {
		return err
	}
	log.Info().Str("file", filename).Msg("[Client] File deleted")
	return nil
}

func (c *Client) Size(ctx context.Context, filename string) (int64, error) {
	var resp models.SizeResponse
	if err := c.master(ctx, c.retry, http.MethodGet, "/v1/files/"+url.PathEscape(filename)+"/size", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Size, nil
}

func (c *Client) Chunks(ctx context.Context, filename string) (models.ChunkAllocation, error) {
	var locations models.ChunkAllocation
	if err := c.master(ctx, c.retry, http.MethodGet, "/v1/files/"+url.PathEscape(filename)+"/chunks", nil, &locations); err != nil {
		return nil, err
	}
	return locations, nil
}

/* =============================== Helper functions =============================== */

func (c *Client) retrieve(ctx context.Context, filename string, chunkID int, nodes []string) ([]byte, error) {
	var lastErr error
	for _, node := range nodes {
		data, err := c.nodes.Retrieve(ctx, node, filename, chunkID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("node", node).Int("chunk", chunkID).Msg("[Client] Error retrieving chunk, trying next replica")
	}
	return nil, fmt.Errorf("retrieving chunk %d of %s: %w", chunkID, filename, lastErr)
}

// master calls the master API and decodes a 200 response into out.
func (c *Client) master(ctx context.Context, policy helper.RetryPolicy, method, path string, body []byte, out interface{}) error {
	return policy.Do(ctx, method+" "+path, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.masterURL+path, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return masterError(resp)
		}
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

func masterError(resp *http.Response) error {
	var e models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		e.Error = resp.Status
	}
	switch {
	case e.Code == models.CodeConflict || len(e.Chunks) > 0:
		return fmt.Errorf("%w: %s", helper.ErrConflict, e.Error)
	case e.Code == models.CodeResourceExhausted:
		return fmt.Errorf("%w: %s", helper.ErrResourceExhausted, e.Error)
	case e.Code == models.CodeNotFound || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", helper.ErrNotFound, e.Error)
	case e.Code == models.CodeValidation || resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", helper.ErrValidation, e.Error)
	default:
		return fmt.Errorf("master returned %s: %s", resp.Status, e.Error)
	}
}
