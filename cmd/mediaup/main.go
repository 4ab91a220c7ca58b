// mediaup uploads local files through the client-direct intake flow: it
// requests presigned upload targets, transfers the bytes with the bounded
// pool executor, then reports the batch ready for processing.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/transfer"
)

func main() {
	_ = godotenv.Load()

	var (
		server      = flag.String("server", envOr("MEDIA_SERVER", "http://localhost:8080"), "media server base URL")
		owner       = flag.String("owner", os.Getenv("MEDIA_OWNER_ID"), "owner ID (uuid)")
		mediaType   = flag.String("type", "image", "batch media type: image or video")
		title       = flag.String("title", "", "batch title")
		description = flag.String("description", "", "batch description")
		tags        = flag.String("tags", "", "comma-separated tags")
		album       = flag.Bool("album", false, "group the batch into an album")
		concurrency = flag.Int("concurrency", transfer.DefaultConfig().FileConcurrency, "parallel uploads")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mediaup [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *owner == "" {
		logger.Error("owner ID is required (-owner or MEDIA_OWNER_ID)")
		os.Exit(2)
	}

	ctx := context.Background()
	client := &client{base: strings.TrimRight(*server, "/"), owner: *owner, http: &http.Client{Timeout: time.Minute}}

	// Describe the batch and reserve presigned upload targets.
	presignReq := presignRequest{
		Type:        *mediaType,
		Title:       *title,
		Description: *description,
		IsAlbum:     *album,
	}
	if *tags != "" {
		presignReq.Tags = strings.Split(*tags, ",")
	}
	locals := make([]transfer.LocalFile, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Error("cannot read file", "path", p, "err", err)
			os.Exit(1)
		}
		contentType := mime.TypeByExtension(filepath.Ext(p))
		presignReq.Files = append(presignReq.Files, presignFile{
			FileName: filepath.Base(p),
			MimeType: contentType,
			Size:     info.Size(),
		})
		locals = append(locals, transfer.LocalFile{Path: p, ContentType: contentType})
	}

	batch, err := client.presign(ctx, presignReq)
	if err != nil {
		logger.Error("presign failed", "err", err)
		os.Exit(1)
	}
	logger.Info("batch created", "items", len(batch.Items), "album", batch.Album != nil)

	// Transfer the bytes.
	cfg := transfer.DefaultConfig()
	cfg.FileConcurrency = *concurrency
	exec := transfer.NewExecutor(transfer.WithConfig(cfg))

	plan := make([]transfer.PlanEntry, 0, len(batch.Uploads))
	ids := make([]string, 0, len(batch.Uploads))
	for _, u := range batch.Uploads {
		plan = append(plan, transfer.PlanEntry{Key: u.SourceKey, URL: u.URL})
		ids = append(ids, u.MediaID.String())
	}
	keys, err := exec.Run(ctx, locals, plan)
	if err != nil {
		logger.Error("transfer failed", "err", err)
		os.Exit(1)
	}
	logger.Info("transfer complete", "keys", len(keys))

	// Hand the batch to the processing pipeline.
	if err := client.markReady(ctx, ids); err != nil {
		logger.Error("mark ready failed", "err", err)
		os.Exit(1)
	}
	for _, item := range batch.Items {
		fmt.Println(item.ID)
	}
}

type presignFile struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type presignRequest struct {
	Type        string        `json:"type"`
	Files       []presignFile `json:"files"`
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	IsAlbum     bool          `json:"is_album,omitempty"`
}

type client struct {
	base  string
	owner string
	http  *http.Client
}

func (c *client) presign(ctx context.Context, req presignRequest) (*simplemedia.BatchResult, error) {
	var result simplemedia.BatchResult
	if err := c.post(ctx, "/media/presign", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *client) markReady(ctx context.Context, ids []string) error {
	return c.post(ctx, "/media/ready", map[string][]string{"media_ids": ids}, nil)
}

func (c *client) post(ctx context.Context, path string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", c.owner)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("request failed with status %s", resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
