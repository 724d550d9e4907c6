package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/medconn/medconnect/internal/backoff"
)

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("file_id is required")
	}
	var out getFileResponse
	err := c.retry.Do(ctx, "telegram_get_file", func(ctx context.Context) error {
		return c.getJSON(ctx, c.methodURL("getFile")+"?file_id="+url.QueryEscape(fileID), &out)
	})
	if err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getFile: ok=false")
	}
	if strings.TrimSpace(out.Result.FilePath) == "" {
		return nil, fmt.Errorf("telegram getFile: missing file_path")
	}
	return &out.Result, nil
}

// DownloadFileTo fetches the file behind a getFile path into dstPath. The
// boolean reports whether the download was truncated by maxBytes, which the
// caller must treat as a rejection.
func (c *Client) DownloadFileTo(ctx context.Context, filePath string, dstPath string, maxBytes int64) (int64, bool, error) {
	filePath = strings.TrimSpace(filePath)
	dstPath = strings.TrimSpace(dstPath)
	if filePath == "" {
		return 0, false, fmt.Errorf("file_path is required")
	}
	if dstPath == "" {
		return 0, false, fmt.Errorf("dst_path is required")
	}
	if maxBytes <= 0 {
		maxBytes = 16 * 1024 * 1024
	}

	downloadURL := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, false, backoff.ClassifyNetwork(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, false, fmt.Errorf("telegram download http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	limited := io.LimitReader(resp.Body, maxBytes+1)
	n, err := io.Copy(f, limited)
	if err != nil {
		return n, false, err
	}
	if n > maxBytes {
		return n, true, fmt.Errorf("telegram file too large (>%d bytes)", maxBytes)
	}
	if err := f.Close(); err != nil {
		return n, false, err
	}
	return n, false, nil
}
