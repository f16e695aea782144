package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// UploadFile is one document to forward. Open is called once, while the
// multipart body is being written.
type UploadFile struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

type UploadRequest struct {
	Files          []UploadFile
	CollectionName string
	UserID         string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Upload forwards documents to the backend ingestion endpoint and returns
// its JSON reply.
func (c *Client) Upload(ctx context.Context, up UploadRequest) (json.RawMessage, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadBody(mw, up))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/upload-docs", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("backend upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.upstreamError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("backend upload: response is not JSON")
	}

	c.logger.Info("documents forwarded",
		zap.Int("files", len(up.Files)),
		zap.String("collection", up.CollectionName))
	return json.RawMessage(data), nil
}

func writeUploadBody(mw *multipart.Writer, up UploadRequest) (err error) {
	defer func() {
		err = multierr.Append(err, mw.Close())
	}()

	for _, f := range up.Files {
		if err := writeFilePart(mw, f); err != nil {
			return err
		}
	}
	if err := mw.WriteField("collection_name", up.CollectionName); err != nil {
		return err
	}
	return mw.WriteField("user_id", up.UserID)
}

func writeFilePart(mw *multipart.Writer, f UploadFile) (err error) {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %q: %w", f.Name, err)
	}
	defer func() {
		err = multierr.Append(err, rc.Close())
	}()

	_, err = io.Copy(part, rc)
	return err
}
