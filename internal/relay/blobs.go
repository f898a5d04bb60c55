package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"cipherline/internal/domain"
)

const maxDownloadSize = 64 << 20

// UploadBlob posts ciphertext as the multipart "file" part with the nonce in
// the x-nonce header.
func (c *HTTP) UploadBlob(
	ctx context.Context,
	ciphertext []byte,
	filename string,
	mimeType string,
	nonce []byte,
) (domain.Attachment, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": filename,
	}))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return domain.Attachment{}, err
	}
	if _, err := part.Write(ciphertext); err != nil {
		return domain.Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.Attachment{}, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/files/upload", body, http.Header{
		"Content-Type": {mw.FormDataContentType()},
		"X-Nonce":      {base64.StdEncoding.EncodeToString(nonce)},
		"X-Algo":       {string(domain.AlgChaCha20Poly1305)},
	})
	if err != nil {
		return domain.Attachment{}, err
	}
	defer resp.Body.Close()

	var att domain.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return domain.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	return att, nil
}

// DownloadBlob fetches ciphertext together with the nonce, algorithm and
// filename hints from the response headers.
func (c *HTTP) DownloadBlob(ctx context.Context, id domain.AttachmentID) (domain.BlobDownload, error) {
	resp, err := c.do(ctx, http.MethodGet, "/files/"+id.String(), nil, nil)
	if err != nil {
		return domain.BlobDownload{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return domain.BlobDownload{}, err
	}
	if len(data) > maxDownloadSize {
		return domain.BlobDownload{}, fmt.Errorf("blob %s exceeds %d bytes", id, maxDownloadSize)
	}

	out := domain.BlobDownload{
		Ciphertext: data,
		Algo:       domain.Algorithm(resp.Header.Get("X-Algo")),
		MimeType:   resp.Header.Get("Content-Type"),
	}
	if n := resp.Header.Get("X-Nonce"); n != "" {
		if out.Nonce, err = base64.StdEncoding.DecodeString(n); err != nil {
			c.log.Warn("ignoring malformed x-nonce header")
			out.Nonce = nil
		}
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		out.Filename = params["filename"]
	}
	return out, nil
}
