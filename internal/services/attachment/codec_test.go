package attachment_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"cipherline/internal/devrelay"
	"cipherline/internal/domain"
	"cipherline/internal/services/attachment"
)

func key(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	return k
}

// failingBlobs rejects every call.
type failingBlobs struct{}

func (failingBlobs) UploadBlob(context.Context, []byte, string, string, []byte) (domain.Attachment, error) {
	return domain.Attachment{}, errors.New("connection reset")
}

func (failingBlobs) DownloadBlob(context.Context, domain.AttachmentID) (domain.BlobDownload, error) {
	return domain.BlobDownload{}, errors.New("connection reset")
}

func TestUploadDownload_SecondCandidateWins(t *testing.T) {
	s := devrelay.NewState(nil)
	codec := attachment.New(s.As(1), nil)
	ctx := context.Background()
	right, wrong := key(t), key(t)

	att, err := codec.Upload(ctx, []byte("png bytes"), "cat.png", "image/png", right)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(att.Nonce) != 12 || att.Algo != domain.AlgChaCha20Poly1305 {
		t.Fatalf("metadata = %+v", att)
	}

	h, err := codec.Download(ctx, att, []domain.KeyCandidate{
		{Label: "first", Key: wrong},
		{Label: "second", Key: right},
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(h.Bytes()) != "png bytes" || h.KeyLabel != "second" || h.MimeType != "image/png" {
		t.Fatalf("handle = %+v", h)
	}
}

func TestDownload_StoredCiphertextIsNotPlaintext(t *testing.T) {
	s := devrelay.NewState(nil)
	v := s.As(1)
	codec := attachment.New(v, nil)
	att, _ := codec.Upload(context.Background(), []byte("secret"), "a.txt", "text/plain", key(t))
	dl, err := v.DownloadBlob(context.Background(), att.ID)
	if err != nil {
		t.Fatalf("raw download: %v", err)
	}
	if string(dl.Ciphertext) == "secret" {
		t.Fatal("blob store saw plaintext")
	}
}

func TestDownload_Errors(t *testing.T) {
	s := devrelay.NewState(nil)
	codec := attachment.New(s.As(1), nil)
	ctx := context.Background()
	att, _ := codec.Upload(ctx, []byte("x"), "x.bin", "application/octet-stream", key(t))

	if _, err := codec.Download(ctx, att, nil); !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("no candidates: want ErrMissingKey, got %v", err)
	}
	_, err := codec.Download(ctx, att, []domain.KeyCandidate{{Key: key(t)}, {Key: key(t)}})
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("wrong keys: want ErrDecryptionFailed, got %v", err)
	}
	_, err = codec.Download(ctx, domain.Attachment{ID: 999}, []domain.KeyCandidate{{Key: key(t)}})
	if !errors.Is(err, domain.ErrDownloadFailed) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing blob: got %v", err)
	}
}

func TestUpload_TransportFailure(t *testing.T) {
	codec := attachment.New(failingBlobs{}, nil)
	if _, err := codec.Upload(context.Background(), []byte("x"), "x", "text/plain", key(t)); !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("want ErrUploadFailed, got %v", err)
	}
}

func TestHandle_ReleaseAndCache(t *testing.T) {
	s := devrelay.NewState(nil)
	codec := attachment.New(s.As(1), nil)
	ctx := context.Background()
	k := key(t)
	att, _ := codec.Upload(ctx, []byte("video"), "v.mp4", "video/mp4", k)
	cands := []domain.KeyCandidate{{Key: k}}

	h1, err := codec.Download(ctx, att, cands)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	h2, _ := codec.Download(ctx, att, cands)
	if h1 != h2 || codec.Live() != 1 {
		t.Fatalf("expected cached handle, live=%d", codec.Live())
	}

	h1.Release()
	if h1.Bytes() != nil || !h1.Released() || codec.Live() != 0 {
		t.Fatal("release did not drop plaintext")
	}
	h1.Release()

	h3, _ := codec.Download(ctx, att, cands)
	if h3 == h1 || string(h3.Bytes()) != "video" {
		t.Fatal("download after release must produce a fresh handle")
	}
	codec.ReleaseAll()
	if codec.Live() != 0 || h3.Bytes() != nil {
		t.Fatal("ReleaseAll left live handles")
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":      domain.ContentImage,
		"video/webm":      domain.ContentVideo,
		"application/pdf": domain.ContentFile,
		"":                domain.ContentFile,
	}
	for mime, want := range cases {
		if got := attachment.ContentType(mime); got != want {
			t.Fatalf("%q -> %q, want %q", mime, got, want)
		}
	}
}
