package attachment

import (
	"context"
	"fmt"

	"github.com/jira2gitlab/j2g/internal/gitlab"
	"github.com/jira2gitlab/j2g/internal/jira"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Downloader fetches a source attachment by its content URL.
type Downloader interface {
	Download(ctx context.Context, contentURL string) ([]byte, error)
}

// Uploader stores a file in a target project.
type Uploader interface {
	UploadFile(ctx context.Context, projectID int, filename string, content []byte) (*gitlab.Upload, error)
}

// HTTPTransport moves blobs between the Jira and GitLab REST APIs.
type HTTPTransport struct {
	Source Downloader
	Target Uploader
}

// NewHTTPTransport moves blobs with timeout-free copies of the API clients:
// transfers are bounded only by Options.Timeout, not by the per-request
// timeout of ordinary API calls.
func NewHTTPTransport(source *jira.Client, target *gitlab.Client) *HTTPTransport {
	return &HTTPTransport{
		Source: source.WithoutTimeout(),
		Target: target.WithoutTimeout(),
	}
}

// Fetch downloads an attachment.
func (t *HTTPTransport) Fetch(ctx context.Context, ref types.Attachment) ([]byte, error) {
	return t.Source.Download(ctx, ref.ContentURL)
}

// Store uploads data and returns the markdown GitLab generated for it.
func (t *HTTPTransport) Store(ctx context.Context, projectID int, data []byte, filename string) (Stored, error) {
	up, err := t.Target.UploadFile(ctx, projectID, filename, data)
	if err != nil {
		return Stored{}, err
	}
	if up.Markdown == "" {
		return Stored{}, fmt.Errorf("upload of %s returned no markdown", filename)
	}
	return Stored{Name: filename, Markdown: up.Markdown}, nil
}

// DryRunTransport fetches nothing and stores nothing. Each attachment gets a
// placeholder reference so simulated text rewriting shows where links go.
type DryRunTransport struct{}

// Fetch returns no data.
func (DryRunTransport) Fetch(context.Context, types.Attachment) ([]byte, error) {
	return nil, nil
}

// Store returns a placeholder link.
func (DryRunTransport) Store(_ context.Context, _ int, _ []byte, filename string) (Stored, error) {
	return Stored{Name: filename, Markdown: fmt.Sprintf("[%s](/uploads/simulated/%s)", filename, filename)}, nil
}
