// Package attachment moves issue attachments from the source tracker to the
// target project and produces the reference table used for text rewriting.
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jira2gitlab/j2g/internal/logging"
	"github.com/jira2gitlab/j2g/internal/types"
)

// Stored describes a blob after it was stored on the target.
type Stored struct {
	Name     string
	Markdown string
}

// BlobTransport fetches attachment bytes from the source and stores them on the target.
type BlobTransport interface {
	Fetch(ctx context.Context, ref types.Attachment) ([]byte, error)
	Store(ctx context.Context, projectID int, data []byte, filename string) (Stored, error)
}

// Options bound the work done per attachment.
type Options struct {
	// Timeout applies to each fetch and each store separately. Zero means no limit.
	Timeout time.Duration
	// MaxBytes skips attachments whose declared size is larger. Zero means no limit.
	MaxBytes int64
}

// Relocator runs attachments through a BlobTransport one at a time.
type Relocator struct {
	transport BlobTransport
	projectID int
	opts      Options
	logger    *slog.Logger
}

// NewRelocator creates a relocator for the given target project.
func NewRelocator(transport BlobTransport, projectID int, opts Options, logger *slog.Logger) *Relocator {
	return &Relocator{
		transport: transport,
		projectID: projectID,
		opts:      opts,
		logger:    logging.OrDiscard(logger),
	}
}

// Relocate transfers every attachment of issue and returns the references for
// the ones that succeeded, in source order. Failures are logged and skipped.
func (r *Relocator) Relocate(ctx context.Context, issue types.SourceIssue) []types.AttachmentRef {
	log := r.logger.With(slog.String("issue", issue.Key()))
	var refs []types.AttachmentRef
	for _, att := range issue.Attachments() {
		if ctx.Err() != nil {
			log.Warn("attachment relocation interrupted", slog.Any("error", ctx.Err()))
			break
		}
		ref, err := r.relocateOne(ctx, att)
		if err != nil {
			log.Warn("skipping attachment", slog.String("file", att.Filename), slog.Any("error", err))
			continue
		}
		log.Debug("relocated attachment", slog.String("file", att.Filename))
		refs = append(refs, ref)
	}
	return refs
}

func (r *Relocator) relocateOne(ctx context.Context, att types.Attachment) (types.AttachmentRef, error) {
	if r.opts.MaxBytes > 0 && att.Size > r.opts.MaxBytes {
		return types.AttachmentRef{}, fmt.Errorf("size %d exceeds limit of %d bytes", att.Size, r.opts.MaxBytes)
	}

	fetchCtx, cancel := r.bound(ctx)
	data, err := r.transport.Fetch(fetchCtx, att)
	cancel()
	if err != nil {
		return types.AttachmentRef{}, fmt.Errorf("fetch: %w", err)
	}

	storeCtx, cancel := r.bound(ctx)
	stored, err := r.transport.Store(storeCtx, r.projectID, data, att.Filename)
	cancel()
	if err != nil {
		return types.AttachmentRef{}, fmt.Errorf("store: %w", err)
	}

	return types.AttachmentRef{SourceName: att.Filename, TargetMarkdown: stored.Markdown}, nil
}

func (r *Relocator) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
}
