package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pagemagic/pagemagic/internal/llm"
	"github.com/pagemagic/pagemagic/internal/logging"
	"github.com/pagemagic/pagemagic/internal/metrics"
	"github.com/pagemagic/pagemagic/internal/sanitizer"
	"github.com/pagemagic/pagemagic/pkg/models"
)

// Session owns the uploaded snapshot of one page. It admits one generation at
// a time; Close releases the snapshot without waiting for a running one.
type Session struct {
	svc *Service

	// run serializes generations
	run sync.Mutex

	mu     sync.Mutex
	handle llm.FileHandle
	closed bool
	// orphan is a snapshot uploaded after Close; released when its generation ends
	orphan llm.FileHandle
}

// Handle returns the current snapshot handle, or "" when none is held
func (sess *Session) Handle() llm.FileHandle {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.handle
}

// Generate runs one styling request. The snapshot is uploaded on first use
// and reused afterwards; if the model API reports it expired, the page is
// uploaded again and the call retried once.
func (sess *Session) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	s := sess.svc
	start := time.Now()

	prompt, err := trimPrompt(req.Prompt)
	if err != nil {
		return nil, err
	}
	if err := requireKey(ctx, s.settings); err != nil {
		metrics.RecordGeneration("", llm.Status(err), time.Since(start))
		return nil, err
	}
	model, err := s.settings.Model(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	ctx = logging.WithModel(logging.WithScope(ctx, string(req.Scope)), model)

	sess.run.Lock()
	defer sess.run.Unlock()
	defer sess.releaseOrphan(ctx)

	handle, err := sess.current(ctx, req.Snapshot)
	if err != nil {
		metrics.RecordGeneration(model, llm.Status(err), time.Since(start))
		return nil, err
	}

	retried := false
	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	result, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*llm.GenerateResult, error) {
		res, err := s.api.Generate(ctx, llm.GenerateRequest{
			Handle:    handle,
			System:    s.system,
			Prompt:    prompt,
			Model:     model,
			MaxTokens: s.maxTokens,
		})
		if err == nil {
			return res, nil
		}
		if !llm.IsStaleHandle(err) || retried {
			return nil, err
		}

		logging.Info(ctx, "page snapshot expired, uploading again", slog.String("file_id", handle.String()))
		metrics.RecordStaleHandleRetry()
		retried = true
		fresh, uerr := sess.refresh(ctx, req.Snapshot)
		if uerr != nil {
			return nil, uerr
		}
		handle = fresh
		return nil, retry.RetryableError(err)
	})
	if err != nil {
		metrics.RecordGeneration(model, llm.Status(err), time.Since(start))
		logging.Warn(ctx, "generation failed", slog.String("error", err.Error()), slog.Bool("retried", retried))
		return nil, err
	}

	usage := result.Usage
	if usage.Model == "" {
		usage.Model = model
	}
	cost := s.book(ctx, usage)

	var warnings []string
	css, found := sanitizer.Extract(result.Text)
	if !found {
		metrics.RecordSanitizerFallback()
		warnings = append(warnings, "no CSS rules detected in the model response, it was stored unchanged")
	}
	if css == "" {
		metrics.RecordGeneration(model, "empty", time.Since(start))
		return nil, ErrEmptyResponse
	}
	if result.StopReason == "max_tokens" {
		warnings = append(warnings, "the model response was truncated at the token limit")
	}

	entry, err := s.styles.Append(ctx, req.Scope, prompt, css)
	if err != nil {
		metrics.RecordGeneration(model, "error", time.Since(start))
		return nil, fmt.Errorf("failed to store generated CSS: %w", err)
	}

	metrics.RecordGeneration(model, "success", time.Since(start))
	logging.Info(ctx, "generation complete",
		slog.String("entry_id", entry.ID),
		slog.Float64("cost", cost),
		slog.Bool("retried", retried),
		slog.Duration("duration", time.Since(start)))

	return &models.GenerationResult{
		Entry:    entry,
		Scope:    req.Scope,
		Model:    model,
		Usage:    usage,
		Cost:     cost,
		Retried:  retried,
		Warnings: warnings,
	}, nil
}

// Refresh uploads the page again and releases the superseded snapshot
func (sess *Session) Refresh(ctx context.Context, snapshot func() (string, error)) (llm.FileHandle, error) {
	sess.run.Lock()
	defer sess.run.Unlock()
	defer sess.releaseOrphan(ctx)
	return sess.refresh(ctx, snapshot)
}

// Close releases the held snapshot. It is safe to call more than once.
func (sess *Session) Close(ctx context.Context) {
	sess.mu.Lock()
	handle := sess.handle
	sess.handle = ""
	sess.closed = true
	sess.mu.Unlock()

	sess.svc.release(ctx, handle)
}

// current returns the held handle, uploading the page if there is none
func (sess *Session) current(ctx context.Context, snapshot func() (string, error)) (llm.FileHandle, error) {
	sess.mu.Lock()
	handle, closed := sess.handle, sess.closed
	sess.mu.Unlock()

	if closed {
		return "", ErrSessionClosed
	}
	if handle != "" {
		return handle, nil
	}
	return sess.refresh(ctx, snapshot)
}

// refresh uploads a new snapshot and swaps it in. Callers hold sess.run.
func (sess *Session) refresh(ctx context.Context, snapshot func() (string, error)) (llm.FileHandle, error) {
	if snapshot == nil {
		return "", fmt.Errorf("%w: no page content", llm.ErrUploadFailed)
	}
	content, err := snapshot()
	if err != nil {
		return "", fmt.Errorf("%w: failed to read page content: %v", llm.ErrUploadFailed, err)
	}

	fresh, err := sess.svc.api.UploadSnapshot(ctx, content)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	old := sess.handle
	if sess.closed {
		sess.orphan = fresh
	} else {
		sess.handle = fresh
	}
	sess.mu.Unlock()

	sess.svc.release(ctx, old)
	return fresh, nil
}

func (sess *Session) releaseOrphan(ctx context.Context) {
	sess.mu.Lock()
	orphan := sess.orphan
	sess.orphan = ""
	sess.mu.Unlock()

	sess.svc.release(ctx, orphan)
}
