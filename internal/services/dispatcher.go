package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitecost/internal/core"
	"sitecost/internal/drive"
	applog "sitecost/internal/log"
)

// Dispatcher hands a snapshot off for pushing. Dispatch must not block on
// the network; errors are reported through logs and notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, snap core.Snapshot, reason string)
}

// InlineDispatcher pushes from a goroutine in this process. Pushes are not
// serialized, so the remote ends up with whichever one finishes last.
type InlineDispatcher struct {
	remote   drive.Remote
	notifier Notifier
	wg       sync.WaitGroup
}

func NewInlineDispatcher(remote drive.Remote, notifier Notifier) *InlineDispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &InlineDispatcher{remote: remote, notifier: notifier}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, snap core.Snapshot, reason string) {
	if d.remote == nil {
		return
	}
	// The push outlives the request that triggered it.
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.notifier.Notify(Event{Type: EventSyncing, Syncing: true, Reason: reason})
		start := time.Now()
		out := d.remote.Push(ctx, snap)
		LogOutcome(ctx, out, reason, time.Since(start))
		d.notifier.Notify(Event{Type: EventSyncing, Syncing: false, Reason: reason, Error: errText(out.Err)})
	}()
}

// Wait blocks until every dispatched push has finished.
func (d *InlineDispatcher) Wait() { d.wg.Wait() }

// SnapshotPublisher enqueues a snapshot for an out-of-process push.
type SnapshotPublisher interface {
	PublishSnapshotPush(ctx context.Context, snap core.Snapshot, reason string) error
}

// QueueDispatcher publishes snapshots for the sync worker.
type QueueDispatcher struct {
	publisher SnapshotPublisher
	notifier  Notifier
}

func NewQueueDispatcher(p SnapshotPublisher, notifier Notifier) *QueueDispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &QueueDispatcher{publisher: p, notifier: notifier}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, snap core.Snapshot, reason string) {
	if d.publisher == nil {
		slog.WarnContext(ctx, "AMQP publisher not available, skipping push", "reason", reason)
		return
	}
	if err := d.publisher.PublishSnapshotPush(ctx, snap, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish snapshot push", "reason", reason, "error", err)
		d.notifier.Notify(Event{Type: EventSyncing, Reason: reason, Error: err.Error()})
		return
	}
	slog.DebugContext(ctx, "Snapshot push queued", "reason", reason, "transactions", len(snap.Transactions))
}

// LogOutcome records the result of a push.
func LogOutcome(ctx context.Context, out drive.Outcome, reason string, took time.Duration) {
	if !out.OK() {
		slog.ErrorContext(ctx, "Snapshot push failed",
			applog.FieldComponent, applog.ComponentDrive,
			applog.FieldOperation, applog.OpPush,
			applog.FieldReason, reason,
			"duration", took,
			applog.FieldError, out.Err)
		return
	}
	slog.InfoContext(ctx, "Snapshot pushed",
		applog.FieldComponent, applog.ComponentDrive,
		applog.FieldOperation, applog.OpPush,
		applog.FieldReason, reason,
		"file_id", out.FileID,
		"created", out.Created,
		"duration", took)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
