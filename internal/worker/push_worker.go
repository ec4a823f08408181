package worker

import (
	"context"
	"log/slog"
	"time"

	"sitecost/internal/amqp"
	"sitecost/internal/drive"
	"sitecost/internal/services"
	"sitecost/internal/session"
)

// PushWorker writes queued snapshots to the drive on behalf of the web
// process. It holds no ledger state of its own.
type PushWorker struct {
	session *session.Session
	tokens  session.TokenStore
	remote  drive.Remote
}

func NewPushWorker(sess *session.Session, tokens session.TokenStore, remote drive.Remote) *PushWorker {
	return &PushWorker{session: sess, tokens: tokens, remote: remote}
}

// HandleSnapshotPush reloads the persisted token and pushes the snapshot.
// Pushes are attempted once; a missing or expired token drops the message
// since the web process will enqueue a fresh snapshot after reconnecting.
func (w *PushWorker) HandleSnapshotPush(ctx context.Context, msg *amqp.SnapshotPushMessage) error {
	slog.InfoContext(ctx, "Processing snapshot push message",
		"reason", msg.Reason,
		"transactions", len(msg.Snapshot.Transactions),
		"queued_at", msg.Timestamp)

	// The web process may have connected or disconnected since the last message.
	if !w.session.TryAutoConnect(ctx, w.tokens) {
		slog.WarnContext(ctx, "Dropping snapshot push: no usable drive token", "reason", msg.Reason)
		return nil
	}

	start := time.Now()
	out := w.remote.Push(ctx, msg.Snapshot)
	services.LogOutcome(ctx, out, msg.Reason, time.Since(start))
	return nil
}
