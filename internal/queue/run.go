package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ipfs/go-cid"

	"github.com/roach88/tideline/internal/task"
)

// BlockPutter stores raw blocks on the network node.
type BlockPutter interface {
	BlockPut(ctx context.Context, id cid.Cid, data []byte) error
}

// Publisher sends messages on a pub/sub topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) error
}

// AnchorRequester asks the anchoring service to timestamp a commit.
type AnchorRequester interface {
	RequestAnchor(ctx context.Context, streamID string, commit cid.Cid) error
}

// Runner drains the queue one pass at a time, executing each task against
// the network collaborators. Execution is sequential and foreground; the
// runner spawns no goroutines.
//
// A task is deleted only after its handler succeeds, so a crash or handler
// failure leaves it queued for the next pass: at-least-once, which the
// handlers tolerate (block put and anchor request are idempotent, a repeated
// announcement is harmless).
type Runner struct {
	queue   *Queue
	blocks  BlockPutter
	pubsub  Publisher
	anchors AnchorRequester
	log     *slog.Logger
}

// NewRunner wires a runner. A nil logger falls back to slog.Default().
func NewRunner(q *Queue, blocks BlockPutter, pubsub Publisher, anchors AnchorRequester, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{queue: q, blocks: blocks, pubsub: pubsub, anchors: anchors, log: logger}
}

// Run executes up to limit pending tasks (all of them when limit <= 0) and
// reports how many completed and how many failed. A failing task is logged
// and left queued; Run only returns an error when the queue itself cannot be
// read.
func (r *Runner) Run(ctx context.Context, limit int) (completed, failed int, err error) {
	pending, err := r.queue.Pending(ctx, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			return completed, failed, err
		}
		if err := r.execute(ctx, t); err != nil {
			r.log.Error("task failed", "task", t.ID, "kind", t.Kind, "error", err)
			failed++
			continue
		}
		if err := r.queue.Complete(ctx, t.ID); err != nil {
			return completed, failed, fmt.Errorf("complete task %s: %w", t.ID, err)
		}
		completed++
	}
	return completed, failed, nil
}

func (r *Runner) execute(ctx context.Context, t task.Task) error {
	switch t.Kind {
	case task.KindBlockUpload:
		up, err := t.DecodeBlockUpload()
		if err != nil {
			return err
		}
		id, err := cid.Decode(up.CID)
		if err != nil {
			return fmt.Errorf("decode block address %q: %w", up.CID, err)
		}
		return r.blocks.BlockPut(ctx, id, up.Data)

	case task.KindPublishMessage:
		msg, err := t.DecodePublishMessage()
		if err != nil {
			return err
		}
		return r.pubsub.Publish(ctx, msg.Topic, msg.Data)

	case task.KindRequestAnchor:
		req, err := t.DecodeRequestAnchor()
		if err != nil {
			return err
		}
		commit, err := cid.Decode(req.Commit)
		if err != nil {
			return fmt.Errorf("decode anchor commit %q: %w", req.Commit, err)
		}
		return r.anchors.RequestAnchor(ctx, req.Stream, commit)

	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}
