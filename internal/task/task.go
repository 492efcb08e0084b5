// Package task defines the outbound work units this engine hands to a
// durable queue: block uploads, pub/sub announcements, and anchor requests.
// Task identity is content-addressed over the kind and canonical payload, so
// enqueueing the same logical task twice collapses to one queue row.
package task

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"github.com/roach88/tideline/internal/codec"
)

// Kind discriminates task payloads.
type Kind string

const (
	// KindBlockUpload publishes block bytes to the content-addressed store.
	KindBlockUpload Kind = "block_upload"
	// KindPublishMessage publishes bytes to a pub/sub topic.
	KindPublishMessage Kind = "publish_message"
	// KindRequestAnchor asks the anchoring service to include a commit.
	KindRequestAnchor Kind = "request_anchor"
)

// Task is one durable unit of outbound work. ID is derived from the kind and
// canonical payload; CreatedAt is assigned by the queue on first insert and
// is zero before then.
type Task struct {
	ID        string
	Kind      Kind
	Payload   []byte
	CreatedAt time.Time
}

// BlockUpload carries the exact bytes of one addressed block.
type BlockUpload struct {
	CID  string `json:"cid"`
	Data []byte `json:"data"`
}

// PublishMessage carries opaque bytes for one pub/sub topic.
type PublishMessage struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data"`
}

// RequestAnchor names the commit of a stream to be anchored.
type RequestAnchor struct {
	Stream string `json:"stream"`
	Commit string `json:"commit"`
}

// idDomain separates task identity hashes from every other hash in the
// system. The version suffix leaves room for algorithm migration.
const idDomain = "tideline/task/v1"

// NewBlockUpload builds a block upload task.
func NewBlockUpload(c cid.Cid, data []byte) (Task, error) {
	return newTask(KindBlockUpload, BlockUpload{CID: c.String(), Data: data})
}

// NewPublishMessage builds a pub/sub publish task.
func NewPublishMessage(topic string, data []byte) (Task, error) {
	return newTask(KindPublishMessage, PublishMessage{Topic: topic, Data: data})
}

// NewRequestAnchor builds an anchor request task.
func NewRequestAnchor(streamID string, commit cid.Cid) (Task, error) {
	return newTask(KindRequestAnchor, RequestAnchor{Stream: streamID, Commit: commit.String()})
}

func newTask(kind Kind, payload any) (Task, error) {
	data, err := codec.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s task: %w", kind, err)
	}
	return Task{ID: taskID(kind, data), Kind: kind, Payload: data}, nil
}

// taskID computes SHA256(domain + 0x00 + kind + 0x00 + payload). The null
// separators prevent boundary ambiguity between the parts.
func taskID(kind Kind, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(idDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(kind))
	h.Write([]byte{0x00})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// DecodeBlockUpload decodes the payload of a block upload task.
func (t Task) DecodeBlockUpload() (BlockUpload, error) {
	var p BlockUpload
	if err := t.decodeInto(KindBlockUpload, &p); err != nil {
		return BlockUpload{}, err
	}
	return p, nil
}

// DecodePublishMessage decodes the payload of a publish task.
func (t Task) DecodePublishMessage() (PublishMessage, error) {
	var p PublishMessage
	if err := t.decodeInto(KindPublishMessage, &p); err != nil {
		return PublishMessage{}, err
	}
	return p, nil
}

// DecodeRequestAnchor decodes the payload of an anchor request task.
func (t Task) DecodeRequestAnchor() (RequestAnchor, error) {
	var p RequestAnchor
	if err := t.decodeInto(KindRequestAnchor, &p); err != nil {
		return RequestAnchor{}, err
	}
	return p, nil
}

func (t Task) decodeInto(want Kind, v any) error {
	if t.Kind != want {
		return fmt.Errorf("task %s is %s, not %s", t.ID, t.Kind, want)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s task %s: %w", t.Kind, t.ID, err)
	}
	return nil
}
