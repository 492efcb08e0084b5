package file

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roach88/tideline/internal/codec"
	"github.com/roach88/tideline/internal/stream"
)

// Status classifies one resolved item.
type Status string

const (
	// StatusOk marks a fully resolved view.
	StatusOk Status = "Ok"

	// StatusNakedStream marks content with no index record pointing at it:
	// a detectable but non-fatal inconsistency.
	StatusNakedStream Status = "NakedStream"

	// StatusBrokenContent marks an index view whose content half could not
	// be derived.
	StatusBrokenContent Status = "BrokenContent"

	// StatusBrokenFolder marks a folder whose record, options, or access
	// control did not decode.
	StatusBrokenFolder Status = "BrokenFolder"
)

// File is one resolved view, joining up to two halves: the file half from an
// index or action stream and the content half from the content stream
// itself. Which halves are present depends on the model that produced the
// view.
type File struct {
	FileID      *stream.ID      `json:"fileId,omitempty"`
	FileModelID *stream.ID      `json:"fileModelId,omitempty"`
	File        json.RawMessage `json:"file,omitempty"`

	// ContentID is kept as written in the index record; it is not required
	// to parse as a stream identifier.
	ContentID *string         `json:"contentId,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`

	Status        Status `json:"status"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// newFileView starts a view from the index or action stream's own state.
func newFileView(state *stream.State) *File {
	id := state.ID
	return &File{FileID: &id, File: state.Content, Status: StatusOk}
}

// newContentView starts a view from the content stream's own state.
func newContentView(state *stream.State) *File {
	id := state.ID.String()
	return &File{ContentID: &id, Content: state.Content, Status: StatusOk}
}

// attachContent fills the content half from a derived state.
func (f *File) attachContent(state *stream.State) {
	id := state.ID.String()
	f.ContentID = &id
	f.Content = state.Content
}

// attachFile fills the file half from an index stream's state.
func (f *File) attachFile(modelID stream.ID, state *stream.State) {
	id := state.ID
	f.FileID = &id
	f.FileModelID = &modelID
	f.File = state.Content
}

// degrade marks the view with a non-Ok status and a diagnostic message.
func (f *File) degrade(status Status, message string) {
	f.Status = status
	f.StatusMessage = message
}

// isNullJSON reports whether raw is absent or the JSON null literal.
func isNullJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// IndexRecord is the content of an indexFile stream: the pointer half of a
// file, naming the content stream it indexes.
type IndexRecord struct {
	ContentID string `json:"contentId"`
	FileName  string `json:"fileName,omitempty"`
	FileType  int    `json:"fileType,omitempty"`
}

// decodeIndexRecord decodes an index stream's content. A record without a
// contentId is malformed.
func decodeIndexRecord(content json.RawMessage) (*IndexRecord, error) {
	var rec IndexRecord
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("decode index record: %w", err)
	}
	if rec.ContentID == "" {
		return nil, fmt.Errorf("index record missing contentId")
	}
	return &rec, nil
}

// FolderRecord is the content of an indexFolder stream. Options and access
// control travel base64-encoded inside the record.
type FolderRecord struct {
	FolderName    string `json:"folderName,omitempty"`
	FolderType    int    `json:"folderType,omitempty"`
	Options       string `json:"options,omitempty"`
	AccessControl string `json:"accessControl,omitempty"`
}

// FolderOptions is the decoded options payload: the signal set callers
// filter on.
type FolderOptions struct {
	Signals []Signal `json:"signals"`
}

// AccessControl is the decoded access-control descriptor. Provider contents
// stay opaque; decoding it is the validity check.
type AccessControl struct {
	EncryptionProvider   json.RawMessage `json:"encryptionProvider,omitempty"`
	MonetizationProvider json.RawMessage `json:"monetizationProvider,omitempty"`
}

// DecodeOptions returns the folder's options, or nil when the record carries
// none.
func (r *FolderRecord) DecodeOptions() (*FolderOptions, error) {
	if r.Options == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(r.Options)
	if err != nil {
		return nil, fmt.Errorf("decode folder options: %w", err)
	}
	var opts FolderOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, fmt.Errorf("decode folder options: %w", err)
	}
	return &opts, nil
}

// DecodeAccessControl returns the folder's access-control descriptor, or nil
// when the record carries none.
func (r *FolderRecord) DecodeAccessControl() (*AccessControl, error) {
	if r.AccessControl == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(r.AccessControl)
	if err != nil {
		return nil, fmt.Errorf("decode access control: %w", err)
	}
	var ac AccessControl
	if err := json.Unmarshal(raw, &ac); err != nil {
		return nil, fmt.Errorf("decode access control: %w", err)
	}
	return &ac, nil
}

// Signal is an opaque filter token: any JSON value, compared by canonical
// bytes.
type Signal = json.RawMessage

// Filters narrows batch resolution.
type Filters struct {
	// Signals a folder must all declare to be included.
	Signals []Signal
}

// canonicalSignals canonicalizes a signal set for comparison.
func canonicalSignals(signals []Signal) ([][]byte, error) {
	out := make([][]byte, 0, len(signals))
	for _, s := range signals {
		c, err := codec.Canonicalize(s)
		if err != nil {
			return nil, fmt.Errorf("canonicalize signal %q: %w", string(s), err)
		}
		out = append(out, c)
	}
	return out, nil
}

// declaresAll reports whether the folder's declared signals contain every
// required signal. A folder without options declares nothing.
func declaresAll(opts *FolderOptions, required [][]byte) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	if opts == nil {
		return false, nil
	}
	declared, err := canonicalSignals(opts.Signals)
	if err != nil {
		return false, err
	}
	for _, want := range required {
		found := false
		for _, have := range declared {
			if bytes.Equal(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}
