// Package protocol defines the wire records exchanged between the
// editing host and the remote mirror runtime. Records are encoded as
// deterministic CBOR so the same logical delta always produces
// identical bytes.
package protocol

import (
	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic(err)
	}

	// unknown fields are ignored for forward compatibility
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(b []byte, v any) error {
	return decMode.Unmarshal(b, v)
}

// Auth opens the mirror channel. The host sends it as the first frame
// and the runtime echoes the frame bytes back verbatim to accept.
type Auth struct {
	ByJwt       string `cbor:"byJwt"`
	HostVersion string `cbor:"hostVersion,omitempty"`
	InstanceId  []byte `cbor:"instanceId,omitempty"`
}

type EditorId struct {
	Handle   string `cbor:"handle"`
	Document string `cbor:"document"`
}

type Range struct {
	StartLine   int `cbor:"startLine"`
	StartColumn int `cbor:"startColumn"`
	EndLine     int `cbor:"endLine"`
	EndColumn   int `cbor:"endColumn"`
}

type EditorOptions struct {
	TabSize      int  `cbor:"tabSize"`
	InsertSpaces bool `cbor:"insertSpaces"`
	LineNumbers  bool `cbor:"lineNumbers"`
}

// Document is the full buffer record. The mirror holds no implicit
// prior knowledge, so additions always carry the complete content.
type Document struct {
	Id         string   `cbor:"id"`
	Version    int      `cbor:"version"`
	Lines      []string `cbor:"lines"`
	Eol        string   `cbor:"eol"`
	LanguageId string   `cbor:"languageId"`
	IsDirty    bool     `cbor:"isDirty,omitempty"`
}

type Editor struct {
	Id         *EditorId      `cbor:"id"`
	DocumentId string         `cbor:"documentId"`
	Options    *EditorOptions `cbor:"options,omitempty"`
	Selections []*Range       `cbor:"selections,omitempty"`
	Position   int            `cbor:"position,omitempty"`
}

// DocumentsAndEditorsDelta is the incremental state update. Every
// field is optional and only present when non-trivial. Removals are
// bare identifiers; additions are full records.
//
// ActiveEditorChanged distinguishes "active editor unchanged" (false,
// NewActiveEditor absent) from "active editor became none" (true,
// NewActiveEditor absent).
type DocumentsAndEditorsDelta struct {
	RemovedDocuments    []string    `cbor:"removedDocuments,omitempty"`
	AddedDocuments      []*Document `cbor:"addedDocuments,omitempty"`
	RemovedEditors      []*EditorId `cbor:"removedEditors,omitempty"`
	AddedEditors        []*Editor   `cbor:"addedEditors,omitempty"`
	ActiveEditorChanged bool        `cbor:"activeEditorChanged,omitempty"`
	NewActiveEditor     *EditorId   `cbor:"newActiveEditor,omitempty"`
}
