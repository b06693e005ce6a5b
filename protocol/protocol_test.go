package protocol

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFrameRoundTrip(t *testing.T) {
	auth := &Auth{
		ByJwt:       "header.claims.signature",
		HostVersion: "1.2.3",
		InstanceId:  []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
	}
	b, err := EncodeFrame(auth)
	assert.Equal(t, nil, err)

	message, err := DecodeFrame(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, auth, message.(*Auth))

	delta := &DocumentsAndEditorsDelta{
		RemovedDocuments: []string{"file:///old"},
		AddedDocuments: []*Document{
			{
				Id:         "file:///new",
				Version:    7,
				Lines:      []string{"a", "b"},
				Eol:        "\n",
				LanguageId: "go",
				IsDirty:    true,
			},
		},
		AddedEditors: []*Editor{
			{
				Id:         &EditorId{Handle: "h", Document: "file:///new"},
				DocumentId: "file:///new",
				Options:    &EditorOptions{TabSize: 4, InsertSpaces: true, LineNumbers: true},
				Selections: []*Range{{StartLine: 0, StartColumn: 0, EndLine: 0, EndColumn: 1}},
				Position:   1,
			},
		},
		ActiveEditorChanged: true,
		NewActiveEditor:     &EditorId{Handle: "h", Document: "file:///new"},
	}
	b, err = EncodeFrame(delta)
	assert.Equal(t, nil, err)

	message, err = DecodeFrame(b)
	assert.Equal(t, nil, err)
	assert.Equal(t, delta, message.(*DocumentsAndEditorsDelta))
}

func TestFrameUnknownMessage(t *testing.T) {
	_, err := ToFrame(&struct{}{})
	assert.NotEqual(t, nil, err)

	_, err = FromFrame(&Frame{MessageType: MessageType(99)})
	assert.NotEqual(t, nil, err)
}

func TestDeterministicEncoding(t *testing.T) {
	delta := &DocumentsAndEditorsDelta{
		RemovedDocuments: []string{"file:///a", "file:///b"},
	}
	first, err := EncodeFrame(delta)
	assert.Equal(t, nil, err)
	second, err := EncodeFrame(delta)
	assert.Equal(t, nil, err)
	assert.Equal(t, first, second)
}

func TestOptionalFieldsOmitted(t *testing.T) {
	// trivial fields stay off the wire
	empty, err := Marshal(&DocumentsAndEditorsDelta{})
	assert.Equal(t, nil, err)
	full, err := Marshal(&DocumentsAndEditorsDelta{
		RemovedDocuments:    []string{"file:///a"},
		ActiveEditorChanged: true,
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, true, len(empty) < len(full))

	decoded := &DocumentsAndEditorsDelta{}
	assert.Equal(t, nil, Unmarshal(empty, decoded))
	assert.Equal(t, &DocumentsAndEditorsDelta{}, decoded)
}
