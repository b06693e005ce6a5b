package editsync

import (
	"github.com/editmirror/editmirror/protocol"
)

// translation from the snapshot model to the wire records. A field is
// only populated when its collection is non-empty or the active editor
// actually changed.

// DeltaToWire maps a delta to the wire record, or nil when the delta
// is empty and nothing should be sent.
func DeltaToWire(delta *Delta) *protocol.DocumentsAndEditorsDelta {
	if delta.IsEmpty() {
		return nil
	}

	wireDelta := &protocol.DocumentsAndEditorsDelta{}
	for _, documentId := range delta.RemovedDocuments {
		wireDelta.RemovedDocuments = append(wireDelta.RemovedDocuments, string(documentId))
	}
	for _, document := range delta.AddedDocuments {
		wireDelta.AddedDocuments = append(wireDelta.AddedDocuments, wireDocument(document))
	}
	for _, viewId := range delta.RemovedEditors {
		wireDelta.RemovedEditors = append(wireDelta.RemovedEditors, wireEditorId(viewId))
	}
	for _, editor := range delta.AddedEditors {
		wireDelta.AddedEditors = append(wireDelta.AddedEditors, wireEditor(editor))
	}
	if delta.ActiveEditorChanged {
		wireDelta.ActiveEditorChanged = true
		if delta.NewActiveEditor != nil {
			wireDelta.NewActiveEditor = wireEditorId(*delta.NewActiveEditor)
		}
	}
	return wireDelta
}

func wireEditorId(viewId ViewId) *protocol.EditorId {
	return &protocol.EditorId{
		Handle:   viewId.Handle.String(),
		Document: string(viewId.Buffer),
	}
}

func wireDocument(document *DocumentSnapshot) *protocol.Document {
	return &protocol.Document{
		Id:         string(document.Id),
		Version:    document.Version,
		Lines:      document.Lines,
		Eol:        document.Eol,
		LanguageId: document.LanguageId,
		IsDirty:    document.IsDirty,
	}
}

func wireEditor(editor *ViewSnapshot) *protocol.Editor {
	wireSelections := make([]*protocol.Range, 0, len(editor.Selections))
	for _, selection := range editor.Selections {
		wireSelections = append(wireSelections, &protocol.Range{
			StartLine:   selection.StartLine,
			StartColumn: selection.StartColumn,
			EndLine:     selection.EndLine,
			EndColumn:   selection.EndColumn,
		})
	}
	return &protocol.Editor{
		Id:         wireEditorId(editor.Id),
		DocumentId: string(editor.DocumentId),
		Options: &protocol.EditorOptions{
			TabSize:      editor.Options.TabSize,
			InsertSpaces: editor.Options.InsertSpaces,
			LineNumbers:  editor.Options.LineNumbers,
		},
		Selections: wireSelections,
		Position:   int(editor.Position),
	}
}
