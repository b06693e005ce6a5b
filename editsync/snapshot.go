package editsync

import (
	mapset "github.com/deckarep/golang-set/v2"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DocumentSnapshot is the full buffer record replicated to the mirror.
type DocumentSnapshot struct {
	Id         BufferId
	Version    int
	Lines      []string
	Eol        string
	LanguageId string
	IsDirty    bool
}

// Copy returns a record the caller may retain and mutate freely.
func (self *DocumentSnapshot) Copy() *DocumentSnapshot {
	document := *self
	document.Lines = slices.Clone(self.Lines)
	return &document
}

// ViewSnapshot is the full view record replicated to the mirror.
type ViewSnapshot struct {
	Id         ViewId
	DocumentId BufferId
	Selections []Range
	Options    EditorOptions
	Position   GroupPosition
}

// Copy returns a record the caller may retain and mutate freely.
func (self *ViewSnapshot) Copy() *ViewSnapshot {
	editor := *self
	editor.Selections = slices.Clone(self.Selections)
	return &editor
}

// Snapshot is an immutable record of the eligible buffers, eligible
// views, and active view at one recomputation. Every view in `editors`
// has its bound buffer present in `documents`, and `activeEditor`, when
// present, is a key of `editors`. A snapshot is never mutated after
// construction; a superseded snapshot stays valid as diff input. The
// accessors hand out copies so no observer can reach the internal
// records.
type Snapshot struct {
	documentIds  mapset.Set[BufferId]
	documents    map[BufferId]*DocumentSnapshot
	editors      map[ViewId]*ViewSnapshot
	activeEditor *ViewId
}

func EmptySnapshot() *Snapshot {
	return &Snapshot{
		documentIds: mapset.NewSet[BufferId](),
		documents:   map[BufferId]*DocumentSnapshot{},
		editors:     map[ViewId]*ViewSnapshot{},
	}
}

func (self *Snapshot) DocumentIds() mapset.Set[BufferId] {
	return self.documentIds.Clone()
}

func (self *Snapshot) Document(documentId BufferId) (*DocumentSnapshot, bool) {
	document, ok := self.documents[documentId]
	if !ok {
		return nil, false
	}
	return document.Copy(), true
}

// sorted by id
func (self *Snapshot) Documents() []*DocumentSnapshot {
	documents := make([]*DocumentSnapshot, 0, len(self.documents))
	for _, document := range self.documents {
		documents = append(documents, document.Copy())
	}
	slices.SortFunc(documents, func(a *DocumentSnapshot, b *DocumentSnapshot) int {
		return compareBufferIds(a.Id, b.Id)
	})
	return documents
}

func (self *Snapshot) Editor(viewId ViewId) (*ViewSnapshot, bool) {
	editor, ok := self.editors[viewId]
	if !ok {
		return nil, false
	}
	return editor.Copy(), true
}

// sorted by id
func (self *Snapshot) Editors() []*ViewSnapshot {
	editors := make([]*ViewSnapshot, 0, len(self.editors))
	for _, editor := range self.editors {
		editors = append(editors, editor.Copy())
	}
	slices.SortFunc(editors, func(a *ViewSnapshot, b *ViewSnapshot) int {
		return compareViewIds(a.Id, b.Id)
	})
	return editors
}

func (self *Snapshot) ActiveEditor() (ViewId, bool) {
	if self.activeEditor == nil {
		return ViewId{}, false
	}
	return *self.activeEditor, true
}

// eligibility and id assignment live here, and only here. Both the
// full path and the fast path go through these helpers so the two can
// never drift apart.

func eligibleDocument(document *Document, maxDocumentByteCount ByteCount) bool {
	return document.ByteCount <= maxDocumentByteCount
}

func snapshotDocument(document *Document, dirtyState DirtyStateProvider) *DocumentSnapshot {
	return &DocumentSnapshot{
		Id:         document.Id,
		Version:    document.Version,
		Lines:      slices.Clone(document.Lines),
		Eol:        document.Eol,
		LanguageId: document.LanguageId,
		IsDirty:    dirtyState.IsDirty(document.Id),
	}
}

func assignViewId(view EditorView, documentId BufferId) ViewId {
	return ViewId{
		Handle: view.Handle(),
		Buffer: documentId,
	}
}

func snapshotView(view EditorView, viewId ViewId) *ViewSnapshot {
	return &ViewSnapshot{
		Id:         viewId,
		DocumentId: viewId.Buffer,
		Selections: view.Selections(),
		Options:    view.Options(),
		Position:   view.Position(),
	}
}

// ComputeSnapshot builds a full snapshot from the registries. It also
// returns the live view behind each kept view id, which the caller
// needs for focus subscription bookkeeping; the snapshot itself never
// holds live references.
func ComputeSnapshot(
	documentRegistry DocumentRegistry,
	editorRegistry EditorRegistry,
	dirtyState DirtyStateProvider,
	activeViewQuery ActiveViewQuery,
	maxDocumentByteCount ByteCount,
) (*Snapshot, map[ViewId]EditorView) {
	documentIds := mapset.NewSet[BufferId]()
	documents := map[BufferId]*DocumentSnapshot{}
	for _, document := range documentRegistry.Documents() {
		if !eligibleDocument(document, maxDocumentByteCount) {
			continue
		}
		documentIds.Add(document.Id)
		documents[document.Id] = snapshotDocument(document, dirtyState)
	}

	editors := map[ViewId]*ViewSnapshot{}
	liveViews := map[ViewId]EditorView{}
	handleViewIds := map[Id]ViewId{}
	var focusedViewId *ViewId
	for _, view := range editorRegistry.Views() {
		if view.Disposed() {
			continue
		}
		documentId := view.DocumentId()
		// a view can briefly outlive its buffer during teardown. The
		// buffer is already gone from the registry enumeration, so the
		// view is excluded rather than referencing a missing buffer
		if !documentIds.Contains(documentId) {
			continue
		}
		viewId := assignViewId(view, documentId)
		editors[viewId] = snapshotView(view, viewId)
		liveViews[viewId] = view
		handleViewIds[view.Handle()] = viewId
		if focusedViewId == nil && view.Focused() {
			focused := viewId
			focusedViewId = &focused
		}
	}

	activeEditor := focusedViewId
	if activeEditor == nil {
		// no view reports focus. Fall back to the workbench's active
		// view control and match it against the views kept in this
		// pass. No match means no active editor.
		if handle, ok := activeViewQuery.ActiveViewHandle(); ok {
			if viewId, ok := handleViewIds[handle]; ok {
				activeEditor = &viewId
			}
		}
	}

	snapshot := &Snapshot{
		documentIds:  documentIds,
		documents:    documents,
		editors:      editors,
		activeEditor: activeEditor,
	}
	return snapshot, liveViews
}

// WithDocument folds one newly added eligible buffer into the snapshot
// without re-enumerating the registries. Views and the active editor
// are carried over unchanged, which is only correct when the triggering
// event is a single buffer addition and no live view is bound to the
// added buffer. A bound view would be admitted by full construction
// the moment its buffer becomes registry-known, and the fold cannot
// see it.
func (self *Snapshot) WithDocument(document *DocumentSnapshot) *Snapshot {
	documentIds := self.documentIds.Clone()
	documentIds.Add(document.Id)
	documents := maps.Clone(self.documents)
	documents[document.Id] = document
	return &Snapshot{
		documentIds:  documentIds,
		documents:    documents,
		editors:      self.editors,
		activeEditor: self.activeEditor,
	}
}
