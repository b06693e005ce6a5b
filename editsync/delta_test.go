package editsync

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/go-playground/assert/v2"
)

func testDocument(id BufferId) *Document {
	return &Document{
		Id:         id,
		Version:    1,
		Lines:      []string{"hello"},
		Eol:        "\n",
		LanguageId: "plaintext",
		ByteCount:  5,
	}
}

type testHost struct {
	documentRegistry *MemoryDocumentRegistry
	editorRegistry   *MemoryEditorRegistry
	dirtyState       DirtyStateProvider
	activeViewQuery  ActiveViewQuery
}

func newTestHost() *testHost {
	return &testHost{
		documentRegistry: NewMemoryDocumentRegistry(),
		editorRegistry:   NewMemoryEditorRegistry(),
		dirtyState: DirtyStateFunction(func(documentId BufferId) bool {
			return false
		}),
		activeViewQuery: ActiveViewQueryFunction(func() (Id, bool) {
			return Id{}, false
		}),
	}
}

func (self *testHost) computeSnapshot() (*Snapshot, map[ViewId]EditorView) {
	return ComputeSnapshot(
		self.documentRegistry,
		self.editorRegistry,
		self.dirtyState,
		self.activeViewQuery,
		mib(50),
	)
}

func TestComputeDeltaInitial(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	host.documentRegistry.AddDocument(testDocument("file:///b"))
	view := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(view)
	view.SetFocused(true)

	after, _ := host.computeSnapshot()
	delta := ComputeDelta(nil, after)

	assert.Equal(t, 0, len(delta.RemovedDocuments))
	assert.Equal(t, 0, len(delta.RemovedEditors))
	assert.Equal(t, 2, len(delta.AddedDocuments))
	assert.Equal(t, 1, len(delta.AddedEditors))
	assert.Equal(t, true, delta.ActiveEditorChanged)
	assert.Equal(t, (*ViewId)(nil), delta.OldActiveEditor)
	assert.NotEqual(t, (*ViewId)(nil), delta.NewActiveEditor)
	assert.Equal(t, ViewId{Handle: view.Handle(), Buffer: "file:///a"}, *delta.NewActiveEditor)
}

func TestComputeDeltaEmptyInitial(t *testing.T) {
	host := newTestHost()
	after, _ := host.computeSnapshot()
	delta := ComputeDelta(nil, after)

	assert.Equal(t, true, delta.IsEmpty())
	assert.Equal(t, 0, len(delta.AddedDocuments))
	assert.Equal(t, 0, len(delta.AddedEditors))
	assert.Equal(t, false, delta.ActiveEditorChanged)
}

func TestComputeDeltaDisjointAndRoundTrip(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	host.documentRegistry.AddDocument(testDocument("file:///b"))
	viewA := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(viewA)
	before, _ := host.computeSnapshot()

	host.documentRegistry.RemoveDocument("file:///a")
	host.editorRegistry.CloseView(viewA)
	host.documentRegistry.AddDocument(testDocument("file:///c"))
	viewC := NewMemoryEditorView("file:///c", GroupOne)
	host.editorRegistry.OpenView(viewC)
	after, _ := host.computeSnapshot()

	delta := ComputeDelta(before, after)

	// added and removed are pairwise disjoint per entity kind
	addedDocumentIds := mapset.NewSet[BufferId]()
	for _, document := range delta.AddedDocuments {
		addedDocumentIds.Add(document.Id)
	}
	removedDocumentIds := mapset.NewSet(delta.RemovedDocuments...)
	assert.Equal(t, 0, addedDocumentIds.Intersect(removedDocumentIds).Cardinality())

	addedViewIds := mapset.NewSet[ViewId]()
	for _, editor := range delta.AddedEditors {
		addedViewIds.Add(editor.Id)
	}
	removedViewIds := mapset.NewSet(delta.RemovedEditors...)
	assert.Equal(t, 0, addedViewIds.Intersect(removedViewIds).Cardinality())

	// applying the delta to before reconstructs after's id sets
	documentIds := before.DocumentIds()
	for _, documentId := range delta.RemovedDocuments {
		documentIds.Remove(documentId)
	}
	for _, document := range delta.AddedDocuments {
		documentIds.Add(document.Id)
	}
	assert.Equal(t, true, documentIds.Equal(after.DocumentIds()))

	viewIds := mapset.NewSet[ViewId]()
	for _, editor := range before.Editors() {
		viewIds.Add(editor.Id)
	}
	for _, viewId := range delta.RemovedEditors {
		viewIds.Remove(viewId)
	}
	for _, editor := range delta.AddedEditors {
		viewIds.Add(editor.Id)
	}
	afterViewIds := mapset.NewSet[ViewId]()
	for _, editor := range after.Editors() {
		afterViewIds.Add(editor.Id)
	}
	assert.Equal(t, true, viewIds.Equal(afterViewIds))

	// added records match after's records verbatim
	for _, document := range delta.AddedDocuments {
		afterDocument, ok := after.Document(document.Id)
		assert.Equal(t, true, ok)
		assert.Equal(t, afterDocument, document)
	}
	for _, editor := range delta.AddedEditors {
		afterEditor, ok := after.Editor(editor.Id)
		assert.Equal(t, true, ok)
		assert.Equal(t, afterEditor, editor)
	}
}

func TestComputeDeltaRecordsAreCopies(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	view := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(view)
	after, _ := host.computeSnapshot()

	delta := ComputeDelta(nil, after)

	// a delta observer mutating the added records never reaches the
	// snapshot's own state
	delta.AddedDocuments[0].Lines[0] = "mutated"
	delta.AddedEditors[0].Position = GroupThree

	document, _ := after.Document("file:///a")
	assert.Equal(t, []string{"hello"}, document.Lines)
	editor, _ := after.Editor(ViewId{Handle: view.Handle(), Buffer: "file:///a"})
	assert.Equal(t, GroupOne, editor.Position)
}

func TestComputeDeltaEmptyIffEqual(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	view := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(view)
	view.SetFocused(true)

	before, _ := host.computeSnapshot()
	// a defensive recomputation with no state change
	after, _ := host.computeSnapshot()

	assert.Equal(t, true, ComputeDelta(before, after).IsEmpty())

	view.SetFocused(false)
	changed, _ := host.computeSnapshot()
	assert.Equal(t, false, ComputeDelta(before, changed).IsEmpty())
}

func TestComputeDeltaPresenceOnly(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	view := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(view)
	before, _ := host.computeSnapshot()

	// attribute mutation on a surviving view is not reported
	view.SetSelections([]Range{{StartLine: 1, StartColumn: 0, EndLine: 1, EndColumn: 4}})
	after, _ := host.computeSnapshot()

	delta := ComputeDelta(before, after)
	assert.Equal(t, 0, len(delta.AddedEditors))
	assert.Equal(t, 0, len(delta.RemovedEditors))
	assert.Equal(t, true, delta.IsEmpty())
}

func TestComputeDeltaActiveTransition(t *testing.T) {
	host := newTestHost()
	host.documentRegistry.AddDocument(testDocument("file:///a"))
	view := NewMemoryEditorView("file:///a", GroupOne)
	host.editorRegistry.OpenView(view)
	view.SetFocused(true)
	before, _ := host.computeSnapshot()

	// focus lost, no other view focused, no workbench fallback match
	view.SetFocused(false)
	after, _ := host.computeSnapshot()

	delta := ComputeDelta(before, after)
	assert.Equal(t, true, delta.ActiveEditorChanged)
	assert.NotEqual(t, (*ViewId)(nil), delta.OldActiveEditor)
	assert.Equal(t, ViewId{Handle: view.Handle(), Buffer: "file:///a"}, *delta.OldActiveEditor)
	assert.Equal(t, (*ViewId)(nil), delta.NewActiveEditor)
	assert.Equal(t, false, delta.IsEmpty())

	// both ends absent when unchanged
	again, _ := host.computeSnapshot()
	delta = ComputeDelta(after, again)
	assert.Equal(t, false, delta.ActiveEditorChanged)
	assert.Equal(t, (*ViewId)(nil), delta.OldActiveEditor)
	assert.Equal(t, (*ViewId)(nil), delta.NewActiveEditor)
}
