package editsync

import (
	"sync"

	"golang.org/x/exp/slices"
)

// collaborator interfaces for the editing host. The synchronizer
// depends only on these. The memory implementations below back the
// tests and `editsyncctl`; a real host adapts its own registries.

type DocumentFunction = func(document *Document)
type ViewFunction = func(view EditorView)
type FocusFunction = func(focused bool)

type DocumentRegistry interface {
	// live buffers, in host order
	Documents() []*Document
	AddDocumentAddedCallback(documentCallback DocumentFunction) func()
	AddDocumentRemovedCallback(documentCallback DocumentFunction) func()
}

type EditorRegistry interface {
	// live views, in host order
	Views() []EditorView
	AddViewAddedCallback(viewCallback ViewFunction) func()
	AddViewRemovedCallback(viewCallback ViewFunction) func()
}

// EditorView is one live view instance presenting one buffer.
// A view can outlive its buffer for a short window during teardown,
// and can be rebound to a different buffer by the host.
type EditorView interface {
	Handle() Id
	DocumentId() BufferId
	Focused() bool
	Disposed() bool
	Selections() []Range
	Options() EditorOptions
	Position() GroupPosition
	AddFocusChangedCallback(focusCallback FocusFunction) func()
}

// dirty state is owned by an external provider, not by the registry
type DirtyStateProvider interface {
	IsDirty(documentId BufferId) bool
}

// the workbench's notion of the active view control. This is distinct
// from view focus: a panel can take os focus while a view remains the
// active editing context.
type ActiveViewQuery interface {
	ActiveViewHandle() (Id, bool)
}

type DirtyStateFunction func(documentId BufferId) bool

func (self DirtyStateFunction) IsDirty(documentId BufferId) bool {
	return self(documentId)
}

type ActiveViewQueryFunction func() (Id, bool)

func (self ActiveViewQueryFunction) ActiveViewHandle() (Id, bool) {
	return self()
}

// Document is a buffer record as enumerated by the document registry.
// Content fields are copied into snapshots; the registry retains
// ownership of the record.
type Document struct {
	Id         BufferId
	Version    int
	Lines      []string
	Eol        string
	LanguageId string
	ByteCount  ByteCount
}

type Range struct {
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

type EditorOptions struct {
	TabSize      int
	InsertSpaces bool
	LineNumbers  bool
}

type GroupPosition int

const (
	GroupOne   GroupPosition = 1
	GroupTwo   GroupPosition = 2
	GroupThree GroupPosition = 3
)

type MemoryDocumentRegistry struct {
	mutex       sync.Mutex
	documentIds []BufferId
	documents   map[BufferId]*Document

	addedCallbacks   *CallbackList[DocumentFunction]
	removedCallbacks *CallbackList[DocumentFunction]
}

func NewMemoryDocumentRegistry() *MemoryDocumentRegistry {
	return &MemoryDocumentRegistry{
		documents:        map[BufferId]*Document{},
		addedCallbacks:   NewCallbackList[DocumentFunction](),
		removedCallbacks: NewCallbackList[DocumentFunction](),
	}
}

func (self *MemoryDocumentRegistry) Documents() []*Document {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	documents := make([]*Document, 0, len(self.documentIds))
	for _, documentId := range self.documentIds {
		documents = append(documents, self.documents[documentId])
	}
	return documents
}

func (self *MemoryDocumentRegistry) AddDocumentAddedCallback(documentCallback DocumentFunction) func() {
	callbackId := self.addedCallbacks.Add(documentCallback)
	return func() {
		self.addedCallbacks.Remove(callbackId)
	}
}

func (self *MemoryDocumentRegistry) AddDocumentRemovedCallback(documentCallback DocumentFunction) func() {
	callbackId := self.removedCallbacks.Add(documentCallback)
	return func() {
		self.removedCallbacks.Remove(callbackId)
	}
}

func (self *MemoryDocumentRegistry) AddDocument(document *Document) {
	self.mutex.Lock()
	if _, ok := self.documents[document.Id]; ok {
		self.mutex.Unlock()
		return
	}
	self.documentIds = append(self.documentIds, document.Id)
	self.documents[document.Id] = document
	self.mutex.Unlock()

	for _, documentCallback := range self.addedCallbacks.Get() {
		handleCallback(func() {
			documentCallback(document)
		})
	}
}

func (self *MemoryDocumentRegistry) RemoveDocument(documentId BufferId) {
	self.mutex.Lock()
	document, ok := self.documents[documentId]
	if !ok {
		self.mutex.Unlock()
		return
	}
	delete(self.documents, documentId)
	i := slices.Index(self.documentIds, documentId)
	self.documentIds = slices.Delete(self.documentIds, i, i+1)
	self.mutex.Unlock()

	for _, documentCallback := range self.removedCallbacks.Get() {
		handleCallback(func() {
			documentCallback(document)
		})
	}
}

type MemoryEditorView struct {
	handle Id

	mutex      sync.Mutex
	documentId BufferId
	focused    bool
	disposed   bool
	selections []Range
	options    EditorOptions
	position   GroupPosition

	focusCallbacks *CallbackList[FocusFunction]
}

func NewMemoryEditorView(documentId BufferId, position GroupPosition) *MemoryEditorView {
	return &MemoryEditorView{
		handle:     NewId(),
		documentId: documentId,
		position:   position,
		options: EditorOptions{
			TabSize:      4,
			InsertSpaces: true,
			LineNumbers:  true,
		},
		focusCallbacks: NewCallbackList[FocusFunction](),
	}
}

func (self *MemoryEditorView) Handle() Id {
	return self.handle
}

func (self *MemoryEditorView) DocumentId() BufferId {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.documentId
}

func (self *MemoryEditorView) Focused() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.focused
}

func (self *MemoryEditorView) Disposed() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.disposed
}

func (self *MemoryEditorView) Selections() []Range {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return slices.Clone(self.selections)
}

func (self *MemoryEditorView) Options() EditorOptions {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.options
}

func (self *MemoryEditorView) Position() GroupPosition {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.position
}

func (self *MemoryEditorView) AddFocusChangedCallback(focusCallback FocusFunction) func() {
	callbackId := self.focusCallbacks.Add(focusCallback)
	return func() {
		self.focusCallbacks.Remove(callbackId)
	}
}

func (self *MemoryEditorView) SetFocused(focused bool) {
	self.mutex.Lock()
	if self.focused == focused {
		self.mutex.Unlock()
		return
	}
	self.focused = focused
	self.mutex.Unlock()

	for _, focusCallback := range self.focusCallbacks.Get() {
		handleCallback(func() {
			focusCallback(focused)
		})
	}
}

func (self *MemoryEditorView) SetSelections(selections []Range) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.selections = slices.Clone(selections)
}

// Rebind points the view at another buffer. The view keeps its handle
// but acquires a new view id on the next recomputation.
func (self *MemoryEditorView) Rebind(documentId BufferId) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.documentId = documentId
}

func (self *MemoryEditorView) Dispose() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.disposed = true
}

type MemoryEditorRegistry struct {
	mutex sync.Mutex
	views []*MemoryEditorView

	addedCallbacks   *CallbackList[ViewFunction]
	removedCallbacks *CallbackList[ViewFunction]
}

func NewMemoryEditorRegistry() *MemoryEditorRegistry {
	return &MemoryEditorRegistry{
		addedCallbacks:   NewCallbackList[ViewFunction](),
		removedCallbacks: NewCallbackList[ViewFunction](),
	}
}

func (self *MemoryEditorRegistry) Views() []EditorView {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	views := make([]EditorView, 0, len(self.views))
	for _, view := range self.views {
		views = append(views, view)
	}
	return views
}

func (self *MemoryEditorRegistry) AddViewAddedCallback(viewCallback ViewFunction) func() {
	callbackId := self.addedCallbacks.Add(viewCallback)
	return func() {
		self.addedCallbacks.Remove(callbackId)
	}
}

func (self *MemoryEditorRegistry) AddViewRemovedCallback(viewCallback ViewFunction) func() {
	callbackId := self.removedCallbacks.Add(viewCallback)
	return func() {
		self.removedCallbacks.Remove(callbackId)
	}
}

func (self *MemoryEditorRegistry) OpenView(view *MemoryEditorView) {
	self.mutex.Lock()
	if slices.Contains(self.views, view) {
		self.mutex.Unlock()
		return
	}
	self.views = append(self.views, view)
	self.mutex.Unlock()

	for _, viewCallback := range self.addedCallbacks.Get() {
		handleCallback(func() {
			viewCallback(view)
		})
	}
}

func (self *MemoryEditorRegistry) CloseView(view *MemoryEditorView) {
	self.mutex.Lock()
	i := slices.Index(self.views, view)
	if i < 0 {
		self.mutex.Unlock()
		return
	}
	self.views = slices.Delete(self.views, i, i+1)
	self.mutex.Unlock()

	view.Dispose()

	for _, viewCallback := range self.removedCallbacks.Get() {
		handleCallback(func() {
			viewCallback(view)
		})
	}
}

// FocusView moves focus to `view`, blurring whichever view held it.
// Only one view reports focus at a time.
func (self *MemoryEditorRegistry) FocusView(view *MemoryEditorView) {
	self.mutex.Lock()
	views := slices.Clone(self.views)
	self.mutex.Unlock()

	for _, otherView := range views {
		if otherView != view {
			otherView.SetFocused(false)
		}
	}
	view.SetFocused(true)
}
