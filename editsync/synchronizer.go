package editsync

import (
	"context"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// Logging convention for the synchronizer:
// Info:
//     abnormal events only. Delivery failures, recovered callback
//     panics.
// V(1):
//     one line per committed snapshot with delta summary counts.
// V(2):
//     frequent wire-level events, summarized by the transport.

func DefaultSynchronizerSettings() *SynchronizerSettings {
	return &SynchronizerSettings{
		MaxDocumentByteCount: mib(50),
	}
}

type SynchronizerSettings struct {
	// buffers above this size never enter a snapshot
	MaxDocumentByteCount ByteCount
}

// DeltaSender carries a delta to the remote mirror. Delivery is fire
// and forget: the synchronizer does not wait for acknowledgment and a
// failed delivery is not retried.
type DeltaSender interface {
	SendDelta(delta *Delta) error
}

type DocumentsFunction = func(documents []*DocumentSnapshot)
type DocumentIdsFunction = func(documentIds []BufferId)
type EditorsFunction = func(editors []*ViewSnapshot)
type EditorIdsFunction = func(viewIds []ViewId)
type ErrorFunction = func(err error)

// Synchronizer owns the one current snapshot and keeps the remote
// mirror in step with the host registries. Every qualifying registry
// event triggers a recomputation; non-empty deltas are delivered to
// the mirror first and then to local observers.
type Synchronizer struct {
	ctx context.Context

	documentRegistry DocumentRegistry
	editorRegistry   EditorRegistry
	dirtyState       DirtyStateProvider
	activeViewQuery  ActiveViewQuery
	deltaSender      DeltaSender

	settings *SynchronizerSettings

	mutex               sync.Mutex
	current             *Snapshot
	recomputeInProgress bool
	recomputePending    bool
	viewFocusUnsubs     map[ViewId]func()
	unsubs              []func()

	documentsAddedCallbacks   *CallbackList[DocumentsFunction]
	documentsRemovedCallbacks *CallbackList[DocumentIdsFunction]
	editorsAddedCallbacks     *CallbackList[EditorsFunction]
	editorsRemovedCallbacks   *CallbackList[EditorIdsFunction]
	errorCallbacks            *CallbackList[ErrorFunction]
}

func NewSynchronizerWithDefaults(
	ctx context.Context,
	documentRegistry DocumentRegistry,
	editorRegistry EditorRegistry,
	dirtyState DirtyStateProvider,
	activeViewQuery ActiveViewQuery,
	deltaSender DeltaSender,
) *Synchronizer {
	return NewSynchronizer(
		ctx,
		documentRegistry,
		editorRegistry,
		dirtyState,
		activeViewQuery,
		deltaSender,
		DefaultSynchronizerSettings(),
	)
}

func NewSynchronizer(
	ctx context.Context,
	documentRegistry DocumentRegistry,
	editorRegistry EditorRegistry,
	dirtyState DirtyStateProvider,
	activeViewQuery ActiveViewQuery,
	deltaSender DeltaSender,
	settings *SynchronizerSettings,
) *Synchronizer {
	synchronizer := &Synchronizer{
		ctx:                       ctx,
		documentRegistry:          documentRegistry,
		editorRegistry:            editorRegistry,
		dirtyState:                dirtyState,
		activeViewQuery:           activeViewQuery,
		deltaSender:               deltaSender,
		settings:                  settings,
		viewFocusUnsubs:           map[ViewId]func(){},
		documentsAddedCallbacks:   NewCallbackList[DocumentsFunction](),
		documentsRemovedCallbacks: NewCallbackList[DocumentIdsFunction](),
		editorsAddedCallbacks:     NewCallbackList[EditorsFunction](),
		editorsRemovedCallbacks:   NewCallbackList[EditorIdsFunction](),
		errorCallbacks:            NewCallbackList[ErrorFunction](),
	}

	// subscribe before the initial recomputation so no event can slip
	// between the first snapshot and the steady state
	unsubs := []func(){
		documentRegistry.AddDocumentAddedCallback(synchronizer.documentAdded),
		documentRegistry.AddDocumentRemovedCallback(func(document *Document) {
			synchronizer.recomputeAll()
		}),
		editorRegistry.AddViewAddedCallback(func(view EditorView) {
			synchronizer.recomputeAll()
		}),
		editorRegistry.AddViewRemovedCallback(func(view EditorView) {
			synchronizer.recomputeAll()
		}),
	}
	synchronizer.unsubs = unsubs

	// the first delta must describe the complete initial state so that
	// the mirror starts from the host's reality, not from assumed-empty
	synchronizer.recomputeAll()

	return synchronizer
}

// the current snapshot is exclusively owned here. The accessor exists
// for diagnostics; the returned snapshot is immutable.
func (self *Synchronizer) CurrentSnapshot() *Snapshot {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.current
}

func (self *Synchronizer) AddDocumentsAddedCallback(callback DocumentsFunction) func() {
	callbackId := self.documentsAddedCallbacks.Add(callback)
	return func() {
		self.documentsAddedCallbacks.Remove(callbackId)
	}
}

func (self *Synchronizer) AddDocumentsRemovedCallback(callback DocumentIdsFunction) func() {
	callbackId := self.documentsRemovedCallbacks.Add(callback)
	return func() {
		self.documentsRemovedCallbacks.Remove(callbackId)
	}
}

func (self *Synchronizer) AddEditorsAddedCallback(callback EditorsFunction) func() {
	callbackId := self.editorsAddedCallbacks.Add(callback)
	return func() {
		self.editorsAddedCallbacks.Remove(callbackId)
	}
}

func (self *Synchronizer) AddEditorsRemovedCallback(callback EditorIdsFunction) func() {
	callbackId := self.editorsRemovedCallbacks.Add(callback)
	return func() {
		self.editorsRemovedCallbacks.Remove(callbackId)
	}
}

func (self *Synchronizer) AddErrorCallback(callback ErrorFunction) func() {
	callbackId := self.errorCallbacks.Add(callback)
	return func() {
		self.errorCallbacks.Remove(callbackId)
	}
}

// DocumentFunction
func (self *Synchronizer) documentAdded(document *Document) {
	if !eligibleDocument(document, self.settings.MaxDocumentByteCount) {
		// the buffer never enters a snapshot, so a full recomputation
		// would produce an empty delta. Skip the work entirely
		glog.V(1).Infof("[sync]document too large %s (%d)\n", document.Id, document.ByteCount)
		return
	}
	self.recompute(document)
}

func (self *Synchronizer) recomputeAll() {
	self.recompute(nil)
}

// recompute runs one recomputation pass, or defers if a pass is
// already in progress. A trigger arriving mid-pass coalesces into a
// single trailing full rerun; it never runs inline, since nested
// recomputation against a half-committed snapshot is how mirrors
// desynchronize.
//
// fastPathDocument, when set, is a single newly added eligible buffer
// that can be folded into the current snapshot without enumerating the
// registries. The fold only short-circuits enumeration; eligibility,
// id assignment, and the delta itself go through the same code as the
// full path. A buffer some live view is already bound to never takes
// the fold: the view must enter the snapshot together with its buffer,
// and only full construction admits it.
func (self *Synchronizer) recompute(fastPathDocument *Document) {
	self.mutex.Lock()
	if self.recomputeInProgress {
		self.recomputePending = true
		self.mutex.Unlock()
		return
	}
	self.recomputeInProgress = true
	current := self.current
	self.mutex.Unlock()

	for {
		var next *Snapshot
		var liveViews map[ViewId]EditorView
		if fastPathDocument != nil && current != nil &&
			!current.documentIds.Contains(fastPathDocument.Id) &&
			!self.anyViewBound(fastPathDocument.Id) {
			next = current.WithDocument(snapshotDocument(fastPathDocument, self.dirtyState))
		} else {
			next, liveViews = ComputeSnapshot(
				self.documentRegistry,
				self.editorRegistry,
				self.dirtyState,
				self.activeViewQuery,
				self.settings.MaxDocumentByteCount,
			)
		}
		fastPathDocument = nil

		delta := ComputeDelta(current, next)

		// the new snapshot is always committed, even when the delta is
		// empty, so that subsequent diffs run against fresh state
		self.mutex.Lock()
		self.current = next
		self.mutex.Unlock()

		if liveViews != nil {
			self.updateFocusSubscriptions(delta, liveViews)
		}

		if delta.IsEmpty() {
			glog.V(1).Infof("[sync]recompute no change (%d documents, %d editors)\n",
				next.documentIds.Cardinality(), len(next.editors))
		} else {
			glog.V(1).Infof("[sync]commit +%dd -%dd +%de -%de active=%t\n",
				len(delta.AddedDocuments), len(delta.RemovedDocuments),
				len(delta.AddedEditors), len(delta.RemovedEditors),
				delta.ActiveEditorChanged)
			self.notify(delta)
		}

		self.mutex.Lock()
		if !self.recomputePending {
			self.recomputeInProgress = false
			self.mutex.Unlock()
			return
		}
		self.recomputePending = false
		current = self.current
		self.mutex.Unlock()
	}
}

// reports whether any live view is bound to the buffer. A view can be
// waiting on its buffer, as when the buffer was removed and re-added
// while the view stayed open.
func (self *Synchronizer) anyViewBound(documentId BufferId) bool {
	for _, view := range self.editorRegistry.Views() {
		if !view.Disposed() && view.DocumentId() == documentId {
			return true
		}
	}
	return false
}

// focus subscriptions follow snapshot membership. A removed view's
// subscription is released immediately so a stale handle can never
// trigger a recomputation; releasing an unknown id is a no-op.
func (self *Synchronizer) updateFocusSubscriptions(delta *Delta, liveViews map[ViewId]EditorView) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, viewId := range delta.RemovedEditors {
		if unsub, ok := self.viewFocusUnsubs[viewId]; ok {
			delete(self.viewFocusUnsubs, viewId)
			unsub()
		}
	}
	for _, editor := range delta.AddedEditors {
		view, ok := liveViews[editor.Id]
		if !ok {
			continue
		}
		if _, ok := self.viewFocusUnsubs[editor.Id]; ok {
			continue
		}
		self.viewFocusUnsubs[editor.Id] = view.AddFocusChangedCallback(func(focused bool) {
			self.recomputeAll()
		})
	}
}

// notification order is fixed: the remote mirror is told first, since
// a local observer may immediately issue a request referencing the new
// state and that request must not race the mirror's own update. Then
// document removals, document additions, editor removals, editor
// additions.
func (self *Synchronizer) notify(delta *Delta) {
	if err := self.deltaSender.SendDelta(delta); err != nil {
		// not retried. The next state change still produces a correct
		// delta against our own snapshot, but the mirror's belief about
		// prior state is now stale. Known risk of the fire-and-forget
		// protocol.
		glog.Infof("[sync]delta send error = %s\n", err)
		self.error(err)
	}

	if 0 < len(delta.RemovedDocuments) {
		for _, callback := range self.documentsRemovedCallbacks.Get() {
			callback := callback
			handleCallback(func() {
				callback(delta.RemovedDocuments)
			})
		}
	}
	if 0 < len(delta.AddedDocuments) {
		for _, callback := range self.documentsAddedCallbacks.Get() {
			callback := callback
			handleCallback(func() {
				callback(delta.AddedDocuments)
			})
		}
	}
	if 0 < len(delta.RemovedEditors) {
		for _, callback := range self.editorsRemovedCallbacks.Get() {
			callback := callback
			handleCallback(func() {
				callback(delta.RemovedEditors)
			})
		}
	}
	if 0 < len(delta.AddedEditors) {
		for _, callback := range self.editorsAddedCallbacks.Get() {
			callback := callback
			handleCallback(func() {
				callback(delta.AddedEditors)
			})
		}
	}
}

func (self *Synchronizer) error(err error) {
	for _, errorCallback := range self.errorCallbacks.Get() {
		errorCallback := errorCallback
		handleCallback(func() {
			errorCallback(err)
		})
	}
}

// Close releases the per-view focus subscriptions and then the
// registry subscriptions in reverse order of acquisition. Close is
// safe to call once at teardown; events arriving afterwards are no
// longer observed.
func (self *Synchronizer) Close() {
	self.mutex.Lock()
	viewFocusUnsubs := maps.Values(self.viewFocusUnsubs)
	self.viewFocusUnsubs = map[ViewId]func(){}
	unsubs := self.unsubs
	self.unsubs = nil
	self.mutex.Unlock()

	for _, unsub := range viewFocusUnsubs {
		unsub()
	}
	for i := len(unsubs) - 1; 0 <= i; i -= 1 {
		unsubs[i]()
	}
}
