package editsync

import (
	"strings"

	"golang.org/x/exp/slices"
)

// Delta is the minimal difference between two snapshots. Added buffers
// and views carry full records because the mirror has no prior
// knowledge of them; removals carry bare identifiers because the
// mirror already holds the full record. A view that exists in both
// snapshots with changed attributes is not reported here: this
// subsystem replicates presence only, and attribute changes travel on
// separate per-entity channels.
type Delta struct {
	RemovedDocuments []BufferId
	AddedDocuments   []*DocumentSnapshot
	RemovedEditors   []ViewId
	AddedEditors     []*ViewSnapshot

	// when the active editor changed, both ends of the transition are
	// reported; a nil end means "no active editor"
	ActiveEditorChanged bool
	OldActiveEditor     *ViewId
	NewActiveEditor     *ViewId
}

func (self *Delta) IsEmpty() bool {
	return len(self.RemovedDocuments) == 0 &&
		len(self.AddedDocuments) == 0 &&
		len(self.RemovedEditors) == 0 &&
		len(self.AddedEditors) == 0 &&
		!self.ActiveEditorChanged
}

// ComputeDelta diffs two snapshots by identity. `before == nil` is the
// degenerate first computation, where everything in `after` is added
// and there is no old active editor. Collections are emitted in sorted
// id order so repeated runs over the same snapshots produce the same
// delta. Added records are copies, so a delta observer can never reach
// the snapshots' own state.
func ComputeDelta(before *Snapshot, after *Snapshot) *Delta {
	if before == nil {
		before = EmptySnapshot()
	}

	delta := &Delta{}

	removedDocumentIds := before.documentIds.Difference(after.documentIds).ToSlice()
	slices.Sort(removedDocumentIds)
	delta.RemovedDocuments = removedDocumentIds

	addedDocumentIds := after.documentIds.Difference(before.documentIds).ToSlice()
	slices.Sort(addedDocumentIds)
	for _, documentId := range addedDocumentIds {
		delta.AddedDocuments = append(delta.AddedDocuments, after.documents[documentId].Copy())
	}

	for viewId := range before.editors {
		if _, ok := after.editors[viewId]; !ok {
			delta.RemovedEditors = append(delta.RemovedEditors, viewId)
		}
	}
	slices.SortFunc(delta.RemovedEditors, compareViewIds)

	for viewId, editor := range after.editors {
		if _, ok := before.editors[viewId]; !ok {
			delta.AddedEditors = append(delta.AddedEditors, editor.Copy())
		}
	}
	slices.SortFunc(delta.AddedEditors, func(a *ViewSnapshot, b *ViewSnapshot) int {
		return compareViewIds(a.Id, b.Id)
	})

	if !viewIdsEqual(before.activeEditor, after.activeEditor) {
		delta.ActiveEditorChanged = true
		delta.OldActiveEditor = before.activeEditor
		delta.NewActiveEditor = after.activeEditor
	}

	return delta
}

func viewIdsEqual(a *ViewId, b *ViewId) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func compareBufferIds(a BufferId, b BufferId) int {
	return strings.Compare(string(a), string(b))
}

func compareViewIds(a ViewId, b ViewId) int {
	if c := strings.Compare(a.Handle.String(), b.Handle.String()); c != 0 {
		return c
	}
	return compareBufferIds(a.Buffer, b.Buffer)
}
