package reorg

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ergo-indexer/internal/ierr"
	"github.com/Klingon-tech/ergo-indexer/internal/model"
	"github.com/Klingon-tech/ergo-indexer/internal/nodeclient"
)

type fakeNode map[string]nodeclient.Header

func (f fakeNode) Header(_ context.Context, id string) (nodeclient.Header, error) {
	h, ok := f[id]
	if !ok {
		return nodeclient.Header{}, ierr.ErrNotFound
	}
	return h, nil
}

type fakeStore map[string]model.Block

func (f fakeStore) GetHeader(_ context.Context, blockID string) (model.Block, error) {
	b, ok := f[blockID]
	if !ok {
		return model.Block{}, ierr.ErrNotFound
	}
	return b, nil
}

func TestDetector_NoReorgWhenNodeExtendsStoredTip(t *testing.T) {
	stored := fakeStore{"b10": {ID: "b10", ParentID: "b9", Height: 10}}
	node := fakeNode{}
	d := New(node, stored, 0, zerolog.Nop())

	ev, err := d.Check(t.Context(), stored["b10"], nodeclient.Header{ID: "b11", ParentID: "b10", Height: 11})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ev != nil {
		t.Errorf("expected no reorg, got %+v", ev)
	}
}

func TestDetector_FindsCommonAncestor(t *testing.T) {
	// Stored chain:  b8 <- b9 <- b10 (tip)
	// Node chain:    b8 <- f9 <- f10 <- f11 (best)   -- forked at b8/height 8
	stored := fakeStore{
		"b10": {ID: "b10", ParentID: "b9", Height: 10},
		"b9":  {ID: "b9", ParentID: "b8", Height: 9},
		"b8":  {ID: "b8", ParentID: "b7", Height: 8},
	}
	node := fakeNode{
		"f11": {ID: "f11", ParentID: "f10", Height: 11},
		"f10": {ID: "f10", ParentID: "f9", Height: 10},
		"f9":  {ID: "f9", ParentID: "b8", Height: 9},
		"b8":  {ID: "b8", ParentID: "b7", Height: 8},
	}
	d := New(node, stored, 0, zerolog.Nop())

	ev, err := d.Check(t.Context(), stored["b10"], nodeclient.Header{ID: "f11", ParentID: "f10", Height: 11})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ev == nil {
		t.Fatal("expected a reorg event")
	}
	if ev.FromHeight != 9 {
		t.Errorf("FromHeight = %d, want 9", ev.FromHeight)
	}
	if ev.NewTip != "f11" {
		t.Errorf("NewTip = %q, want f11", ev.NewTip)
	}
}

func TestDetector_ShallowerNodeTip(t *testing.T) {
	// Node tip is at a lower height than the stored tip (deep local reorg
	// candidate): stored b8<-b9<-b10, node tip f8 forked at b7/height 7.
	stored := fakeStore{
		"b10": {ID: "b10", ParentID: "b9", Height: 10},
		"b9":  {ID: "b9", ParentID: "b8", Height: 9},
		"b8":  {ID: "b8", ParentID: "b7", Height: 8},
		"b7":  {ID: "b7", ParentID: "b6", Height: 7},
	}
	node := fakeNode{
		"f8": {ID: "f8", ParentID: "b7", Height: 8},
		"b7": {ID: "b7", ParentID: "b6", Height: 7},
	}
	d := New(node, stored, 0, zerolog.Nop())

	ev, err := d.Check(t.Context(), stored["b10"], nodeclient.Header{ID: "f8", ParentID: "b7", Height: 8})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ev == nil {
		t.Fatal("expected a reorg event")
	}
	if ev.FromHeight != 8 {
		t.Errorf("FromHeight = %d, want 8", ev.FromHeight)
	}
}

func TestDetector_TooDeepIsFatal(t *testing.T) {
	// Diverging chains that never meet within the two-step depth budget.
	stored := fakeStore{
		"b5": {ID: "b5", ParentID: "b4", Height: 5},
		"b4": {ID: "b4", ParentID: "b3", Height: 4},
		"b3": {ID: "b3", ParentID: "b2", Height: 3},
	}
	node := fakeNode{
		"f5": {ID: "f5", ParentID: "f4", Height: 5},
		"f4": {ID: "f4", ParentID: "f3", Height: 4},
		"f3": {ID: "f3", ParentID: "f2", Height: 3},
	}
	d := New(node, stored, 2, zerolog.Nop())

	_, err := d.Check(t.Context(), stored["b5"], nodeclient.Header{ID: "f5", ParentID: "f4", Height: 5})
	if !errors.Is(err, ierr.ErrReorgTooDeep) {
		t.Errorf("expected ErrReorgTooDeep, got %v", err)
	}
}
