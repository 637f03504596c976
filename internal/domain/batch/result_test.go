package batch

import (
	"errors"
	"slices"
	"testing"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

func TestResult(t *testing.T) {
	ok := NewOK(1)
	if ok.ID() != 1 || ok.Status() != StatusOK || !ok.OK() || ok.Err() != nil {
		t.Errorf("NewOK(1) = %+v", ok)
	}

	cause := errors.New("unknown publisher")
	failed := NewError(2, cause)
	if failed.ID() != 2 || failed.Status() != StatusError || failed.OK() {
		t.Errorf("NewError(2) = %+v", failed)
	}
	if !errors.Is(failed.Err(), cause) {
		t.Errorf("Err() = %v, want %v", failed.Err(), cause)
	}
	if NewError(3, nil).OK() {
		t.Error("error result without cause should still be failed")
	}
}

func TestTally(t *testing.T) {
	results := []Result{NewOK(1), NewError(2, errors.New("x")), NewOK(3), NewError(4, nil)}

	succeeded, failed := Tally(results)
	if succeeded != 2 || failed != 2 {
		t.Errorf("Tally = %d, %d; want 2, 2", succeeded, failed)
	}
	if got := Failed(results); !slices.Equal(got, []content.ID{2, 4}) {
		t.Errorf("Failed = %v, want [2 4]", got)
	}

	if s, f := Tally(nil); s != 0 || f != 0 {
		t.Errorf("Tally(nil) = %d, %d", s, f)
	}
	if Failed([]Result{NewOK(1)}) != nil {
		t.Error("Failed should be nil when every item succeeded")
	}
}
