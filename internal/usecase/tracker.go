package usecase

import (
	"sync"

	"github.com/yaskovbs/movies-and-tv-shows-recaps-YouTube-chann/internal/types"
)

var transitions = map[types.StageKind][]types.StageKind{
	types.StageIdle:             {types.StageLoadingEngine},
	types.StageLoadingEngine:    {types.StageCuttingVideo},
	types.StageCuttingVideo:     {types.StageGeneratingScript},
	types.StageGeneratingScript: {types.StageGeneratingAudio},
	types.StageGeneratingAudio:  {types.StageCompleted},
}

func isValidTransition(from, to types.StageKind) bool {
	if from.Terminal() {
		return false
	}
	if to == types.StageError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tracker holds the latest stage of one run. Re-emitting the current stage
// is allowed as long as its percent does not go down.
type tracker struct {
	mu      sync.Mutex
	cur     types.ProcessingStage
	onStage func(types.ProcessingStage)
}

func newTracker(onStage func(types.ProcessingStage)) *tracker {
	return &tracker{
		cur:     types.ProcessingStage{Kind: types.StageIdle},
		onStage: onStage,
	}
}

// emit applies the stage and notifies the observer. It reports false when
// the stage was dropped.
func (t *tracker) emit(kind types.StageKind, progress int, message string) bool {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	next := types.ProcessingStage{Kind: kind, Progress: progress, Message: message}

	t.mu.Lock()
	if kind == t.cur.Kind {
		if kind.Terminal() || progress < t.cur.Progress || next == t.cur {
			t.mu.Unlock()
			return false
		}
	} else if !isValidTransition(t.cur.Kind, kind) {
		t.mu.Unlock()
		return false
	}
	t.cur = next
	t.mu.Unlock()

	if t.onStage != nil {
		t.onStage(next)
	}
	return true
}

func (t *tracker) current() types.ProcessingStage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}
