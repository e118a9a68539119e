// Package scenes holds the user's scene picks against the current scene
// list and turns them into a remix request.
package scenes

import (
	"errors"
	"sort"

	"marketingflow/backend"
	"marketingflow/textutil"
)

var (
	ErrEmptySelection  = errors.New("no scenes selected")
	ErrNoAnalysis      = errors.New("no scene analysis")
	ErrIndexOutOfRange = errors.New("scene index out of range")
)

// Selection is a set of scene indices. The zero value is empty and ready to use.
type Selection struct {
	set map[int]struct{}
}

// Toggle flips index i and reports whether it is now selected.
func (s *Selection) Toggle(i int) bool {
	if s.set == nil {
		s.set = make(map[int]struct{})
	}
	if _, ok := s.set[i]; ok {
		delete(s.set, i)
		return false
	}
	s.set[i] = struct{}{}
	return true
}

func (s *Selection) Clear() {
	s.set = nil
}

func (s *Selection) Has(i int) bool {
	_, ok := s.set[i]
	return ok
}

func (s *Selection) Len() int {
	return len(s.set)
}

// Indices returns the selected indices in ascending order.
func (s *Selection) Indices() []int {
	out := make([]int, 0, len(s.set))
	for i := range s.set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// BuildRemixRequest returns the selected scenes of list, in list order,
// paired with videoPath. An empty selection is a validation error.
func (s *Selection) BuildRemixRequest(videoPath string, list []backend.SceneSegment) (backend.RemixRequest, error) {
	if s.Len() == 0 {
		return backend.RemixRequest{}, &backend.ValidationError{
			Field:   "scenes",
			Message: "No scenes were selected. Please check the boxes in the scene table.",
			Err:     ErrEmptySelection,
		}
	}

	kept := make([]backend.SceneSegment, 0, s.Len())
	for _, i := range s.Indices() {
		if i >= 0 && i < len(list) {
			kept = append(kept, list[i])
		}
	}
	return backend.RemixRequest{VideoPath: videoPath, Scenes: kept}, nil
}

// Board is the current scene list with the selection made against it.
// Replacing the list always clears the selection first.
type Board struct {
	videoPath string
	scenes    []backend.SceneSegment
	selection Selection
}

// Replace installs a new analysed video.
func (b *Board) Replace(videoPath string, list []backend.SceneSegment) {
	b.selection.Clear()
	b.videoPath = videoPath
	b.scenes = append([]backend.SceneSegment(nil), list...)
}

// Reset forgets the video and its selection.
func (b *Board) Reset() {
	b.Replace("", nil)
}

// Toggle flips scene i, which must index the current list.
func (b *Board) Toggle(i int) (bool, error) {
	if i < 0 || i >= len(b.scenes) {
		return false, ErrIndexOutOfRange
	}
	return b.selection.Toggle(i), nil
}

func (b *Board) Clear() {
	b.selection.Clear()
}

func (b *Board) Selected() []int {
	return b.selection.Indices()
}

func (b *Board) Scenes() []backend.SceneSegment {
	return append([]backend.SceneSegment(nil), b.scenes...)
}

// BuildRemixRequest requires an analysed video and a non-empty selection.
func (b *Board) BuildRemixRequest() (backend.RemixRequest, error) {
	if b.videoPath == "" {
		return backend.RemixRequest{}, &backend.ValidationError{
			Field:   "video_path",
			Message: "Please run the video analyzer first.",
			Err:     ErrNoAnalysis,
		}
	}
	return b.selection.BuildRemixRequest(b.videoPath, b.scenes)
}

// TotalDuration sums the reported scene durations.
func TotalDuration(list []backend.SceneSegment) float64 {
	total := 0.0
	for _, s := range list {
		total += s.DurationSec
	}
	return total
}

// Row is one scene as presented for selection.
type Row struct {
	Index       int     `json:"index"`
	StartSec    float64 `json:"startSec"`
	EndSec      float64 `json:"endSec"`
	DurationSec float64 `json:"durationSec"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	CopyText    string  `json:"copyText"`
	Selected    bool    `json:"selected"`
}

// Rows renders the board for display.
func (b *Board) Rows() []Row {
	rows := make([]Row, len(b.scenes))
	for i, s := range b.scenes {
		rows[i] = Row{
			Index:       i,
			StartSec:    s.StartSec,
			EndSec:      s.EndSec,
			DurationSec: s.DurationSec,
			Start:       textutil.FormatTime(s.StartSec),
			End:         textutil.FormatTime(s.EndSec),
			CopyText:    textutil.CopyTimes(s.StartSec, s.EndSec),
			Selected:    b.selection.Has(i),
		}
	}
	return rows
}
