package verify

import (
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
)

type maybeProgress struct {
	bar *pb.ProgressBar
}

// MaybeProgress shows a bar on w only for runs big enough to need one.
func MaybeProgress(n int, w io.Writer) *maybeProgress {
	mp := &maybeProgress{}
	if n > 1000 {
		mp.bar = pb.ProgressBarTemplate(`{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{etime . }}`).New(n)
		mp.bar.SetRefreshRate(time.Second)
		mp.bar.SetWriter(w)
		mp.bar.Set("prefix", "verifying ")
	}
	return mp
}

func (mp *maybeProgress) Start() {
	if mp.bar != nil {
		mp.bar.Start()
	}
}

func (mp *maybeProgress) Increment() {
	if mp.bar != nil {
		mp.bar.Increment()
	}
}

func (mp *maybeProgress) Finish() {
	if mp.bar != nil {
		mp.bar.Finish()
	}
}
