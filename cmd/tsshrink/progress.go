package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/gwlsn/tsshrink/internal/jobs"
)

// progressRenderer draws one bar per file from job events
type progressRenderer struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{w: w}
}

func (p *progressRenderer) handle(e jobs.JobEvent) {
	switch e.Type {
	case jobs.EventStarted:
		p.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(filepath.Base(e.Job.InputPath)),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	case jobs.EventProgress:
		if p.bar == nil {
			return
		}
		p.bar.Describe(fmt.Sprintf("%s %.1fx", filepath.Base(e.Job.InputPath), e.Job.Speed))
		_ = p.bar.Set(int(e.Job.Progress))
	case jobs.EventVerifying, jobs.EventFailed, jobs.EventCancelled:
		p.finish()
	}
}

func (p *progressRenderer) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}
