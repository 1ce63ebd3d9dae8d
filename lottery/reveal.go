package lottery

import (
	"context"
	"time"
)

// Slot is one value shown during a reveal.
type Slot struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

// Frame is one display update of a reveal. Only the frame with Final set
// carries the drawn result; earlier frames are decoys.
type Frame struct {
	DrawID  string  `json:"drawId"`
	Trigger Trigger `json:"trigger"`
	Grade   int     `json:"grade,omitempty"`
	Slots   []Slot  `json:"slots"`
	Final   bool    `json:"final"`
}

// Presenter shows reveal frames and winner lists, e.g. on connected displays.
type Presenter interface {
	ShowFrame(Frame)
	ShowWinners([]Winner)
}

// reveal describes a pre-computed result to be shown.
type reveal struct {
	drawID  string
	trigger Trigger
	grade   int
	final   []Slot
	decoy   func() string
}

// Pacer plays a reveal as a fixed number of decoy frames followed by the
// final frame. The final frame always shows the result it was given.
type Pacer struct {
	Interval  time.Duration
	Presenter Presenter
}

// Play blocks for at most duration (rounded down to whole intervals).
func (p *Pacer) Play(ctx context.Context, r reveal, duration time.Duration) error {
	steps := 0
	if p.Interval > 0 && duration > 0 {
		steps = int(duration / p.Interval)
	}
	for i := 0; i < steps; i++ {
		if p.Presenter != nil && r.decoy != nil {
			slots := make([]Slot, len(r.final))
			for j := range slots {
				slots[j] = Slot{Value: r.decoy()}
			}
			p.Presenter.ShowFrame(Frame{DrawID: r.drawID, Trigger: r.trigger, Grade: r.grade, Slots: slots})
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
	if p.Presenter != nil {
		p.Presenter.ShowFrame(Frame{
			DrawID:  r.drawID,
			Trigger: r.trigger,
			Grade:   r.grade,
			Slots:   append([]Slot(nil), r.final...),
			Final:   true,
		})
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
