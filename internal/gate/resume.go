package gate

import (
	"context"
	"time"
)

// Resume re-runs the gate after the user claims to have subscribed.
// The platform caches membership aggressively on its side, so a short
// delay before rechecking avoids reading a stale "left" answer.
type Resume struct {
	protocol *Protocol
	delay    time.Duration
}

func NewResume(protocol *Protocol, delay time.Duration) *Resume {
	return &Resume{protocol: protocol, delay: delay}
}

// Run resumes an evaluation from a decoded callback payload. Whether
// the user pressed a single channel's button or the check-everything
// one, the full protocol runs again from the start: the channel on the
// button narrows the user's claim, never the recheck. A grant still
// requires every channel to pass right now.
func (r *Resume) Run(ctx context.Context, userID int64, token *ResumeToken) (*Outcome, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.protocol.Evaluate(ctx, userID, token.Code)
}

func (r *Resume) wait(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
