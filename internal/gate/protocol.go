package gate

import (
	"context"
	"sync"
	"time"

	"subgate/internal/common/errors"
	"subgate/internal/common/logger"
	"subgate/internal/common/metrics"
	"subgate/internal/common/observability"
	"subgate/internal/membership"
	"subgate/internal/models"
)

// ContentResolver is the slice of the store the protocol needs.
type ContentResolver interface {
	GetPostByCode(ctx context.Context, code string) (*models.Post, error)
	IncrementViews(ctx context.Context, postID int64) error
}

// Checker answers membership queries. Satisfied by *membership.Oracle.
type Checker interface {
	QueryMembership(ctx context.Context, channel string, userID int64) (membership.Status, error)
}

// VerdictRecorder receives every verdict the protocol produces.
// Strictly write-only: verdicts feed observability, the protocol never
// reads a stored one back. Satisfied by *observe.Sink.
type VerdictRecorder interface {
	RecordVerdict(ctx context.Context, verdict membership.Verdict)
}

// FaultNotifier hears about channels the gate can no longer check
// because of operator-side misconfiguration.
type FaultNotifier interface {
	NotifyChannelFault(ctx context.Context, channel string, err error)
}

// Outcome is the result of one full gate evaluation.
type Outcome struct {
	Post *models.Post
	// Granted means every required channel passed and the content may
	// be delivered.
	Granted bool
	// MissingGlobal is set when the platform-wide channel failed, in
	// which case per-post channels were never checked.
	MissingGlobal bool
	// Missing lists the post channels the user is not subscribed to,
	// in the post's channel order.
	Missing []string
	// Faulted lists channels the gate could not verify because of
	// operator-side misconfiguration. An unverifiable channel blocks:
	// access requires every channel to pass, and a channel nobody can
	// check has not passed.
	Faulted []string
}

// Protocol runs the access decision for one user and one post:
//
//	resolve content -> global channel check -> per-post channel checks
//
// The global check runs first and short-circuits; the per-post checks
// fan out concurrently and their results are joined back in channel
// order.
type Protocol struct {
	resolver      ContentResolver
	checker       Checker
	recorder      VerdictRecorder
	notifier      FaultNotifier
	obs           *observability.Observability
	logger        logger.Logger
	globalChannel string
}

func NewProtocol(
	resolver ContentResolver,
	checker Checker,
	recorder VerdictRecorder,
	notifier FaultNotifier,
	obs *observability.Observability,
	log logger.Logger,
	globalChannel string,
) *Protocol {
	return &Protocol{
		resolver:      resolver,
		checker:       checker,
		recorder:      recorder,
		notifier:      notifier,
		obs:           obs,
		logger:        log,
		globalChannel: globalChannel,
	}
}

type channelResult struct {
	channel    string
	subscribed bool
	faulted    bool
	err        error
}

// Evaluate runs the whole gate for user and token. Terminal content
// problems (unknown token, deactivated post) come back as errors; a
// subscribed-or-not answer comes back as an Outcome. A transient
// oracle failure on any channel aborts with a retryable error rather
// than guessing.
func (p *Protocol) Evaluate(ctx context.Context, userID int64, code string) (*Outcome, error) {
	start := time.Now()

	post, err := p.resolver.GetPostByCode(ctx, code)
	if err != nil {
		p.finish(ctx, start, "content_error")
		return nil, err
	}
	if !post.IsActive {
		p.finish(ctx, start, "content_inactive")
		return nil, errors.NewContentInactiveError(code)
	}

	if p.globalChannel != "" {
		result := p.checkChannel(ctx, userID, p.globalChannel)
		if result.err != nil {
			p.finish(ctx, start, "oracle_failure")
			return nil, result.err
		}
		if result.faulted {
			p.finish(ctx, start, "blocked_fault")
			return &Outcome{Post: post, Faulted: []string{p.globalChannel}}, nil
		}
		if !result.subscribed {
			p.finish(ctx, start, "blocked_global")
			return &Outcome{Post: post, MissingGlobal: true}, nil
		}
	}

	results := p.checkChannels(ctx, userID, post.Channels)

	outcome := &Outcome{Post: post}
	for _, result := range results {
		if result.err != nil {
			p.finish(ctx, start, "oracle_failure")
			return nil, result.err
		}
		if result.faulted {
			outcome.Faulted = append(outcome.Faulted, result.channel)
			continue
		}
		if !result.subscribed {
			outcome.Missing = append(outcome.Missing, result.channel)
		}
	}

	if len(outcome.Missing) > 0 || len(outcome.Faulted) > 0 {
		if len(outcome.Faulted) > 0 {
			p.finish(ctx, start, "blocked_fault")
		} else {
			p.finish(ctx, start, "blocked")
		}
		return outcome, nil
	}

	outcome.Granted = true
	p.finish(ctx, start, "granted")

	// View counting is best effort and not tied to delivery; a recheck
	// that grants again counts again.
	if err := p.resolver.IncrementViews(ctx, post.ID); err != nil {
		p.logger.Warn("view increment failed", map[string]interface{}{
			"post_id": post.ID,
			"error":   err.Error(),
		})
	}
	return outcome, nil
}

// checkChannels fans the per-post checks out concurrently and joins
// them back in the original channel order.
func (p *Protocol) checkChannels(ctx context.Context, userID int64, channels []string) []channelResult {
	results := make([]channelResult, len(channels))
	var wg sync.WaitGroup
	for i, channel := range channels {
		wg.Add(1)
		go func(i int, channel string) {
			defer wg.Done()
			results[i] = p.checkChannel(ctx, userID, channel)
		}(i, channel)
	}
	wg.Wait()
	return results
}

// checkChannel queries the oracle for one channel. Every evaluation
// asks fresh; stored verdicts are observability output, not an input.
// Operator faults (missing channel, revoked bot rights) are marked
// faulted and alerted so the owner hears about them.
func (p *Protocol) checkChannel(ctx context.Context, userID int64, channel string) channelResult {
	status, err := p.checker.QueryMembership(ctx, channel, userID)
	if err != nil {
		code := errors.CodeOf(err)
		if errors.IsOperatorFault(code) {
			p.logger.Error("gate channel is broken", map[string]interface{}{
				"channel": channel,
				"user_id": userID,
				"code":    string(code),
			})
			if p.notifier != nil {
				p.notifier.NotifyChannelFault(ctx, channel, err)
			}
			return channelResult{channel: channel, faulted: true}
		}
		return channelResult{channel: channel, err: err}
	}

	subscribed := status.Subscribed()
	if p.recorder != nil {
		p.recorder.RecordVerdict(ctx, membership.Verdict{
			UserID:     userID,
			Channel:    channel,
			Status:     status.Kind(),
			Subscribed: subscribed,
			CheckedAt:  time.Now().UTC(),
		})
	}
	return channelResult{channel: channel, subscribed: subscribed}
}

func (p *Protocol) finish(ctx context.Context, start time.Time, outcome string) {
	metrics.GateEvaluations.WithLabelValues(outcome).Inc()
	if p.obs != nil {
		p.obs.RecordEvaluation(ctx, outcome)
		p.obs.RecordEvaluationDuration(ctx, time.Since(start), outcome)
	}
}
