package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/SouthPatron/reasonchip/pkg/packet"
)

// RunResult is the outcome of one RunPipeline call.
type RunResult struct {
	RC         packet.RC
	Result     any
	Error      string
	Stacktrace string
}

// RunPipeline opens a Session, sends RUN with a freshly minted cookie, and
// waits for the matching RESULT. The session is released on every return
// path.
func RunPipeline(ctx context.Context, mux *Multiplexor, pipelineName string, variables map[string]any) (*RunResult, error) {
	return RunPipelineWithCancel(ctx, mux, pipelineName, variables, nil)
}

// RunPipelineWithCancel is RunPipeline, but also listens on cancel: if it
// closes (or receives) before a RESULT arrives, a CANCEL is sent for the
// same cookie and RunPipelineWithCancel keeps waiting for the RESULT that
// follows. CANCEL packets initiated on user request are forwarded to the
// broker; the API does not synthesize a local cancelled result itself.
func RunPipelineWithCancel(ctx context.Context, mux *Multiplexor, pipelineName string, variables map[string]any, cancel <-chan struct{}) (*RunResult, error) {
	cookie := uuid.NewString()

	session := mux.RegisterSession()
	defer mux.ReleaseSession(session.ID())
	mux.BindCookie(cookie, session.ID())

	if err := session.Send(packet.Run(cookie, pipelineName, variables)); err != nil {
		return nil, fmt.Errorf("client: sending RUN: %w", err)
	}

	cancelSent := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-cancelChanOrNil(cancel, cancelSent):
			if err := session.Send(packet.Cancel(cookie)); err != nil {
				return nil, fmt.Errorf("client: sending CANCEL: %w", err)
			}
			cancelSent = true

		case pkt, ok := <-session.Chan():
			if !ok {
				return nil, ErrBrokerLost
			}
			if pkt.Type != packet.RESULT || pkt.Cookie != cookie {
				continue
			}
			return &RunResult{RC: pkt.RC, Result: pkt.Result, Error: pkt.Error, Stacktrace: pkt.Stacktrace}, nil
		}
	}
}

// cancelChanOrNil returns cancel unless it's already been consumed (a nil
// channel blocks forever in a select, so a spent cancel signal never fires
// twice).
func cancelChanOrNil(cancel <-chan struct{}, alreadySent bool) <-chan struct{} {
	if alreadySent {
		return nil
	}
	return cancel
}
