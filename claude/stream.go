package claude

import (
	"context"
	"fmt"
	"time"

	"github.com/zhubert/plural-gateway/metrics"
)

// Stream starts an invocation and returns its session id and event channel.
// Events arrive in the order the agent produced them. The channel is closed
// once the agent process has been reaped.
//
// The caller must either drain the channel or cancel ctx. On cancellation
// the agent is killed and the channel closes without an error event.
func (g *Gateway) Stream(ctx context.Context, req Request) (string, <-chan Event) {
	return g.start(ctx, req, metrics.ModeStream)
}

func (g *Gateway) start(ctx context.Context, req Request, mode string) (string, <-chan Event) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	out := make(chan Event)
	go g.relay(ctx, sessionID, req, mode, out)
	return sessionID, out
}

// relay owns out and is the only goroutine that sends on or closes it.
func (g *Gateway) relay(ctx context.Context, sessionID string, req Request, mode string, out chan<- Event) {
	defer close(out)

	log := g.log.With("sessionID", sessionID, "mode", mode)
	started := time.Now()
	outcome := metrics.OutcomeCancelled
	defer func() {
		g.metrics.ObserveInvocation(mode, outcome, time.Since(started))
		log.Info("invocation finished", "outcome", outcome, "elapsed", time.Since(started))
	}()

	emit := func(ev Event) bool {
		ev.SessionID = sessionID
		select {
		case out <- ev:
			g.metrics.IncEvent(string(ev.Type))
			return true
		case <-ctx.Done():
			return false
		}
	}

	if ctx.Err() != nil {
		return
	}

	prompt := g.builder.Build(req.Message, req.History, req.RepositoryURL)
	proc, err := g.pm.Start(ctx, prompt, req.Credential)
	if err != nil {
		log.Error("failed to start agent", "error", err)
		outcome = metrics.OutcomeSpawnFailed
		emit(Event{Type: EventError, Content: SpawnFailedMessage})
		return
	}
	g.metrics.ProcessStarted()
	defer g.metrics.ProcessExited()
	log.Info("agent started", "pid", proc.PID(), "historyLen", len(req.History))

	sawResult := false
	stopped := false
	for line := range proc.Lines() {
		// Drain to EOF once the answer is in or the caller is gone.
		if sawResult || stopped {
			continue
		}
		events, err := classify(line)
		if err != nil {
			log.Debug("skipping unparseable line", "error", err, "bytes", len(line))
			continue
		}
		for _, ev := range events {
			if !emit(ev) {
				stopped = true
				proc.Terminate()
				break
			}
			if ev.Type == EventResult {
				sawResult = true
				break
			}
		}
	}

	<-proc.Done()
	status := proc.Exit()

	switch {
	case sawResult:
		outcome = metrics.OutcomeResult
		if !status.Success() {
			log.Debug("agent exited abnormally after result", "status", status.String())
		}
		return
	case stopped || ctx.Err() != nil:
		return
	}

	outcome = metrics.OutcomeError
	var msg string
	switch {
	case status.Signaled:
		msg = fmt.Sprintf("agent was terminated by signal %s", status.Signal)
	case status.Code != 0:
		msg = proc.Stderr()
		if msg == "" {
			msg = fmt.Sprintf("agent exited with code %d", status.Code)
		}
	default:
		msg = EmptyOutputMessage
	}
	log.Warn("agent finished without result", "status", status.String())
	emit(Event{Type: EventError, Content: msg})
}
