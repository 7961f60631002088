package claude

import (
	"context"
	"strings"

	"github.com/zhubert/plural-gateway/metrics"
)

// Query runs an invocation to completion and returns a single Response.
// Message is the result text, else the concatenated text deltas, else
// ParseFailedMessage. Agent failures are reported in Response.Error; the
// returned error is non-nil only when ctx was cancelled before an answer.
func (g *Gateway) Query(ctx context.Context, req Request) (Response, error) {
	sessionID, events := g.start(ctx, req, metrics.ModeSync)
	resp := Response{SessionID: sessionID}

	var text strings.Builder
	var result string
	gotResult := false
	for ev := range events {
		switch ev.Type {
		case EventText:
			text.WriteString(ev.Content)
		case EventResult:
			result = ev.Content
			gotResult = true
		case EventError:
			// A clean exit without a result still answers with whatever
			// text the agent produced.
			if ev.Content != EmptyOutputMessage {
				resp.Error = ev.Content
			}
		}
	}

	switch {
	case gotResult:
		resp.Message = result
	case resp.Error != "":
	case ctx.Err() != nil:
		return resp, ctx.Err()
	case text.Len() > 0:
		resp.Message = text.String()
	default:
		resp.Message = ParseFailedMessage
	}
	return resp, nil
}
