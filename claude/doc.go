// Package claude runs the Claude Code CLI as a one-shot agent process per
// request and turns its stream-json output into a small event vocabulary.
//
// # Overview
//
// An invocation flows through five pieces:
//
//   - PromptBuilder renders the message, prior turns and repository hint
//     into the positional prompt, plus the fixed system preamble.
//   - ProcessManager spawns the CLI in its own process group with the
//     credential in its environment and stdin closed.
//   - LineFramer splits the arbitrarily chunked stdout into lines.
//   - Classify maps each line to zero or more Events.
//   - Gateway.Stream relays those events in order; Gateway.Query collects
//     them into a single Response.
//
// # Streaming
//
//	sessionID, events := gw.Stream(ctx, claude.Request{Message: "How do I deploy?"})
//	for ev := range events {
//	    fmt.Println(ev.Type, ev.Content)
//	}
//
// The channel is closed when the invocation is over. Unless the caller
// cancelled ctx, the last event is exactly one of EventResult or EventError.
// Cancelling ctx kills the agent's process group; the channel is then closed
// without an error event.
//
// # Process lifetime
//
// Every spawned process is reaped before its event channel closes, whatever
// the outcome. There is no internal timeout: a caller that wants one sets a
// deadline on ctx.
package claude
