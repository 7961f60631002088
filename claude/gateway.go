package claude

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/metrics"
)

// Request is one agent invocation as received from a client.
type Request struct {
	Message       string
	SessionID     string // generated when empty
	History       []HistoryMessage
	RepositoryURL string
	Credential    string // handed to the agent via its environment only
}

// Response is the blocking-mode answer.
type Response struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
}

// NewSessionID returns a fresh correlation id.
func NewSessionID() string {
	return "session-" + uuid.NewString()
}

// Gateway runs agent invocations. Invocations share nothing but the metrics
// collectors, so a Gateway is safe for concurrent use.
type Gateway struct {
	builder PromptBuilder
	pm      *ProcessManager
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewGateway creates a Gateway. m may be nil.
func NewGateway(builder PromptBuilder, pm *ProcessManager, m *metrics.Metrics) *Gateway {
	return &Gateway{
		builder: builder,
		pm:      pm,
		metrics: m,
		log:     logger.WithComponent("gateway"),
	}
}
