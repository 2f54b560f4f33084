package bulkscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// Flashpoint detection confidence levels. The underlying LLM prompt only ever reports a
// binary derail/no-derail signal; confidence is pinned to one of these two constants
// rather than a continuous score.
const (
	ConfidenceDerail   = 0.9
	ConfidenceNoDerail = 0.2
)

// DefaultMaxContextMessages bounds how many prior messages are included as
// conversational context for flashpoint detection.
const DefaultMaxContextMessages = 5

// FlashpointMatch is returned when a message shows early signs a conversation may
// derail into conflict.
type FlashpointMatch struct {
	WillDerail      bool    `json:"will_derail"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	ContextMessages int     `json:"context_messages"`
}

// detectionResult is the shape the LLM prompt returns, before will_derail/confidence are
// mapped onto FlashpointMatch.
type detectionResult struct {
	WillDerail bool   `json:"will_derail"`
	Reasoning  string `json:"reasoning"`
}

// PromptRunner issues the flashpoint-detection prompt against an LLM and returns its raw
// JSON response. Swapped for a fake in tests; the production implementation wraps
// google.golang.org/genai.
type PromptRunner interface {
	RunPrompt(ctx context.Context, systemPrompt, contextStr, currentMessage string) (string, error)
}

// transientError reports whether err should be swallowed (returning "no flashpoint")
// rather than propagated, per the bulk-scan component's error-handling contract:
// transient failures (timeouts, connection resets) never abort a scan; anything else is
// treated as critical and re-raised.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection", "deadline", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Detector runs flashpoint detection for one conversational context. It loads an
// offline-optimized prompt artifact if present, falling back to a base system prompt
// otherwise — the artifact itself is treated as an opaque blob the PromptRunner consumes,
// not something this package parses.
type Detector struct {
	runner       PromptRunner
	systemPrompt string
	log          *slog.Logger
}

func newDetector(runner PromptRunner, artifactPath string, log *slog.Logger) *Detector {
	systemPrompt := baseFlashpointPrompt
	if artifactPath != "" {
		if _, err := os.Stat(artifactPath); err == nil {
			if data, err := os.ReadFile(artifactPath); err == nil {
				log.Info("loading optimized flashpoint prompt artifact", slog.String("path", artifactPath))
				systemPrompt = string(data)
			} else {
				log.Warn("failed to read optimized flashpoint artifact, using base prompt",
					slog.String("path", artifactPath), logger.Error(err))
			}
		} else {
			log.Info("optimized flashpoint artifact not found, using base prompt",
				slog.String("expected_path", artifactPath))
		}
	}
	return &Detector{runner: runner, systemPrompt: systemPrompt, log: log}
}

// baseFlashpointPrompt is used whenever no optimized artifact is configured or found.
const baseFlashpointPrompt = `You are monitoring a community discussion for early signs that it may derail into
conflict (a "flashpoint"). Given recent conversational context and the current message,
decide whether the current message shows warning signs of derailment. Respond as JSON:
{"will_derail": bool, "reasoning": string}.`

// Detect analyzes message against contextMessages (time-ordered, most recent last),
// truncated to the last maxContext entries. Transient errors are swallowed and reported
// as "no flashpoint" (nil, nil); critical errors are returned to the caller.
func (d *Detector) Detect(ctx context.Context, message BulkScanMessage, contextMessages []BulkScanMessage, maxContext int) (*FlashpointMatch, error) {
	if maxContext <= 0 {
		maxContext = DefaultMaxContextMessages
	}

	recent := contextMessages
	if len(recent) > maxContext {
		recent = recent[len(recent)-maxContext:]
	}

	var lines []string
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", m.speaker(), m.Content))
	}
	contextStr := strings.Join(lines, "\n")
	currentMsg := fmt.Sprintf("%s: %s", message.speaker(), message.Content)

	raw, err := d.runner.RunPrompt(ctx, d.systemPrompt, contextStr, currentMsg)
	if err != nil {
		if transientError(err) {
			d.log.Warn("flashpoint detection failed (transient)",
				logger.Error(err), slog.String("message_id", message.MessageID))
			return nil, nil
		}
		d.log.Error("flashpoint detection failed (critical)",
			logger.Error(err), slog.String("message_id", message.MessageID))
		return nil, err
	}

	var result detectionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		d.log.Warn("flashpoint detection returned malformed JSON (transient)",
			logger.Error(err), slog.String("message_id", message.MessageID))
		return nil, nil
	}

	if !result.WillDerail {
		return nil, nil
	}

	return &FlashpointMatch{
		WillDerail:      true,
		Confidence:      ConfidenceDerail,
		Reasoning:       result.Reasoning,
		ContextMessages: len(recent),
	}, nil
}

// FlashpointService is a process-wide singleton wrapping the lazily-initialized Detector. Detector
// construction loads the (possibly large) prompt artifact from disk, so it is deferred
// until first use and guarded by double-checked locking rather than done eagerly at
// startup or unconditionally on every call.
type FlashpointService struct {
	newRunner    func() (PromptRunner, error)
	artifactPath string
	log          *slog.Logger

	initMu   sync.Mutex
	detector atomic.Pointer[Detector]
}

// NewFlashpointService builds a FlashpointService. newRunner is invoked at most once,
// on first Detect call, to construct the PromptRunner.
func NewFlashpointService(newRunner func() (PromptRunner, error), artifactPath string, log *slog.Logger) *FlashpointService {
	return &FlashpointService{
		newRunner:    newRunner,
		artifactPath: artifactPath,
		log:          log.With(logger.Scope("bulkscan.flashpoint")),
	}
}

// getDetector returns the cached Detector, building it on first call under double-checked
// locking: the fast path (detector already set) never takes initMu.
func (s *FlashpointService) getDetector() (*Detector, error) {
	if d := s.loadDetector(); d != nil {
		return d, nil
	}

	s.initMu.Lock()
	defer s.initMu.Unlock()

	if d := s.detector.Load(); d != nil {
		return d, nil
	}

	runner, err := s.newRunner()
	if err != nil {
		return nil, fmt.Errorf("build flashpoint prompt runner: %w", err)
	}
	d := newDetector(runner, s.artifactPath, s.log)
	s.detector.Store(d)
	return d, nil
}

func (s *FlashpointService) loadDetector() *Detector {
	return s.detector.Load()
}

// Detect lazily initializes the underlying Detector and delegates to it.
func (s *FlashpointService) Detect(ctx context.Context, message BulkScanMessage, contextMessages []BulkScanMessage) (*FlashpointMatch, error) {
	detector, err := s.getDetector()
	if err != nil {
		return nil, err
	}
	return detector.Detect(ctx, message, contextMessages, DefaultMaxContextMessages)
}
