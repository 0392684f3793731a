package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/domain/pii"
	"github.com/PhillHH/chat-agent/internal/domain/service"
	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// TurnStatus is the outcome of one user turn, surfaced on the done frame
// and usable by non-streaming callers.
type TurnStatus string

const (
	StatusSuccess          TurnStatus = "SUCCESS"
	StatusEscalationNeeded TurnStatus = "ESCALATION_NEEDED"
	StatusHumanMode        TurnStatus = "HUMAN_MODE"
	StatusStreamFailed     TurnStatus = "STREAM_FAILED"
)

// Fixed user-facing lines. The frontend renders these verbatim.
const (
	humanModeMessage = "Ein menschlicher Mitarbeiter hat die Konversation übernommen. Bitte warten Sie auf eine Antwort."

	escalationMessage = "Ich konnte Ihnen nicht abschließend helfen. Ein Mitarbeiter wird in Kürze übernehmen."

	streamInterruptedNotice = "Die Verbindung zum KI-Dienst wurde unterbrochen. Bitte versuchen Sie es erneut."
)

// Sink receives the outbound side of one turn. Fragment carries restored
// response text in stream order; System carries out-of-band notices. The
// websocket transport maps them to chunk and system frames, the HTTP
// transport writes both into the response body.
type Sink interface {
	Fragment(text string) error
	System(text string) error
}

// HandleChatUseCase runs one user message through de-identification, the
// assistant stream, re-identification and the escalation state machine.
type HandleChatUseCase struct {
	scanner     *pii.Scanner
	vault       pii.Vault
	state       service.SessionState
	assistant   service.Assistant
	recorder    service.AuditRecorder
	bridge      service.OperatorBridge
	notifier    service.EscalationNotifier
	turnTimeout time.Duration
	logger      *zap.Logger

	// one turn at a time per session
	locks sync.Map
}

// NewHandleChatUseCase wires the chat pipeline.
func NewHandleChatUseCase(
	scanner *pii.Scanner,
	vault pii.Vault,
	state service.SessionState,
	assistant service.Assistant,
	recorder service.AuditRecorder,
	bridge service.OperatorBridge,
	notifier service.EscalationNotifier,
	turnTimeout time.Duration,
	logger *zap.Logger,
) *HandleChatUseCase {
	return &HandleChatUseCase{
		scanner:     scanner,
		vault:       vault,
		state:       state,
		assistant:   assistant,
		recorder:    recorder,
		bridge:      bridge,
		notifier:    notifier,
		turnTimeout: turnTimeout,
		logger:      logger,
	}
}

// Execute processes one user turn. Errors returned here are the ones the
// transport must surface as a request failure (invalid input, vault outage,
// filter crash, dead sink); everything else is absorbed per policy.
func (uc *HandleChatUseCase) Execute(ctx context.Context, sessionID, message string, sink Sink) (TurnStatus, error) {
	if sessionID == "" {
		return "", domainErrors.NewInvalidInputError("session_id is required")
	}
	if strings.TrimSpace(message) == "" {
		return "", domainErrors.NewInvalidInputError("message is required")
	}

	lock := uc.turnLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if uc.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.turnTimeout)
		defer cancel()
	}

	// 1. Audit the user line before anything can answer.
	uc.recorder.RecordUser(sessionID, message)

	// 2. Mirror to a bound operator.
	uc.mirrorToOperator(ctx, sessionID, "[USER] "+message)

	// 3. Mode check; a vault outage here fails the turn.
	mode, err := uc.state.Mode(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if mode == entity.ModeHuman {
		if !uc.bridge.Bound(sessionID) {
			// Escalated but nobody connected yet; ring the webhook again.
			uc.renotify(ctx, sessionID)
		}
		if err := sink.Fragment(humanModeMessage); err != nil {
			return "", err
		}
		return StatusHumanMode, nil
	}

	// 4. De-identify. StoreUnavailable and FilterFailed both abort; raw
	// text must never travel further on a broken filter.
	anonymized, err := uc.scanner.Clean(ctx, message)
	if err != nil {
		return "", err
	}

	// 5. Stream the assistant answer through the tee.
	outcome, sinkErr := uc.streamTurn(ctx, sessionID, anonymized, sink)

	// 6. Persist what the user actually saw; mirror it.
	if outcome.restored != "" {
		uc.recorder.RecordAssistant(sessionID, outcome.restored)
		uc.mirrorToOperator(ctx, sessionID, "[BOT] "+outcome.restored)
	}

	if sinkErr != nil {
		// The user transport died mid-stream. The handoff can still
		// happen, but nothing further can be delivered.
		if outcome.escalated && outcome.llmErr == nil {
			uc.escalate(ctx, sessionID, anonymized)
		}
		return "", sinkErr
	}

	if outcome.llmErr != nil {
		// Absorbed per policy: prefix delivered, partial persisted,
		// no escalation on a broken stream.
		uc.logger.Error("Assistant stream failed",
			zap.String("session_id", sessionID),
			zap.Error(outcome.llmErr),
		)
		if err := sink.System(streamInterruptedNotice); err != nil {
			return "", err
		}
		return StatusStreamFailed, nil
	}

	// 7. Escalation side-effects run only after the stream ended, so the
	// user sees all content before the handoff notice.
	if outcome.escalated {
		uc.escalate(ctx, sessionID, anonymized)
		if err := sink.Fragment(escalationMessage); err != nil {
			return "", err
		}
		return StatusEscalationNeeded, nil
	}

	return StatusSuccess, nil
}

type streamOutcome struct {
	restored  string
	escalated bool
	llmErr    error // broken model stream, absorbed by the caller's policy
}

// streamTurn fans the raw delta stream out to the restorer path (sentinel
// strip, placeholder restore, user sink) and the escalation watcher, and
// reassembles the full restored text for the audit row. The returned error
// is a sink failure; a model-side failure travels in the outcome.
func (uc *HandleChatUseCase) streamTurn(ctx context.Context, sessionID, prompt string, sink Sink) (streamOutcome, error) {
	deltas := make(chan string, 128)
	restoreIn := make(chan string, 128)
	watchIn := make(chan string, 128)

	restorer := pii.NewStreamRestorer(func(placeholder string) string {
		return uc.vault.Resolve(ctx, placeholder)
	})
	filter := &pii.SentinelFilter{}
	watcher := &pii.SentinelDetector{}

	var restoredAll strings.Builder
	var llmErr error

	g, gctx := errgroup.WithContext(ctx)

	// Provider owns the send side; this side owns channel lifetime.
	g.Go(func() error {
		llmErr = uc.assistant.Stream(gctx, sessionID, prompt, deltas)
		close(deltas)
		return nil
	})

	g.Go(func() error {
		service.Tee(gctx, deltas, restoreIn, watchIn)
		return nil
	})

	// Restorer path: strip the sentinel, restore placeholders, emit. Only
	// delivered text counts as restored; the audit row reflects what the
	// user actually saw.
	emit := func(text string) error {
		if err := sink.Fragment(text); err != nil {
			return err
		}
		restoredAll.WriteString(text)
		return nil
	}
	g.Go(func() error {
		for fragment := range restoreIn {
			visible := filter.Feed(fragment)
			if visible == "" {
				continue
			}
			for _, out := range restorer.Feed(visible) {
				if err := emit(out); err != nil {
					return err
				}
			}
		}
		// End of stream: release the filter holdback, then the restorer
		// residue.
		if tail := filter.Flush(); tail != "" {
			for _, out := range restorer.Feed(tail) {
				if err := emit(out); err != nil {
					return err
				}
			}
		}
		if residue := restorer.Flush(); residue != "" {
			if err := emit(residue); err != nil {
				return err
			}
		}
		return nil
	})

	// Watcher path: raw accumulation, boundary-safe.
	g.Go(func() error {
		for fragment := range watchIn {
			watcher.Feed(fragment)
		}
		return nil
	})

	sinkErr := g.Wait()

	return streamOutcome{
		restored:  restoredAll.String(),
		escalated: watcher.Spotted(),
		llmErr:    llmErr,
	}, sinkErr
}

// escalate flips the session to HUMAN and alerts the operator channel with
// the anonymized transcript. Failures here are logged; the user-side flow
// continues regardless.
func (uc *HandleChatUseCase) escalate(ctx context.Context, sessionID, anonymized string) {
	history := uc.assistant.History(ctx, sessionID)
	if len(history) == 0 {
		history = []string{"Kundenfrage (anonymisiert): " + anonymized}
	}

	if err := uc.notifier.NotifyEscalation(ctx, sessionID, history); err != nil {
		uc.logger.Error("Escalation notification failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	if err := uc.state.SetMode(ctx, sessionID, entity.ModeHuman); err != nil {
		uc.logger.Error("Failed to set HUMAN mode",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	uc.logger.Info("Session escalated to human",
		zap.String("session_id", sessionID),
	)
}

// renotify re-sends the escalation alert for a session stuck in HUMAN mode
// without a bound operator.
func (uc *HandleChatUseCase) renotify(ctx context.Context, sessionID string) {
	history := uc.assistant.History(ctx, sessionID)
	if err := uc.notifier.NotifyEscalation(ctx, sessionID, history); err != nil {
		uc.logger.Warn("Escalation re-notification failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (uc *HandleChatUseCase) mirrorToOperator(ctx context.Context, sessionID, text string) {
	if !uc.bridge.Bound(sessionID) {
		return
	}
	if err := uc.bridge.Forward(ctx, sessionID, text); err != nil {
		uc.logger.Warn("Operator mirror failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (uc *HandleChatUseCase) turnLock(sessionID string) *sync.Mutex {
	v, _ := uc.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}
