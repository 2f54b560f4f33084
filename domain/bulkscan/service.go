package bulkscan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opennotes-ai/opennotes-server/domain/similarity"
	"github.com/opennotes-ai/opennotes-server/pkg/apperror"
	"github.com/opennotes-ai/opennotes-server/pkg/eventbus"
	"github.com/opennotes-ai/opennotes-server/pkg/logger"
)

// similarityTopK bounds the fact-check similarity lookup run against each message.
const similarityTopK = 1

// similarityConfidenceThreshold is the maximum cosine distance still treated as "this
// message looks like something already fact-checked" (lower distance = more similar).
const similarityConfidenceThreshold = 0.15

// consumerGroup is the durable consumer group name this service joins on the
// BULK_SCAN_MESSAGE_BATCH stream.
const consumerGroup = "bulkscan-processor"

// Service drives the bulk-scan lifecycle: Initiate records scan parameters and publishes
// BULK_SCAN_INITIATED; ProcessBatch (subscribed to BULK_SCAN_MESSAGE_BATCH) runs
// moderation, flashpoint detection, and fact-check similarity per message, publishing
// BULK_SCAN_PROGRESS per batch when debug mode is on and BULK_SCAN_COMPLETED /
// BULK_SCAN_RESULTS on the final batch.
type Service struct {
	repo       *Repository
	bus        *eventbus.Bus
	similarity *similarity.Service
	moderator  Moderator
	flashpoint *FlashpointService
	log        *slog.Logger
}

// NewService builds a Service. It does not subscribe to the message-batch stream itself
// — call Subscribe once at startup (see module.go) once an fx.Lifecycle is available.
func NewService(repo *Repository, bus *eventbus.Bus, simSvc *similarity.Service, moderator Moderator, flashpoint *FlashpointService, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		bus:        bus,
		similarity: simSvc,
		moderator:  moderator,
		flashpoint: flashpoint,
		log:        log.With(logger.Scope("bulkscan")),
	}
}

// Initiate records a new scan and publishes BULK_SCAN_INITIATED.
func (s *Service) Initiate(ctx context.Context, communityServerID uuid.UUID, channelIDs []string, windowDays int, vibecheckDebugMode bool) (*Scan, error) {
	scan, err := s.repo.Create(ctx, communityServerID, channelIDs, windowDays, vibecheckDebugMode)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ScanInitiatedPayload{
		ScanID:            scan.ID,
		CommunityServerID: communityServerID,
		ChannelIDs:        channelIDs,
		WindowDays:        windowDays,
	})
	if err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("marshal scan initiated payload: %w", err))
	}

	correlation := map[string]string{"scan_id": scan.ID.String(), "community_server_id": communityServerID.String()}
	if _, err := s.bus.Publish(ctx, eventbus.EventBulkScanInitiated, correlation, payload); err != nil {
		return nil, apperror.ErrInternal.WithInternal(fmt.Errorf("publish scan initiated: %w", err))
	}

	return scan, nil
}

// Subscribe joins the durable consumer group on the message-batch stream. Intended to be
// called once at startup (see module.go).
func (s *Service) Subscribe(ctx context.Context, consumerName string) error {
	return s.bus.Subscribe(ctx, eventbus.EventBulkScanMessageBatch, eventbus.ConsumerOptions{
		ConsumerGroup: consumerGroup,
		ConsumerName:  consumerName,
	}, s.handleMessageBatch)
}

func (s *Service) handleMessageBatch(ctx context.Context, ev eventbus.Event) error {
	var batch MessageBatchPayload
	if err := json.Unmarshal(ev.Payload, &batch); err != nil {
		return fmt.Errorf("unmarshal message batch payload: %w", err)
	}

	scan, err := s.repo.GetByID(ctx, batch.ScanID)
	if err != nil {
		return err
	}

	flagged, scores := s.processBatch(ctx, scan, batch.Messages)

	if err := s.repo.RecordBatch(ctx, scan.ID, batch.BatchNumber, len(batch.Messages)); err != nil {
		return err
	}

	if scan.VibecheckDebugMode {
		if err := s.publishProgress(ctx, scan.ID, batch.BatchNumber, scores); err != nil {
			return err
		}
	}

	if batch.IsFinalBatch {
		return s.completeScan(ctx, scan, flagged)
	}

	return nil
}

// processBatch runs moderation, flashpoint detection (with a sliding conversational
// context built from the batch itself), and fact-check similarity for each message,
// returning the accumulated flagged messages and the per-message score summary used for
// debug-mode progress events.
func (s *Service) processBatch(ctx context.Context, scan *Scan, messages []BulkScanMessage) ([]FlaggedMessage, []MessageScore) {
	var flagged []FlaggedMessage
	scores := make([]MessageScore, 0, len(messages))

	for i, msg := range messages {
		var flag FlaggedMessage
		flag.Message = msg
		isFlagged := false

		if s.moderator != nil {
			modFlagged, reason, err := s.moderator.Moderate(ctx, msg.Content)
			if err != nil {
				s.log.Warn("moderation check failed", logger.Error(err), slog.String("message_id", msg.MessageID))
			} else if modFlagged {
				flag.ModerationFlagged = true
				flag.ModerationReason = reason
				isFlagged = true
			}
		}

		var fpConfidence float64
		if s.flashpoint != nil {
			priorMessages := messages[:i]
			match, err := s.flashpoint.Detect(ctx, msg, priorMessages)
			if err != nil {
				s.log.Error("flashpoint detection failed", logger.Error(err), slog.String("message_id", msg.MessageID))
			} else if match != nil {
				flag.Flashpoint = match
				fpConfidence = match.Confidence
				isFlagged = true
			}
		}

		similarFound := false
		if s.similarity != nil {
			neighbors, err := s.similarity.FindPreviouslySeen(ctx, msg.Content, scan.CommunityServerID, similarityTopK)
			if err != nil {
				s.log.Warn("similarity lookup failed", logger.Error(err), slog.String("message_id", msg.MessageID))
			} else if len(neighbors) > 0 && neighbors[0].Distance <= similarityConfidenceThreshold {
				msgID := neighbors[0].Message.ID
				flag.SimilarMessageID = &msgID
				flag.SimilarNoteID = neighbors[0].Message.PublishedNoteID
				similarFound = true
				isFlagged = true
			}
		}

		scores = append(scores, MessageScore{
			MessageID:            msg.MessageID,
			ModerationFlagged:    flag.ModerationFlagged,
			FlashpointConfidence: fpConfidence,
			SimilarNoteFound:     similarFound,
		})

		if isFlagged {
			flagged = append(flagged, flag)
		}
	}

	return flagged, scores
}

func (s *Service) publishProgress(ctx context.Context, scanID uuid.UUID, batchNumber int, scores []MessageScore) error {
	payload, err := json.Marshal(ProgressPayload{ScanID: scanID, BatchNumber: batchNumber, Scores: scores})
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("marshal progress payload: %w", err))
	}
	correlation := map[string]string{"scan_id": scanID.String()}
	if _, err := s.bus.Publish(ctx, eventbus.EventBulkScanProgress, correlation, payload); err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("publish scan progress: %w", err))
	}
	return nil
}

func (s *Service) completeScan(ctx context.Context, scan *Scan, flagged []FlaggedMessage) error {
	if err := s.repo.Complete(ctx, scan.ID); err != nil {
		return err
	}

	updated, err := s.repo.GetByID(ctx, scan.ID)
	if err != nil {
		return err
	}

	completedPayload, err := json.Marshal(CompletedPayload{ScanID: scan.ID, MessagesScanned: updated.MessagesScanned})
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("marshal scan completed payload: %w", err))
	}
	resultsPayload, err := json.Marshal(ResultsPayload{ScanID: scan.ID, FlaggedMessages: flagged})
	if err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("marshal scan results payload: %w", err))
	}

	correlation := map[string]string{"scan_id": scan.ID.String()}
	if _, err := s.bus.Publish(ctx, eventbus.EventBulkScanCompleted, correlation, completedPayload); err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("publish scan completed: %w", err))
	}
	if _, err := s.bus.Publish(ctx, eventbus.EventBulkScanResults, correlation, resultsPayload); err != nil {
		return apperror.ErrInternal.WithInternal(fmt.Errorf("publish scan results: %w", err))
	}
	return nil
}
