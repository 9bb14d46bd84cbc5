package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"carelink/internal/collab"
	"carelink/internal/model"
)

// RecordTag marks ledger events produced by the call core.
const RecordTag = "call-record"

const handoffTimeout = 30 * time.Second

// runHandoff is the best-effort durable handoff, dispatched after a
// conclusion commits. It holds no session lock while contacting the
// collaborators, is attempted at most once per session, and a failure at
// any step leaves the concluded session without durable references but
// otherwise intact.
func (s *CallService) runHandoff(_ context.Context, sess model.Session) {
	if !s.reg.BeginHandoff(sess.ID) {
		return
	}

	// Detached from the request that triggered the conclusion; the caller
	// has no cancellation over this step.
	ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
	defer cancel()

	record := model.NewFinalizedRecord(sess)
	payload, err := json.Marshal(record)
	if err != nil {
		s.markFallback(sess.ID, fmt.Errorf("failed to build finalized record: %w", err))
		return
	}

	contentRef, err := s.blobs.Put(ctx, payload, fmt.Sprintf("call-%s", sess.ID), []string{RecordTag, string(sess.Kind)})
	if err != nil {
		s.markFallback(sess.ID, fmt.Errorf("failed to store finalized record: %w", err))
		return
	}

	tags := []string{
		RecordTag,
		"kind:" + string(sess.Kind),
		collab.ContentTagPrefix + contentRef,
	}
	receipt, err := s.ledger.RecordEvent(ctx, sess.InitiatorID, sess.RespondentID, payload, tags)
	if err != nil {
		s.markFallback(sess.ID, fmt.Errorf("failed to submit ledger record: %w", err))
		return
	}

	if err := s.reg.AttachDurableRef(sess.ID, model.DurableRef{
		ContentRef:     contentRef,
		TransactionRef: receipt.TransactionRef,
		PayloadDigest:  receipt.PayloadDigest,
		TagsDigest:     receipt.TagsDigest,
		RecordedAt:     time.Now(),
	}); err != nil {
		log.Printf("handoff: session %s vanished before enrichment: %v", sess.ID, err)
		return
	}

	log.Printf("handoff: session %s anchored as tx %s", sess.ID, receipt.TransactionRef)
}

func (s *CallService) markFallback(sessionID string, err error) {
	log.Printf("handoff: session %s falling back without durable record: %v", sessionID, err)
	if markErr := s.reg.MarkHandoffFallback(sessionID); markErr != nil {
		log.Printf("handoff: could not mark fallback for session %s: %v", sessionID, markErr)
	}
}
