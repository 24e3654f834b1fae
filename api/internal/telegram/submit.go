package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"time"

	"calcium-cam/api/internal/apiclient"
	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/mealstore"
)

const submitTimeout = 90 * time.Second

// startSubmit begins a submission once all three answers are in. The
// Submitting flag blocks concurrent duplicate submissions for the chat.
func (r *Router) startSubmit(cid int64) {
	s := getSession(cid)

	s.mu.Lock()
	if s.Submitting {
		s.mu.Unlock()
		return
	}
	if s.Photo == nil || len(s.Photo.Bytes) == 0 {
		s.Stage = stageIdle
		s.mu.Unlock()
		r.send(cid, "The photo went missing — please send it again.")
		return
	}
	s.Submitting = true
	photo := s.Photo
	answers := s.Answers
	s.mu.Unlock()

	r.send(cid, "Estimating…")
	go r.runSubmit(cid, photo, answers)
}

func (r *Router) runSubmit(cid int64, photo *capture, answers estimate.Answers) {
	// Liveness first: converting and uploading the photo is the expensive
	// part, so a dead server is detected before any of that work.
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	_, err := r.API.Status(sctx)
	cancel()
	if err != nil {
		r.finishFailed(cid, err)
		return
	}

	req := &apiclient.EstimateRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(photo.Bytes),
		ImageMime:   "image/jpeg",
		Answers:     answers,
		Locale:      r.locale(),
		UIVersion:   "bot",
	}
	r.submitPrepared(cid, req)
}

// submitPrepared sends an already-built request; retries re-enter here so
// the base64 conversion is not repeated. A fresh trace id is minted per
// attempt inside the client.
func (r *Router) submitPrepared(cid int64, req *apiclient.EstimateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, traceID, err := r.API.EstimateCalcium(ctx, *req)
	if err != nil {
		s := getSession(cid)
		s.mu.Lock()
		s.Pending = req
		s.mu.Unlock()
		r.finishFailed(cid, err)
		return
	}

	s := getSession(cid)
	s.mu.Lock()
	photo := s.Photo
	answers := s.Answers
	s.Photo = nil
	s.Pending = nil
	s.Stage = stageIdle
	s.Submitting = false
	s.mu.Unlock()

	r.send(cid, formatResult(res))

	// The log is written only on success; failures never touch it.
	if r.Meals != nil && photo != nil {
		e := mealstore.Entry{
			TraceID:          traceID,
			ChatID:           cid,
			CapturedAt:       photo.TakenAt,
			CalciumMg:        res.CalciumMg,
			Confidence:       res.Confidence,
			ConfidenceLabel:  res.ConfidenceLabel,
			ExplanationShort: res.ExplanationShort,
			PortionSize:      answers.PortionSize,
			ContainsDairy:    answers.ContainsDairy,
			ContainsTofu:     answers.ContainsTofuOrSmallFishBones,
			Locale:           r.locale(),
		}
		if err := r.Meals.SaveEntry(e); err != nil {
			log.Printf("meal log save failed chat=%d trace=%s: %v", cid, traceID, err)
		}
	}
}

func (r *Router) finishFailed(cid int64, err error) {
	s := getSession(cid)
	s.mu.Lock()
	s.Submitting = false
	s.mu.Unlock()

	var ae *apiclient.Error
	if !errors.As(err, &ae) {
		ae = &apiclient.Error{Kind: apiclient.KindUnknown, Message: err.Error()}
	}
	log.Printf("submit failed chat=%d kind=%s trace=%s", cid, ae.Kind, ae.TraceID)

	if ae.Retryable() {
		r.sendWithKeyboard(cid, formatFailure(ae), retryCancelKeyboard())
		return
	}
	r.send(cid, formatFailure(ae))
	s.mu.Lock()
	s.Pending = nil
	s.Stage = stageIdle
	s.mu.Unlock()
}

func (r *Router) locale() string {
	if r.Locale != "" {
		return r.Locale
	}
	return "en"
}
