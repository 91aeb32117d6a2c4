// Package services implements the bot engine use-cases: message processing,
// conversation history, feedback, learning, and the expert-question
// lifecycle. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes belongs at the
// handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when a request carries no message text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the configured
	// maximum length limit.
	ErrTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates that the referenced chat message does
	// not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotUserTurn is returned when feedback targets a bot-authored turn;
	// only user turns carry intent, confidence, and feedback.
	ErrNotUserTurn = errors.New("feedback allowed on user turns only")

	// ErrQuestionNotFound indicates that the referenced expert question
	// does not exist.
	ErrQuestionNotFound = errors.New("expert question not found")

	// ErrEmptyAnswer is returned when an expert submits a blank answer.
	ErrEmptyAnswer = errors.New("answer is empty")
)
