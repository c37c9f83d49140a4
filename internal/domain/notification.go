package domain

import "time"

// Priority controls job dequeue ordering. Lower value = higher priority.
// The integer values are part of the on-disk contract and must not change.
type Priority int

const (
	PriorityHigh    Priority = 10
	PriorityDefault Priority = 50
	PriorityLow     Priority = 100
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityDefault, PriorityLow:
		return true
	}
	return false
}

// Wire names used by the notify RPC surface.
const (
	wireHighPriority    = "HIGH_PRIORITY"
	wireDefaultPriority = "DEFAULT_PRIORITY"
	wireLowPriority     = "LOW_PRIORITY"
)

// ParsePriority maps a wire enum name to its stored integer priority.
func ParsePriority(wire string) (Priority, error) {
	switch wire {
	case wireHighPriority:
		return PriorityHigh, nil
	case wireDefaultPriority:
		return PriorityDefault, nil
	case wireLowPriority:
		return PriorityLow, nil
	}
	return 0, ErrInvalidPriority
}

func (p Priority) Wire() string {
	switch p {
	case PriorityHigh:
		return wireHighPriority
	case PriorityLow:
		return wireLowPriority
	default:
		return wireDefaultPriority
	}
}

// Notification is the parent record for one submission. It is written once
// at ingress and never mutated afterwards; jobs reference it read-only.
type Notification struct {
	ID           int64     `json:"id"`
	Token        string    `json:"token"`
	Context      string    `json:"context"`
	Priority     Priority  `json:"priority"`
	Subject      string    `json:"subject"`
	PlainText    string    `json:"plainText,omitempty"`
	HTMLText     string    `json:"htmlText,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	RecipientIDs []int64   `json:"recipientUserIds"`
}

// NotificationJob is one pending delivery of a notification to one recipient.
// Retries are represented as new rows, never as mutation of an old one, so
// retries_remaining is monotonically non-increasing along a retry chain.
type NotificationJob struct {
	ID               int64
	NotificationID   int64
	RecipientID      int64
	Priority         Priority
	CreatedAt        time.Time
	NotBefore        time.Time
	RetriesRemaining int
	Owner            *string
	StartAt          *time.Time
	EndAt            *time.Time
	Successful       *bool
}

// Claimed reports whether the job is held by a fleet instance and not yet final.
func (j *NotificationJob) Claimed() bool {
	return j.Owner != nil && j.StartAt != nil && j.EndAt == nil
}

// Terminal reports whether the job reached a final state. Terminal jobs are
// never touched again.
func (j *NotificationJob) Terminal() bool {
	return j.EndAt != nil
}

// Eligible reports whether the job may be claimed at the given instant.
func (j *NotificationJob) Eligible(now time.Time) bool {
	return j.Owner == nil && j.StartAt == nil && j.EndAt == nil && !j.NotBefore.After(now)
}

// User is the external recipient record. Referenced by id, read-only.
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// NotifyRequest is the inbound payload of the notify operation.
// NotBefore is epoch seconds UTC; zero means "now".
type NotifyRequest struct {
	Token            string  `json:"token,omitempty"`
	Priority         string  `json:"priority"`
	RecipientUserIDs []int64 `json:"recipientUserIds"`
	Subject          string  `json:"subject"`
	PlainText        string  `json:"plainText,omitempty"`
	HTMLText         string  `json:"htmlText,omitempty"`
	NotBefore        int64   `json:"notBefore,omitempty"`
}
