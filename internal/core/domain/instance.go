package domain

import (
	"time"

	"github.com/google/uuid"
)

// InstanceState is the position of a workflow instance in its control-flow
// graph.
type InstanceState string

const (
	StateStart       InstanceState = "start"
	StateClassifying InstanceState = "classifying"
	StateBranching   InstanceState = "branching"
	StateDispatching InstanceState = "dispatching"
	StateSuspended   InstanceState = "suspended"
	StateCompleted   InstanceState = "completed"
	StateSkipped     InstanceState = "skipped"
	StateAborted     InstanceState = "aborted"
)

// Terminal reports whether no further transition can leave the state.
func (s InstanceState) Terminal() bool {
	switch s {
	case StateCompleted, StateSkipped, StateAborted:
		return true
	}
	return false
}

// Abort codes recorded when the pipeline itself settles an instance, as
// opposed to a FAILED status forwarded from the extraction service.
const (
	// AbortCodeTimeout marks instances force-aborted by the suspension
	// sweeper.
	AbortCodeTimeout = "SuspensionTimeout"
	// AbortCodeClassification marks instances whose classification stage
	// failed after retries.
	AbortCodeClassification = "ClassificationFailed"
	// AbortCodeDispatch marks instances whose extraction dispatch failed
	// after the suspension handle was minted.
	AbortCodeDispatch = "DispatchFailed"
)

// Instance is one execution of the pipeline for one trigger event. Name is
// the trigger's delivery id and is unique, so a redelivered trigger resolves
// to the existing instance instead of starting a second one. Handle is the
// opaque resumption token minted at suspension time; it is what the
// completion side presents to resume or abort the instance.
type Instance struct {
	ID             string
	Name           string
	Trigger        TriggerEvent
	Classification Classification
	Feature        FeatureSet
	State          InstanceState
	Handle         string
	Result         []byte
	ErrorCode      string
	ErrorCause     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SuspendedAt    *time.Time
}

// NewInstance builds a fresh instance for a trigger event.
func NewInstance(ev TriggerEvent) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:        uuid.NewString(),
		Name:      ev.DeliveryID,
		Trigger:   ev,
		State:     StateStart,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
