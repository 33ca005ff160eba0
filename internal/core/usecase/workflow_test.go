package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avolkov/docpipe/internal/core/domain"
)

type stageClassifierFake struct {
	cls   domain.Classification
	err   error
	calls int
}

func (f *stageClassifierFake) ClassifyFirstPage(context.Context, domain.TriggerEvent) (domain.Classification, error) {
	f.calls++
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

type stageDispatcherFake struct {
	jobID string
	err   error
	cmds  []domain.DispatchCommand
}

func (f *stageDispatcherFake) Dispatch(_ context.Context, cmd domain.DispatchCommand) (string, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

func newEngine(repo *instanceRepoFake, classifier *stageClassifierFake, dispatcher *stageDispatcherFake) *WorkflowEngineUseCase {
	return NewWorkflowEngineUseCase(repo, classifier, dispatcher, WorkflowConfig{
		ClassifyConcurrency: 2,
		DispatchConcurrency: 2,
		SuspendTTL:          24 * time.Hour,
	})
}

func TestHandleTriggerSuspendsOnFormsBranch(t *testing.T) {
	repo := &instanceRepoFake{handle: "tok-1"}
	classifier := &stageClassifierFake{cls: domain.Classification{Label: domain.LabelApplication, Confidence: 0.92}}
	dispatcher := &stageDispatcherFake{jobID: "job-1"}

	engine := newEngine(repo, classifier, dispatcher)
	if err := engine.HandleTrigger(context.Background(), triggerFor("forms/app1.pdf")); err != nil {
		t.Fatalf("HandleTrigger() error = %v", err)
	}

	want := []domain.InstanceState{
		domain.StateClassifying,
		domain.StateBranching,
		domain.StateDispatching,
		domain.StateSuspended,
	}
	if len(repo.states) != len(want) {
		t.Fatalf("unexpected state sequence %v", repo.states)
	}
	for i, s := range want {
		if repo.states[i] != s {
			t.Fatalf("state %d = %s, want %s", i, repo.states[i], s)
		}
	}
	if repo.cls == nil || repo.cls.Label != domain.LabelApplication {
		t.Fatalf("classification not persisted: %+v", repo.cls)
	}
	if len(dispatcher.cmds) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(dispatcher.cmds))
	}
	cmd := dispatcher.cmds[0]
	if cmd.Feature != domain.FeatureForms {
		t.Fatalf("APPLICATION should branch to FORMS, got %s", cmd.Feature)
	}
	if cmd.Handle != "tok-1" {
		t.Fatalf("dispatch should carry the minted handle, got %q", cmd.Handle)
	}
}

func TestHandleTriggerBranchTable(t *testing.T) {
	cases := []struct {
		label   domain.Label
		feature domain.FeatureSet
	}{
		{domain.LabelApplication, domain.FeatureForms},
		{domain.LabelBank, domain.FeatureTables},
		{domain.LabelPayslip, domain.FeatureTables},
		{domain.LabelUnknown, domain.FeatureText},
	}
	for _, tc := range cases {
		repo := &instanceRepoFake{}
		dispatcher := &stageDispatcherFake{jobID: "j"}
		engine := newEngine(repo, &stageClassifierFake{cls: domain.Classification{Label: tc.label, Confidence: 0.9}}, dispatcher)

		if err := engine.HandleTrigger(context.Background(), triggerFor("doc.pdf")); err != nil {
			t.Fatalf("%s: HandleTrigger() error = %v", tc.label, err)
		}
		if len(dispatcher.cmds) != 1 || dispatcher.cmds[0].Feature != tc.feature {
			t.Fatalf("%s: expected feature %s, got %+v", tc.label, tc.feature, dispatcher.cmds)
		}
	}
}

func TestHandleTriggerUnsupportedLabelSkips(t *testing.T) {
	repo := &instanceRepoFake{}
	dispatcher := &stageDispatcherFake{}
	engine := newEngine(repo, &stageClassifierFake{cls: domain.Classification{Label: domain.LabelUnsupported}}, dispatcher)

	if err := engine.HandleTrigger(context.Background(), triggerFor("weird.bin")); err != nil {
		t.Fatalf("HandleTrigger() error = %v", err)
	}
	if len(dispatcher.cmds) != 0 {
		t.Fatalf("skipped instance must not dispatch")
	}
	last := repo.states[len(repo.states)-1]
	if last != domain.StateSkipped {
		t.Fatalf("expected terminal skipped state, got %s", last)
	}
}

func TestHandleTriggerDuplicateForSuspendedInstanceIsNoop(t *testing.T) {
	repo := &instanceRepoFake{
		createDup: true,
		existing:  &domain.Instance{ID: "i-1", Name: "d-1", State: domain.StateSuspended},
	}
	classifier := &stageClassifierFake{cls: domain.Classification{Label: domain.LabelUnknown}}
	dispatcher := &stageDispatcherFake{}

	engine := newEngine(repo, classifier, dispatcher)
	if err := engine.HandleTrigger(context.Background(), triggerFor("a.pdf")); err != nil {
		t.Fatalf("HandleTrigger() error = %v", err)
	}
	if classifier.calls != 0 || len(dispatcher.cmds) != 0 {
		t.Fatalf("duplicate trigger must not rerun stages")
	}
}

func TestHandleTriggerRedeliveryRerunsUnfinishedInstance(t *testing.T) {
	repo := &instanceRepoFake{
		createDup: true,
		existing:  &domain.Instance{ID: "i-1", Name: "d-1", State: domain.StateClassifying},
	}
	classifier := &stageClassifierFake{cls: domain.Classification{Label: domain.LabelUnknown, Confidence: 0.3}}
	dispatcher := &stageDispatcherFake{jobID: "j"}

	engine := newEngine(repo, classifier, dispatcher)
	if err := engine.HandleTrigger(context.Background(), triggerFor("a.pdf")); err != nil {
		t.Fatalf("HandleTrigger() error = %v", err)
	}
	if classifier.calls != 1 {
		t.Fatalf("unfinished instance should rerun classification")
	}
	if len(dispatcher.cmds) != 1 {
		t.Fatalf("unfinished instance should reach dispatch")
	}
}

func TestHandleTriggerClassificationFailureAbortsInstance(t *testing.T) {
	repo := &instanceRepoFake{}
	dispatcher := &stageDispatcherFake{}
	engine := newEngine(repo, &stageClassifierFake{err: errors.New("ocr down")}, dispatcher)

	if err := engine.HandleTrigger(context.Background(), triggerFor("a.pdf")); err == nil {
		t.Fatalf("stage failure should propagate for transport retry")
	}
	if len(dispatcher.cmds) != 0 {
		t.Fatalf("failed classification must not dispatch")
	}
	if len(repo.failCalls) != 1 {
		t.Fatalf("stage failure must settle the instance, got %+v", repo.failCalls)
	}
	call := repo.failCalls[0]
	if call.code != domain.AbortCodeClassification || call.result != "ocr down" {
		t.Fatalf("unexpected failure record %+v", call)
	}
	if last := repo.states[len(repo.states)-1]; last != domain.StateAborted {
		t.Fatalf("expected terminal aborted state, got %s", last)
	}
}

func TestHandleTriggerDispatchFailureAbortsSuspendedInstance(t *testing.T) {
	repo := &instanceRepoFake{handle: "tok-1"}
	engine := newEngine(repo,
		&stageClassifierFake{cls: domain.Classification{Label: domain.LabelUnknown}},
		&stageDispatcherFake{err: errors.New("throttled")},
	)

	if err := engine.HandleTrigger(context.Background(), triggerFor("a.pdf")); err == nil {
		t.Fatalf("dispatch failure should propagate for transport retry")
	}
	if len(repo.settleCalls) != 1 {
		t.Fatalf("dispatch failure must settle the suspended instance, got %+v", repo.settleCalls)
	}
	call := repo.settleCalls[0]
	if call.op != "abort" || call.handle != "tok-1" {
		t.Fatalf("expected abort through the minted handle, got %+v", call)
	}
	if call.code != domain.AbortCodeDispatch || call.result != "throttled" {
		t.Fatalf("unexpected abort record %+v", call)
	}
}

func TestSweepTimeoutsUsesConfiguredCeiling(t *testing.T) {
	repo := &instanceRepoFake{sweepCount: 3}
	engine := NewWorkflowEngineUseCase(repo,
		&stageClassifierFake{}, &stageDispatcherFake{},
		WorkflowConfig{SuspendTTL: time.Hour},
	)

	before := time.Now().UTC().Add(-time.Hour)
	n, err := engine.SweepTimeouts(context.Background())
	if err != nil {
		t.Fatalf("SweepTimeouts() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 settled instances, got %d", n)
	}
	if len(repo.sweepCutoffs) != 1 {
		t.Fatalf("expected one sweep call")
	}
	cutoff := repo.sweepCutoffs[0]
	if cutoff.Before(before.Add(-time.Minute)) || cutoff.After(time.Now().UTC().Add(-time.Hour).Add(time.Minute)) {
		t.Fatalf("cutoff %v not within expected window", cutoff)
	}
}
