package domain

import "testing"

func TestTokenPathIsStableAcrossSides(t *testing.T) {
	keys := []string{
		"forms/app1.pdf",
		"a b.pdf",
		"nested/deep/file.jpeg",
	}
	for _, key := range keys {
		dispatchSide := TokenPath(key)
		completionSide := TokenPath(key)
		if dispatchSide != completionSide {
			t.Fatalf("path mismatch for %q: %q vs %q", key, dispatchSide, completionSide)
		}
	}
	if got := TokenPath("forms/app1.pdf"); got != "_tasks/forms/app1.pdf.token" {
		t.Fatalf("unexpected token path %q", got)
	}
}

func TestDecodeEventKeyTreatsPlusAsSpace(t *testing.T) {
	if got := DecodeEventKey("my+scan+1.pdf"); got != "my scan 1.pdf" {
		t.Fatalf("DecodeEventKey() = %q", got)
	}
	// both sides must derive the same path from an event-encoded key
	if TokenPath(DecodeEventKey("a+b.pdf")) != TokenPath("a b.pdf") {
		t.Fatalf("encoded and plain keys must map to one path")
	}
}

func TestFileExtension(t *testing.T) {
	cases := map[string]string{
		"a.PDF":       "pdf",
		"dir/b.jpeg":  "jpeg",
		"noext":       "",
		".hidden":     "",
		"trailing.":   "",
		"x.tar.gz":    "gz",
		"scan 01.png": "png",
	}
	for name, want := range cases {
		if got := FileExtension(name); got != want {
			t.Fatalf("FileExtension(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestSupportedFile(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.PNG", "c.jpg", "d.JPEG"} {
		if !SupportedFile(name) {
			t.Fatalf("expected %q to be supported", name)
		}
	}
	for _, name := range []string{"a.txt", "b.docx", "c", "d.pdf.bak"} {
		if SupportedFile(name) {
			t.Fatalf("expected %q to be unsupported", name)
		}
	}
}

func TestFeatureForLabel(t *testing.T) {
	cases := []struct {
		label   Label
		feature FeatureSet
		ok      bool
	}{
		{LabelApplication, FeatureForms, true},
		{LabelBank, FeatureTables, true},
		{LabelPayslip, FeatureTables, true},
		{LabelUnknown, FeatureText, true},
		{LabelUnsupported, "", false},
		{Label("INVOICE"), "", false},
	}
	for _, tc := range cases {
		feature, ok := FeatureForLabel(tc.label)
		if ok != tc.ok || feature != tc.feature {
			t.Fatalf("FeatureForLabel(%s) = (%s, %v), want (%s, %v)",
				tc.label, feature, ok, tc.feature, tc.ok)
		}
	}
}

func TestPlainTextJoinsLineBlocksOnly(t *testing.T) {
	blocks := []TextBlock{
		{BlockType: BlockTypeLine, Text: "first line"},
		{BlockType: "WORD", Text: "first"},
		{BlockType: BlockTypeLine, Text: "second line"},
		{BlockType: "PAGE", Text: ""},
	}
	if got := PlainText(blocks); got != "first line\nsecond line\n" {
		t.Fatalf("PlainText() = %q", got)
	}
	if got := PlainText(nil); got != "" {
		t.Fatalf("PlainText(nil) = %q", got)
	}
}

func TestInstanceStateTerminal(t *testing.T) {
	terminal := []InstanceState{StateCompleted, StateSkipped, StateAborted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []InstanceState{StateStart, StateClassifying, StateBranching, StateDispatching, StateSuspended} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestNewInstanceNamesByDeliveryID(t *testing.T) {
	ev := TriggerEvent{DeliveryID: "d-42"}
	inst := NewInstance(ev)
	if inst.Name != "d-42" {
		t.Fatalf("instance name should be the delivery id, got %q", inst.Name)
	}
	if inst.State != StateStart {
		t.Fatalf("fresh instance should be in start state, got %s", inst.State)
	}
	if inst.ID == "" {
		t.Fatalf("instance id must be assigned")
	}
}
