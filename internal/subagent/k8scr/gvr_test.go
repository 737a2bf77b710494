package k8scr

import "testing"

func TestParseGVR(t *testing.T) {
	gvr, err := ParseGVR("newrelic.com/v1alpha1/subagents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gvr.Group != "newrelic.com" || gvr.Version != "v1alpha1" || gvr.Resource != "subagents" {
		t.Fatalf("unexpected GVR: %+v", gvr)
	}
}

func TestParseGVR_Invalid(t *testing.T) {
	for _, s := range []string{"", "a/b", "a/b/c/d", "/b/c", "a//c"} {
		if _, err := ParseGVR(s); err == nil {
			t.Fatalf("expected an error for %q", s)
		}
	}
}
