package quirks

import "testing"

func TestForHostSelectsICloud(t *testing.T) {
	q := ForHost("caldav.icloud.com")
	if q.Name != "icloud" {
		t.Fatalf("expected icloud quirks, got %q", q.Name)
	}
	if !q.IsInvalidSyncToken(403) || !q.IsInvalidSyncToken(410) {
		t.Fatalf("icloud must treat both 403 and 410 as sync-token invalidation")
	}
	if !q.UseLowercaseReportPrefixes {
		t.Fatalf("icloud requires lowercase report prefixes")
	}
}

func TestForHostDefaultsToStandard(t *testing.T) {
	q := ForHost("dav.example.org")
	if q.Name != "standard" {
		t.Fatalf("expected standard quirks for an unrecognised host, got %q", q.Name)
	}
	if q.IsInvalidSyncToken(403) {
		t.Fatalf("standard quirks must not treat 403 as sync-token invalidation")
	}
	if !q.IsInvalidSyncToken(410) {
		t.Fatalf("standard quirks must treat 410 as sync-token invalidation per RFC 6578")
	}
}

func TestForHostSelectsBaikal(t *testing.T) {
	q := ForHost("baikal.example.com")
	if !q.IsInvalidSyncToken(412) {
		t.Fatalf("baikal must treat 412 as sync-token invalidation")
	}
}

func TestInvalidSyncTokenCodesRuntimeExtensible(t *testing.T) {
	q := Default()
	if q.IsInvalidSyncToken(499) {
		t.Fatalf("499 should not be invalid by default")
	}
	q.InvalidSyncTokenCodes[499] = true
	if !q.IsInvalidSyncToken(499) {
		t.Fatalf("expected runtime-added code to be recognised")
	}
}
