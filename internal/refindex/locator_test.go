package refindex

import "testing"

func TestExtractBlobID(t *testing.T) {
	const id = "65a1f0c2e4b0a1b2c3d4e5f6"
	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"/files/" + id, id, true},
		{"https://api.example.com/files/" + id + "?v=2", id, true},
		{"/files/65A1F0C2E4B0A1B2C3D4E5F6", id, true},
		{"/files/" + id + "ff", id, true},
		{"/files/123", "", false},
		{"/uploads/" + id, "", false},
		{"", "", false},
		{"not a url at all", "", false},
	}
	for _, tt := range tests {
		gotID, gotOK := ExtractBlobID(tt.in)
		if gotID != tt.wantID || gotOK != tt.wantOK {
			t.Fatalf("ExtractBlobID(%q) = (%q, %v), want (%q, %v)", tt.in, gotID, gotOK, tt.wantID, tt.wantOK)
		}
	}
}

func TestLocatorRoundTrip(t *testing.T) {
	const id = "0123456789abcdef01234567"
	loc := Locator(id)
	if loc != "/files/"+id {
		t.Fatalf("unexpected locator %q", loc)
	}
	got, ok := ExtractBlobID(loc)
	if !ok || got != id {
		t.Fatalf("round trip failed: %q %v", got, ok)
	}
}
