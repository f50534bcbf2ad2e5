package media

import "testing"

func TestKindOf(t *testing.T) {
	cases := []struct {
		filename    string
		contentType string
		want        Kind
	}{
		{"session.mp3", "audio/mpeg", KindAudio},
		{"session.mp4", "video/mp4", KindVideo},
		// Content type wins over extension.
		{"session.mp4", "audio/mp4", KindAudio},
		// Generic content type falls back to the extension.
		{"session.wav", "application/octet-stream", KindAudio},
		{"session.mkv", "application/octet-stream", KindVideo},
		{"SESSION.MP3", "", KindAudio},
		{"notes.txt", "text/plain", KindUnknown},
		{"noext", "", KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.filename, tc.contentType); got != tc.want {
			t.Fatalf("KindOf(%q, %q) = %v, want %v", tc.filename, tc.contentType, got, tc.want)
		}
	}
}

func TestChatFileAllowed(t *testing.T) {
	for _, name := range []string{"report.pdf", "chart.png", "notes.docx", "DATA.CSV"} {
		if !ChatFileAllowed(name) {
			t.Fatalf("%s should be allowed", name)
		}
	}
	// Recordings and executables stay out of chat.
	for _, name := range []string{"session.mp3", "session.mp4", "tool.exe", "archive.zip", "noext"} {
		if ChatFileAllowed(name) {
			t.Fatalf("%s should not be allowed", name)
		}
	}
}
