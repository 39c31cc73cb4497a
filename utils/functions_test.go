package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in       uint64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{4 * 1024 * 1024, "4.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, test := range tests {
		if got := FormatBytes(test.in); got != test.expected {
			t.Errorf("FormatBytes(%d) = %q, expected %q", test.in, got, test.expected)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		bytes    int64
		elapsed  float64
		expected string
	}{
		{0, 0, "0 B/s"},
		{500, 1, "500 B/s"},
		{1024, 1, "1.00 KB/s"},
		{2048, 2, "1.00 KB/s"},
		{4 * 1024 * 1024, 2, "2.00 MB/s"},
	}

	for _, test := range tests {
		if got := FormatSpeed(test.bytes, test.elapsed); got != test.expected {
			t.Errorf("FormatSpeed(%d, %v) = %q, expected %q", test.bytes, test.elapsed, got, test.expected)
		}
	}
}

func TestSanitizeLocator(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"clip.mp4", "clip.mp4"},
		{"/media/clip.mp4", "clip.mp4"},
		{"../../etc/passwd", "passwd"},
		{"a\\b\\clip.mp4", "clip.mp4"},
	}

	for _, test := range tests {
		if got := SanitizeLocator(test.in); got != test.expected {
			t.Errorf("SanitizeLocator(%q) = %q, expected %q", test.in, got, test.expected)
		}
	}
}

func TestCleanSegmentDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"tracked", "stray"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "loose.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CleanSegmentDir(dir, []string{"tracked"}); err != nil {
		t.Fatalf("CleanSegmentDir() = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "tracked")); err != nil {
		t.Error("tracked segment dir should survive cleanup")
	}
	if _, err := os.Stat(filepath.Join(dir, "stray")); !os.IsNotExist(err) {
		t.Error("stray segment dir should be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "loose.txt")); err != nil {
		t.Error("plain files should be left alone")
	}

	if err := CleanSegmentDir(filepath.Join(dir, "missing"), nil); err != nil {
		t.Errorf("missing dir should not be an error, got %v", err)
	}
}
