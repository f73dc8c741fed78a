package gcsfetch

import "testing"

func TestIsURI(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"gs://bucket/statements/file.pdf", true},
		{"/local/path/file.pdf", false},
		{"https://example.com/file.pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsURI(tt.input); got != tt.want {
			t.Errorf("IsURI(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSplitURI(t *testing.T) {
	tests := []struct {
		input      string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://bucket/statements/file.pdf", "bucket", "statements/file.pdf", false},
		{"gs://bucket/file.pdf", "bucket", "file.pdf", false},
		{"gs://bucket", "", "", true},
		{"gs:///object", "", "", true},
		{"not-a-uri", "", "", true},
	}
	for _, tt := range tests {
		bucket, object, err := SplitURI(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitURI(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if bucket != tt.wantBucket || object != tt.wantObject {
			t.Errorf("SplitURI(%q) = %q, %q", tt.input, bucket, object)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"gs://bucket/statements/feb-2024.pdf", "feb-2024.pdf"},
		{"gs://bucket/file.pdf", "file.pdf"},
		{"gs://bucket", "bucket"},
	}
	for _, tt := range tests {
		if got := Filename(tt.input); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
