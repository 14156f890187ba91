package source

import (
	"errors"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestExtractFolderID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		link    string
		want    string
		wantErr bool
	}{
		{
			name: "standard folder url",
			link: "https://drive.google.com/drive/folders/1AbC_dEf-123",
			want: "1AbC_dEf-123",
		},
		{
			name: "user scoped folder url",
			link: "https://drive.google.com/drive/u/0/folders/1AbC_dEf-123",
			want: "1AbC_dEf-123",
		},
		{
			name: "id query parameter",
			link: "https://drive.google.com/open?id=1AbC_dEf-123",
			want: "1AbC_dEf-123",
		},
		{
			name: "bare folder id",
			link: "1AbC_dEf-123",
			want: "1AbC_dEf-123",
		},
		{
			name:    "unrelated url",
			link:    "https://example.com/some/path",
			wantErr: true,
		},
		{
			name:    "empty input",
			link:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ExtractFolderID(tt.link)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractFolderID(%q) expected error, got %q", tt.link, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractFolderID(%q) error = %v", tt.link, err)
			}
			if got != tt.want {
				t.Fatalf("ExtractFolderID(%q) = %q, want %q", tt.link, got, tt.want)
			}
		})
	}
}

func TestIsAuthError(t *testing.T) {
	t.Parallel()

	if !isAuthError(&googleapi.Error{Code: 401}) {
		t.Fatal("expected 401 to be an auth error")
	}
	if !isAuthError(&googleapi.Error{Code: 403}) {
		t.Fatal("expected 403 to be an auth error")
	}
	if isAuthError(&googleapi.Error{Code: 404}) {
		t.Fatal("expected 404 not to be an auth error")
	}
	if isAuthError(errors.New("plain error")) {
		t.Fatal("expected plain error not to be an auth error")
	}
}
