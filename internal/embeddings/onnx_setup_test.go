//go:build cgo

package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPlatformArchive(t *testing.T) {
	tests := []struct {
		goos    string
		goarch  string
		want    string
		wantErr bool
	}{
		{"linux", "amd64", "linux-x64", false},
		{"linux", "arm64", "linux-aarch64", false},
		{"darwin", "amd64", "osx-x86_64", false},
		{"darwin", "arm64", "osx-arm64", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := getPlatformArchive(tt.goos, tt.goarch)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedPlatform)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetLibraryName(t *testing.T) {
	assert.Equal(t, "libonnxruntime.so", getLibraryName("linux"))
	assert.Equal(t, "libonnxruntime.dylib", getLibraryName("darwin"))
	assert.Equal(t, "libonnxruntime.so", getLibraryName("plan9"))
}

func TestBuildDownloadURL(t *testing.T) {
	url := buildDownloadURL("1.23.0", "linux-x64")
	assert.Equal(t, "https://github.com/microsoft/onnxruntime/releases/download/v1.23.0/onnxruntime-linux-x64-1.23.0.tgz", url)
}
