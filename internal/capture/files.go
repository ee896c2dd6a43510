package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"panofuse/internal/imaging"
)

var videoExts = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".avi":  {},
	".mkv":  {},
	".webm": {},
	".3gp":  {},
	".m4v":  {},
}

// IsVideoFile reports whether path looks like a video container.
func IsVideoFile(path string) bool {
	_, ok := videoExts[filepathExtLower(path)]
	return ok
}

// ListImages returns the still images directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imaging.IsImageFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func filepathExtLower(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
