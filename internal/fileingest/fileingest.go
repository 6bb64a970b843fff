package fileingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileMeta holds metadata about a file to be uploaded.
type FileMeta struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// SupportedExtensions are the file types the extraction service knows how to read.
// Anything else is still uploaded as plain text when named explicitly, but is
// skipped during directory discovery.
var SupportedExtensions = map[string]bool{
	".csv": true, ".tsv": true, ".xlsx": true, ".log": true,
	".pdf": true, ".txt": true, ".md": true, ".json": true, ".html": true,
	".jpg": true, ".jpeg": true, ".png": true, ".tiff": true,
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true, ".webm": true, ".flac": true,
}

// Supported reports whether path has an extension from SupportedExtensions.
func Supported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

/*
DiscoverFiles recursively finds every supported file under rootDir.

Hidden files and directories are skipped. Results are sorted by path so a batch
built from the same directory always uploads in the same order.
*/
func DiscoverFiles(ctx context.Context, rootDir string) ([]FileMeta, error) {
	var files []FileMeta
	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		hidden := path != rootDir && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() || !Supported(path) {
			return nil
		}
		meta, metaErr := ExtractFileMeta(path)
		if metaErr != nil {
			// Skip files we can't stat, but continue
			return nil
		}
		files = append(files, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

/*
ExtractFileMeta extracts metadata from a given file path.

Returns FileMeta with Name, Path, Size, and ModTime.
*/
func ExtractFileMeta(path string) (FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMeta{}, err
	}
	return FileMeta{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
