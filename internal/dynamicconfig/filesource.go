package dynamicconfig

import (
	"context"
	"fmt"
	"os"
)

// FileSource implements LocalSource by reading a Dynamic Config document
// straight off local disk. It has no teacher-equivalent dependency to
// wire: a bare-metal or development deployment with no GitOps repo or S3
// bucket still needs a local baseline source, and os.ReadFile is the
// entire concern there is.
type FileSource struct {
	path string
}

// NewFileSource returns a LocalSource reading the document at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load implements LocalSource.
func (s *FileSource) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("dynamicconfig: reading local file %s: %w", s.path, err)
	}
	return data, nil
}
