// Package artifact persists fitted components as compressed, self-describing
// files and loads them back.
//
// Each file starts with an 8-byte magic, a format version and a kind byte,
// followed by a zstd stream holding the component's MarshalBinary output.
package artifact

import (
	"bytes"
	"encoding"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

const (
	magic         = "GENRECLS"
	formatVersion = 1
	headerLen     = len(magic) + 2
)

// Standard file names inside an artifact directory.
const (
	VectorizerFile = "tfidf.bin"
	ClassifierFile = "model.bin"
	LabelsFile     = "labels.bin"
	lockFile       = ".lock"
)

// ErrLocked is returned when another process holds the artifact directory lock.
var ErrLocked = errors.New("artifact directory is locked by another process")

// Kind identifies which component a file holds.
type Kind uint8

const (
	KindVectorizer Kind = iota + 1
	KindClassifier
	KindLabels
)

func (k Kind) String() string {
	switch k {
	case KindVectorizer:
		return "vectorizer"
	case KindClassifier:
		return "classifier"
	case KindLabels:
		return "labels"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// LoadError describes a missing or corrupt artifact. It matches both
// apperrors.ErrArtifactLoad and the underlying cause with errors.Is.
type LoadError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading %s artifact %s: %v", e.Kind, e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{apperrors.ErrArtifactLoad, e.Err}
}

// Paths locates the three artifacts of a trained classifier.
type Paths struct {
	Vectorizer string
	Classifier string
	Labels     string
}

// PathsIn returns the standard artifact paths inside dir.
func PathsIn(dir string) Paths {
	return Paths{
		Vectorizer: filepath.Join(dir, VectorizerFile),
		Classifier: filepath.Join(dir, ClassifierFile),
		Labels:     filepath.Join(dir, LabelsFile),
	}
}

// Save writes m to path. The file is written next to path and renamed into
// place, so readers never observe a partial artifact.
func Save(path string, kind Kind, m encoding.BinaryMarshaler) error {
	payload, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", kind, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := writeArtifact(tmp, kind, payload); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", kind, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", kind, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s into place: %w", kind, err)
	}
	return nil
}

func writeArtifact(f *os.File, kind Kind, payload []byte) error {
	header := append([]byte(magic), formatVersion, byte(kind))
	if _, err := f.Write(header); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := enc.Write(payload); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Load reads the artifact at path into u, checking that it holds kind.
// Every failure is a *LoadError.
func Load(path string, kind Kind, u encoding.BinaryUnmarshaler) error {
	fail := func(err error) error {
		return &LoadError{Path: path, Kind: kind, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	if len(data) < headerLen || !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return fail(errors.New("not an artifact file"))
	}
	if v := data[len(magic)]; v != formatVersion {
		return fail(fmt.Errorf("unsupported format version %d", v))
	}
	if got := Kind(data[len(magic)+1]); got != kind {
		return fail(fmt.Errorf("file holds a %s artifact", got))
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return fail(err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data[headerLen:], nil)
	if err != nil {
		return fail(fmt.Errorf("decompressing: %w", err))
	}
	if err := u.UnmarshalBinary(payload); err != nil {
		return fail(err)
	}
	return nil
}

// Lock takes an exclusive lock on dir so two training runs cannot write the
// same artifacts. The caller must Unlock the returned lock.
func Lock(dir string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return fl, nil
}
