// Package labels maps genre names to dense integer codes and back.
package labels

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/apperrors"
)

var (
	// ErrNoLabels is returned when Fit receives no labels.
	ErrNoLabels = fmt.Errorf("%w: no labels", apperrors.ErrTrainingData)

	// ErrUnknownLabel is returned when encoding a label not seen during Fit.
	ErrUnknownLabel = fmt.Errorf("unknown label")

	// ErrUnknownCode is returned when decoding a code outside [0, K).
	ErrUnknownCode = fmt.Errorf("unknown label code")
)

// Codec is a fitted label space. Codes follow lexicographic label order, so
// refitting on the same label set always yields the same codes.
type Codec struct {
	classes []string
	codes   map[string]int
}

// Fit builds a codec from the distinct values of labels.
func Fit(labels []string) (*Codec, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	classes := lo.Uniq(labels)
	slices.Sort(classes)
	return fromClasses(classes), nil
}

func fromClasses(classes []string) *Codec {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &Codec{classes: classes, codes: codes}
}

// Encode returns the code of label.
func (c *Codec) Encode(label string) (int, error) {
	code, ok := c.codes[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return code, nil
}

// Decode returns the label for code.
func (c *Codec) Decode(code int) (string, error) {
	if code < 0 || code >= len(c.classes) {
		return "", fmt.Errorf("%w: %d (have %d classes)", ErrUnknownCode, code, len(c.classes))
	}
	return c.classes[code], nil
}

// EncodeAll encodes every label, failing on the first unknown one.
func (c *Codec) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		code, err := c.Encode(l)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = code
	}
	return out, nil
}

// DecodeAll decodes every code, failing on the first out-of-range one.
func (c *Codec) DecodeAll(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, code := range codes {
		l, err := c.Decode(code)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = l
	}
	return out, nil
}

// Classes returns the labels in code order.
func (c *Codec) Classes() []string {
	return slices.Clone(c.classes)
}

// Len returns the number of classes.
func (c *Codec) Len() int {
	return len(c.classes)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Codec) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.classes); err != nil {
		return nil, fmt.Errorf("encoding labels: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Codec) UnmarshalBinary(data []byte) error {
	var classes []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&classes); err != nil {
		return fmt.Errorf("decoding labels: %w", err)
	}
	if len(classes) == 0 {
		return fmt.Errorf("decoding labels: empty label space")
	}
	if !slices.IsSorted(classes) || len(lo.Uniq(classes)) != len(classes) {
		return fmt.Errorf("decoding labels: classes are not sorted and distinct")
	}
	*c = *fromClasses(classes)
	return nil
}
