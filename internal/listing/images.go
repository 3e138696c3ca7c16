package listing

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/blake2b"
)

const (
	MaxImages = 10
	// MaxImageBytes is 5 MB as the backend counts it.
	MaxImageBytes = 5 * 1000 * 1000
)

var (
	ErrImageTooLarge  = errors.New("Image must be less than 5 MB.")
	ErrImageType      = errors.New("Only png and jpg images are allowed.")
	ErrImageEmpty     = errors.New("No file selected.")
	ErrDuplicateImage = errors.New("That image is already attached.")
	ErrTooManyImages  = fmt.Errorf("You can attach at most %d images.", MaxImages)
)

// Attachment is a local image waiting to be uploaded.
type Attachment struct {
	Name    string
	Data    []byte
	MIME    string
	Preview string // data URI

	digest [blake2b.Size256]byte
}

// NewAttachment checks size and type and builds the preview.
func NewAttachment(name string, data []byte) (Attachment, error) {
	if len(data) == 0 {
		return Attachment{}, ErrImageEmpty
	}
	if len(data) > MaxImageBytes {
		return Attachment{}, ErrImageTooLarge
	}
	mime := http.DetectContentType(data)
	if mime != "image/png" && mime != "image/jpeg" {
		return Attachment{}, ErrImageType
	}
	return Attachment{
		Name:    name,
		Data:    data,
		MIME:    mime,
		Preview: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		digest:  blake2b.Sum256(data),
	}, nil
}

// ExistingImage is an uploaded image of the listing being edited.
type ExistingImage struct {
	URL     string
	Deleted bool
}

// ImageSet is the image list of a draft: images already on the listing,
// each of which can be marked for deletion and restored, followed by new
// attachments.
type ImageSet struct {
	existing []ExistingImage
	added    []Attachment
}

// NewImageSet starts from the listing's current images.
func NewImageSet(existing []string) *ImageSet {
	s := &ImageSet{}
	for _, u := range existing {
		s.existing = append(s.existing, ExistingImage{URL: u})
	}
	return s
}

// Count is how many images the listing will have after submit.
func (s *ImageSet) Count() int {
	n := len(s.added)
	for _, e := range s.existing {
		if !e.Deleted {
			n++
		}
	}
	return n
}

// Add attaches a new file.
func (s *ImageSet) Add(name string, data []byte) (Attachment, error) {
	a, err := NewAttachment(name, data)
	if err != nil {
		return Attachment{}, err
	}
	if s.Count() >= MaxImages {
		return Attachment{}, ErrTooManyImages
	}
	for _, b := range s.added {
		if b.digest == a.digest {
			return Attachment{}, ErrDuplicateImage
		}
	}
	s.added = append(s.added, a)
	return a, nil
}

// Remove drops the i-th new attachment.
func (s *ImageSet) Remove(i int) {
	if i < 0 || i >= len(s.added) {
		return
	}
	s.added = append(s.added[:i], s.added[i+1:]...)
}

// ToggleDelete marks the i-th existing image for deletion, or restores it
// if it already was. Restoring fails when the set is full.
func (s *ImageSet) ToggleDelete(i int) error {
	if i < 0 || i >= len(s.existing) {
		return fmt.Errorf("no image at index %d", i)
	}
	e := &s.existing[i]
	if e.Deleted && s.Count() >= MaxImages {
		return ErrTooManyImages
	}
	e.Deleted = !e.Deleted
	return nil
}

// Existing returns a copy of the listing's current images.
func (s *ImageSet) Existing() []ExistingImage {
	return append([]ExistingImage(nil), s.existing...)
}

// Added returns the new attachments in order.
func (s *ImageSet) Added() []Attachment {
	return append([]Attachment(nil), s.added...)
}

// Deleted lists existing images still marked for deletion.
func (s *ImageSet) Deleted() []string {
	var out []string
	for _, e := range s.existing {
		if e.Deleted {
			out = append(out, e.URL)
		}
	}
	return out
}

// Problems lists image rule violations.
func (s *ImageSet) Problems() []string {
	switch n := s.Count(); {
	case n == 0:
		return []string{"At least one image is required"}
	case n > MaxImages:
		return []string{ErrTooManyImages.Error()}
	}
	return nil
}
