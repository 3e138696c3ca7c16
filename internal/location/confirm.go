package location

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rexlx/vexmarket/internal/gateway"
)

var (
	// ErrNotFound is a well formed ZIP the backend does not know.
	ErrNotFound = errors.New("Sorry, we couldn't find that ZIP code. Please try again.")
	// ErrDetectUnavailable means no Locator is configured.
	ErrDetectUnavailable = errors.New("location detection is not available on this device")
)

// Coordinates is a position in decimal degrees.
type Coordinates struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// Locator finds where the device is.
type Locator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// Fixed is a Locator that always reports the same position.
type Fixed Coordinates

func (f Fixed) Locate(context.Context) (Coordinates, error) {
	return Coordinates(f), nil
}

// Confirmer checks ZIP codes against the backend before they are stored.
type Confirmer struct {
	req gateway.Requester
}

func NewConfirmer(req gateway.Requester) *Confirmer {
	return &Confirmer{req: req}
}

// Check verifies that zip exists.
func (c *Confirmer) Check(ctx context.Context, zip string) error {
	if !Valid(zip) {
		return ErrInvalidZip
	}
	res := c.req.Send(ctx, http.MethodPost, "/location/check", map[string]string{"zip": zip})
	if err := res.Failure("verifying your ZIP code"); err != nil {
		return err
	}
	var body struct {
		Result bool `json:"result"`
	}
	if err := res.Decode(&body); err != nil || !body.Result {
		return ErrNotFound
	}
	return nil
}

// Resolve asks the backend for the ZIP containing pos.
func (c *Confirmer) Resolve(ctx context.Context, pos Coordinates) (string, error) {
	res := c.req.Send(ctx, http.MethodPost, "/location/zip", pos)
	if err := res.Failure("fetching your ZIP code"); err != nil {
		return "", err
	}
	// the backend sends the zip as a number or a string
	var body struct {
		Zip json.RawMessage `json:"zip"`
	}
	if err := res.Decode(&body); err != nil {
		return "", err
	}
	zip := Normalize(strings.Trim(string(body.Zip), `"`))
	if zip == "" {
		return "", ErrNotFound
	}
	return zip, nil
}

// SetManual confirms a typed ZIP and stores it.
func (c *Confirmer) SetManual(ctx context.Context, s *Store, zip string) error {
	if err := c.Check(ctx, zip); err != nil {
		return err
	}
	return s.Set(zip)
}

// Detect locates the device, resolves the position and stores the result.
func (c *Confirmer) Detect(ctx context.Context, s *Store, loc Locator) (string, error) {
	if loc == nil {
		return "", ErrDetectUnavailable
	}
	pos, err := loc.Locate(ctx)
	if err != nil {
		return "", err
	}
	zip, err := c.Resolve(ctx, pos)
	if err != nil {
		return "", err
	}
	return zip, s.Set(zip)
}
