package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
)

// Identity is who is asking; ownership checks compare against it.
type Identity interface {
	UserID() int64
}

// Service wraps the listing endpoints.
type Service struct {
	req gateway.Requester
	who Identity
}

func NewService(req gateway.Requester, who Identity) *Service {
	return &Service{req: req, who: who}
}

// Get fetches one listing.
func (s *Service) Get(ctx context.Context, id int64) (internal.Listing, error) {
	res := s.req.Send(ctx, http.MethodGet, fmt.Sprintf("/listings/%d", id), nil)
	if err := res.Failure("fetching this listing"); err != nil {
		return internal.Listing{}, err
	}
	var l internal.Listing
	if err := res.Decode(&l); err != nil {
		return internal.Listing{}, fmt.Errorf("decoding listing: %w", err)
	}
	return l, nil
}

// Query is one page of a search. An empty Zip searches everywhere.
type Query struct {
	Text string
	Zip  string
	Page int
}

// Page is a page of search results.
type Page struct {
	Listings       []internal.Listing `json:"listings"`
	EstimatedPages int                `json:"estimatedPages"`
}

// Search runs a text search. Pages start at 1.
func (s *Service) Search(ctx context.Context, q Query) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	body := map[string]any{
		"query": q.Text,
		"type":  internal.DeliveryBoth,
	}
	if q.Zip != "" {
		body["zipCode"] = q.Zip
	}
	path := "/listings/search?" + url.Values{"page": {strconv.Itoa(q.Page)}}.Encode()
	res := s.req.Send(ctx, http.MethodPost, path, body)
	if err := res.Failure("fetching listings"); err != nil {
		return Page{}, err
	}
	var p Page
	if err := res.Decode(&p); err != nil {
		return Page{}, fmt.Errorf("decoding search results: %w", err)
	}
	if p.EstimatedPages < 1 {
		p.EstimatedPages = 1
	}
	return p, nil
}

// Mine lists the session user's own listings, archived ones included.
func (s *Service) Mine(ctx context.Context) ([]internal.Listing, error) {
	res := s.req.Send(ctx, http.MethodGet, "/listings/user", nil)
	if err := res.Failure("fetching your listings"); err != nil {
		return nil, err
	}
	var body struct {
		Listings []internal.Listing `json:"listings"`
	}
	if err := res.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding listings: %w", err)
	}
	return body.Listings, nil
}

// Archive hides or restores a listing.
func (s *Service) Archive(ctx context.Context, id int64, archived bool) error {
	res := s.req.Send(ctx, http.MethodPost, fmt.Sprintf("/listings/%d/archive", id), map[string]bool{"archived": archived})
	return res.Failure("updating the listing")
}

// Delete removes a listing.
func (s *Service) Delete(ctx context.Context, id int64) error {
	res := s.req.Send(ctx, http.MethodDelete, fmt.Sprintf("/listings/%d", id), nil)
	return res.Failure("deleting the listing")
}

// Check lists every rule a draft breaks, form fields first and images
// last. An empty result means the draft can be submitted.
func Check(f Form, images *ImageSet, zip string) []string {
	return append(f.Problems(zip), images.Problems()...)
}

func problems(f Form, images *ImageSet, zip string) error {
	if p := Check(f, images, zip); len(p) > 0 {
		return &internal.ValidationError{Problems: p}
	}
	return nil
}

func (s *Service) upload(ctx context.Context, id int64, images []Attachment) error {
	var errs []error
	for _, a := range images {
		res := s.req.SendFile(ctx, fmt.Sprintf("/listings/%d/images", id), a.Name, a.Data)
		if err := res.Failure("uploading " + a.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Create posts a new listing and uploads its images. The listing id is
// returned even when some uploads fail.
func (s *Service) Create(ctx context.Context, f Form, images *ImageSet, zip string) (int64, error) {
	if err := problems(f, images, zip); err != nil {
		return 0, err
	}
	res := s.req.Send(ctx, http.MethodPost, "/listings", f.payload(zip))
	if err := res.Failure("creating the listing"); err != nil {
		return 0, err
	}
	var body struct {
		ID int64 `json:"id"`
	}
	if err := res.Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding new listing: %w", err)
	}
	return body.ID, s.upload(ctx, body.ID, images.Added())
}

// Editor is a loaded edit form for a listing the user owns.
type Editor struct {
	ID     int64
	Form   Form
	Images *ImageSet

	svc *Service
}

// Edit loads listing id for editing. Listings owned by someone else yield
// internal.ErrForbidden.
func (s *Service) Edit(ctx context.Context, id int64) (*Editor, error) {
	l, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if uid := s.who.UserID(); uid == 0 || l.AuthorID != uid {
		return nil, fmt.Errorf("editing listing %d: %w", id, internal.ErrForbidden)
	}
	return &Editor{
		ID:     id,
		Form:   FormFromListing(l),
		Images: NewImageSet(l.Images),
		svc:    s,
	}, nil
}

// Problems lists what blocks Submit.
func (e *Editor) Problems(zip string) []string {
	return Check(e.Form, e.Images, zip)
}

// Submit saves the edit as three independent steps: the text fields, the
// deletion of images still marked deleted, and one upload per new file.
// Every step runs even if an earlier one failed, nothing is rolled back,
// and all failures are returned joined.
func (e *Editor) Submit(ctx context.Context, zip string) error {
	if err := problems(e.Form, e.Images, zip); err != nil {
		return err
	}
	s := e.svc
	var errs []error

	res := s.req.Send(ctx, http.MethodPut, fmt.Sprintf("/listings/%d", e.ID), e.Form.payload(zip))
	if err := res.Failure("updating the listing"); err != nil {
		errs = append(errs, err)
	}

	if deleted := e.Images.Deleted(); len(deleted) > 0 {
		res := s.req.Send(ctx, http.MethodDelete, fmt.Sprintf("/listings/%d/images", e.ID), map[string][]string{"images": deleted})
		if err := res.Failure("removing images"); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.upload(ctx, e.ID, e.Images.Added()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
