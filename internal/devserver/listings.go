package devserver

import (
	"cmp"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rexlx/vexmarket/internal"
)

const (
	searchPageSize   = 20
	maxListingImages = 10
	maxImageBytes    = 5_000_000
)

type listing struct {
	internal.Listing
	Zip     string
	Created time.Time
}

func (l *listing) view() internal.Listing {
	out := l.Listing
	out.Images = slices.Clone(l.Images)
	out.ZipFriendly = zipLabel(l.Zip)
	return out
}

type listingInput struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Price       json.Number           `json:"price"`
	Condition   string                `json:"condition"`
	Type        internal.DeliveryType `json:"type"`
	Zip         int                   `json:"zip"`
}

func (in listingInput) problem() string {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return "Title is required"
	case strings.TrimSpace(in.Description) == "":
		return "Description is required"
	case in.Condition == "":
		return "The condition is required"
	case in.Type == "":
		return "A delivery method must be selected"
	case in.Zip <= 0:
		return "Location must be set"
	}
	p, err := in.Price.Float64()
	if err != nil || p <= 0 {
		return "Price must be greater than $0"
	}
	if p > 10000 {
		return "Price must be less than $10,000.00"
	}
	return ""
}

func (in listingInput) apply(l *listing) {
	l.Title = in.Title
	l.Description = in.Description
	l.Price = in.Price
	l.Condition = in.Condition
	l.Type = in.Type
	l.Zip = strconv.Itoa(in.Zip)
	if len(l.Zip) < 5 {
		l.Zip = strings.Repeat("0", 5-len(l.Zip)) + l.Zip
	}
}

func newestFirst(a, b internal.Listing) int {
	return cmp.Compare(b.ID, a.ID)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query   string `json:"query"`
		Type    string `json:"type"`
		ZipCode string `json:"zipCode"`
	}
	if !decode(w, r, &in) {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	q := strings.ToLower(strings.TrimSpace(in.Query))

	s.mu.RLock()
	hits := []internal.Listing{}
	for _, l := range s.listings {
		if l.Archived {
			continue
		}
		if in.ZipCode != "" && l.Zip != in.ZipCode {
			continue
		}
		if in.Type != "" && in.Type != string(internal.DeliveryBoth) && string(l.Type) != in.Type && l.Type != internal.DeliveryBoth {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(l.Title+" "+l.Description), q) {
			continue
		}
		hits = append(hits, l.view())
	}
	s.mu.RUnlock()

	slices.SortFunc(hits, newestFirst)
	pages := max(1, (len(hits)+searchPageSize-1)/searchPageSize)
	start := min((page-1)*searchPageSize, len(hits))
	end := min(start+searchPageSize, len(hits))
	ok(w, map[string]any{"listings": hits[start:end], "estimatedPages": pages})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, valid := pathID(w, r)
	if !valid {
		return
	}
	s.mu.RLock()
	l, found := s.listings[id]
	var out internal.Listing
	if found {
		out = l.view()
	}
	s.mu.RUnlock()
	if !found {
		fail(w, http.StatusNotFound, "Listing not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMyListings(w http.ResponseWriter, r *http.Request) {
	uid := GetUserFromContext(r.Context()).ID
	s.mu.RLock()
	out := []internal.Listing{}
	for _, l := range s.listings {
		if l.AuthorID == uid {
			out = append(out, l.view())
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, newestFirst)
	ok(w, map[string]any{"listings": out})
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var in listingInput
	if !decode(w, r, &in) {
		return
	}
	if p := in.problem(); p != "" {
		fail(w, http.StatusBadRequest, p)
		return
	}
	l := &listing{Created: time.Now()}
	in.apply(l)

	s.mu.Lock()
	l.ID = s.id()
	l.AuthorID = GetUserFromContext(r.Context()).ID
	s.listings[l.ID] = l
	s.mu.Unlock()

	ok(w, map[string]any{"id": l.ID})
}

// owned runs fn on listing id with the lock held, after checking that the
// session user wrote it.
func (s *Server) owned(w http.ResponseWriter, r *http.Request, fn func(l *listing) bool) {
	id, valid := pathID(w, r)
	if !valid {
		return
	}
	uid := GetUserFromContext(r.Context()).ID

	s.mu.Lock()
	defer s.mu.Unlock()
	l, found := s.listings[id]
	if !found {
		fail(w, http.StatusNotFound, "Listing not found")
		return
	}
	if l.AuthorID != uid {
		fail(w, http.StatusForbidden, "You do not have permissions to do that")
		return
	}
	if fn(l) {
		ok(w, nil)
	}
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var in listingInput
	if !decode(w, r, &in) {
		return
	}
	if p := in.problem(); p != "" {
		fail(w, http.StatusBadRequest, p)
		return
	}
	s.owned(w, r, func(l *listing) bool {
		in.apply(l)
		return true
	})
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	s.owned(w, r, func(l *listing) bool {
		for _, img := range l.Images {
			delete(s.images, path.Base(img))
		}
		delete(s.listings, l.ID)
		return true
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Archived bool `json:"archived"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.owned(w, r, func(l *listing) bool {
		l.Archived = in.Archived
		return true
	})
}

// readUpload pulls the "file" part out of a multipart request and checks
// it is a png or jpeg under the size limit.
func readUpload(w http.ResponseWriter, r *http.Request) (name string, data []byte, valid bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<16)
	f, _, err := r.FormFile("file")
	if err != nil {
		fail(w, http.StatusBadRequest, "No file selected.")
		return "", nil, false
	}
	defer f.Close()
	data, err = io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil || len(data) > maxImageBytes {
		fail(w, http.StatusBadRequest, "Image must be less than 5 MB.")
		return "", nil, false
	}
	var ext string
	switch http.DetectContentType(data) {
	case "image/png":
		ext = ".png"
	case "image/jpeg":
		ext = ".jpg"
	default:
		fail(w, http.StatusBadRequest, "Only png and jpg images are allowed.")
		return "", nil, false
	}
	return uuid.NewString() + ext, data, true
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	name, data, valid := readUpload(w, r)
	if !valid {
		return
	}
	s.owned(w, r, func(l *listing) bool {
		if len(l.Images) >= maxListingImages {
			fail(w, http.StatusBadRequest, "A listing can have at most 10 images")
			return false
		}
		s.images[name] = data
		l.Images = append(l.Images, "/images/"+name)
		return true
	})
}

func (s *Server) handleRemoveImages(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Images []string `json:"images"`
	}
	if !decode(w, r, &in) {
		return
	}
	s.owned(w, r, func(l *listing) bool {
		l.Images = slices.DeleteFunc(l.Images, func(img string) bool {
			if slices.Contains(in.Images, img) {
				delete(s.images, path.Base(img))
				return true
			}
			return false
		})
		return true
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	data, found := s.images[r.PathValue("name")]
	s.mu.RUnlock()
	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	_, _ = w.Write(data)
}
