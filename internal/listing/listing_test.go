package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/gateway/gatewaytest"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n")
	jpegHeader = []byte("\xff\xd8\xff\xe0")
)

func png(tag string) []byte  { return append(append([]byte{}, pngHeader...), tag...) }
func jpeg(tag string) []byte { return append(append([]byte{}, jpegHeader...), tag...) }

type user int64

func (u user) UserID() int64 { return int64(u) }

func goodForm() Form {
	return Form{
		Title:       "Road bike",
		Description: "Barely ridden.",
		Price:       "250.00",
		Condition:   "Like new",
		Type:        internal.DeliveryLocal,
	}
}

func TestTitleProblemsAreExclusive(t *testing.T) {
	f := goodForm()
	f.Title = ""
	p := f.Problems("90210")
	assert.Contains(t, p, "Title is required")
	assert.NotContains(t, p, "Title must be 128 characters or less")

	f.Title = strings.Repeat("a", 129)
	p = f.Problems("90210")
	assert.Contains(t, p, "Title must be 128 characters or less")
	assert.NotContains(t, p, "Title is required")

	f.Title = strings.Repeat("é", 128)
	assert.Empty(t, f.Problems("90210"))
}

func TestProblemsInOrder(t *testing.T) {
	assert.Equal(t, []string{
		"Title is required",
		"Description is required",
		"Price must be greater than $0",
		"The condition is required",
		"A delivery method must be selected",
		"Location must be set",
	}, Form{}.Problems(""))

	f := goodForm()
	f.Description = strings.Repeat("x", 8001)
	f.Price = "10000.01"
	f.Condition = "Mint"
	f.Type = "pigeon"
	assert.Equal(t, []string{
		"Description must be 8000 characters or less",
		"Price must be less than $10,000.00",
		"The condition is required",
		"A delivery method must be selected",
	}, f.Problems("90210"))
}

func TestPriceRules(t *testing.T) {
	cases := map[string]string{
		"0":        "Price must be greater than $0",
		"-3":       "Price must be greater than $0",
		"abc":      "Price must be greater than $0",
		"0.001":    "Price can have at most two decimal places",
		"10000":    "",
		"10000.00": "",
		"$9.99":    "",
		".5":       "",
		"10000.01": "Price must be less than $10,000.00",
		"1e9":      "Price must be greater than $0",
	}
	for price, want := range cases {
		f := goodForm()
		f.Price = price
		p := f.Problems("90210")
		if want == "" {
			assert.Empty(t, p, "price %q", price)
		} else {
			assert.Equal(t, []string{want}, p, "price %q", price)
		}
	}

	f := goodForm()
	f.Price = "99999999999999999"
	assert.Equal(t, []string{"Price must be less than $10,000.00"}, f.Problems("90210"))

	c, err := ParseCents("19.9")
	require.NoError(t, err)
	assert.Equal(t, int64(1990), c)
	assert.Equal(t, "19.90", FormatCents(c))
}

func TestAttachmentRules(t *testing.T) {
	_, err := NewAttachment("big.png", append(png(""), make([]byte, MaxImageBytes)...))
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Equal(t, "Image must be less than 5 MB.", ErrImageTooLarge.Error())

	_, err = NewAttachment("a.gif", []byte("GIF89a......"))
	assert.ErrorIs(t, err, ErrImageType)

	_, err = NewAttachment("empty.png", nil)
	assert.ErrorIs(t, err, ErrImageEmpty)

	a, err := NewAttachment("a.jpg", jpeg("x"))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", a.MIME)
	assert.True(t, strings.HasPrefix(a.Preview, "data:image/jpeg;base64,"))

	exact := append(png(""), make([]byte, MaxImageBytes-len(pngHeader))...)
	_, err = NewAttachment("exact.png", exact)
	assert.NoError(t, err)
}

func TestImageSetLimits(t *testing.T) {
	s := NewImageSet(nil)
	assert.Equal(t, []string{"At least one image is required"}, s.Problems())

	for i := 0; i < MaxImages; i++ {
		_, err := s.Add("p.png", png(string(rune('a'+i))))
		require.NoError(t, err)
	}
	_, err := s.Add("one-more.png", png("z"))
	assert.ErrorIs(t, err, ErrTooManyImages)
	assert.Empty(t, s.Problems())

	s.Remove(0)
	_, err = s.Add("again.png", png("b"))
	assert.ErrorIs(t, err, ErrDuplicateImage)
	assert.Equal(t, 9, s.Count())
}

func TestCheckTracksEveryEdit(t *testing.T) {
	images := NewImageSet(nil)
	f := goodForm()
	assert.Equal(t, []string{"At least one image is required"}, Check(f, images, "90210"))

	_, err := images.Add("bike.png", png("bike"))
	require.NoError(t, err)
	assert.Empty(t, Check(f, images, "90210"))

	f.Price = "0"
	assert.Equal(t, []string{"Price must be greater than $0", "Location must be set"}, Check(f, images, ""))

	images.Remove(0)
	f.Price = "12.50"
	assert.Equal(t, []string{"At least one image is required"}, Check(f, images, "90210"))
}

func TestToggleDeleteRespectsLimit(t *testing.T) {
	s := NewImageSet([]string{"/img/1"})
	require.NoError(t, s.ToggleDelete(0))
	for i := 0; i < MaxImages; i++ {
		_, err := s.Add("p.png", png(string(rune('a'+i))))
		require.NoError(t, err)
	}
	assert.ErrorIs(t, s.ToggleDelete(0), ErrTooManyImages)
	assert.Equal(t, []string{"/img/1"}, s.Deleted())
	assert.Error(t, s.ToggleDelete(5))
}

func listingFake(author int64) *gatewaytest.Fake {
	f := gatewaytest.New()
	f.JSON(http.MethodGet, "/listings/5", map[string]any{
		"success":     true,
		"id":          5,
		"title":       "Road bike",
		"description": "Barely ridden.",
		"price":       "250",
		"type":        "local",
		"condition":   "Like new",
		"images":      []string{"/img/1", "/img/2", "/img/3"},
		"authorId":    author,
	})
	return f
}

func TestEditRequiresOwnership(t *testing.T) {
	svc := NewService(listingFake(8), user(7))
	_, err := svc.Edit(context.Background(), 5)
	assert.ErrorIs(t, err, internal.ErrForbidden)

	svc = NewService(listingFake(7), user(0))
	_, err = svc.Edit(context.Background(), 5)
	assert.ErrorIs(t, err, internal.ErrForbidden)
}

func TestEditRevertedDeleteIssuesNoDelete(t *testing.T) {
	f := listingFake(7)
	f.JSON(http.MethodPut, "/listings/5", map[string]any{"success": true})
	svc := NewService(f, user(7))
	ctx := context.Background()

	ed, err := svc.Edit(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "250.00", ed.Form.Price)

	require.NoError(t, ed.Images.ToggleDelete(2))
	require.NoError(t, ed.Images.ToggleDelete(2))
	require.NoError(t, ed.Submit(ctx, "90210"))

	assert.Equal(t, 0, f.Count(http.MethodDelete, "/listings/5/images"))
	assert.Equal(t, 0, f.Count(http.MethodPost, "/listings/5/images"))
	assert.Equal(t, 1, f.Count(http.MethodPut, "/listings/5"))
}

func TestEditSubmitIssuesThreeIndependentCalls(t *testing.T) {
	f := listingFake(7)
	var put, del json.RawMessage
	f.Handle(http.MethodPut, "/listings/5", func(body json.RawMessage) gateway.Result {
		put = body
		return gatewaytest.Status(http.StatusBadRequest, map[string]any{"success": false, "error": "Title is not allowed"})
	})
	f.Handle(http.MethodDelete, "/listings/5/images", func(body json.RawMessage) gateway.Result {
		del = body
		return gatewaytest.OK(map[string]any{"success": true})
	})
	uploads := 0
	f.Handle(http.MethodPost, "/listings/5/images", func(json.RawMessage) gateway.Result {
		uploads++
		if uploads == 2 {
			return gatewaytest.Offline()
		}
		return gatewaytest.OK(map[string]any{"success": true})
	})
	svc := NewService(f, user(7))
	ctx := context.Background()

	ed, err := svc.Edit(ctx, 5)
	require.NoError(t, err)
	ed.Form.Title = "Road bike, 56cm"
	require.NoError(t, ed.Images.ToggleDelete(1))
	_, err = ed.Images.Add("front.png", png("front"))
	require.NoError(t, err)
	_, err = ed.Images.Add("back.jpg", jpeg("back"))
	require.NoError(t, err)

	err = ed.Submit(ctx, "02134")
	require.Error(t, err)

	// every step ran despite the first failing
	assert.JSONEq(t, `{"title":"Road bike, 56cm","description":"Barely ridden.","price":250.00,"condition":"Like new","type":"local","zip":2134}`, string(put))
	assert.JSONEq(t, `{"images":["/img/2"]}`, string(del))
	assert.Equal(t, 2, uploads)

	var ae *internal.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "Title is not allowed", ae.Message)
	var te *internal.TransportError
	assert.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "back.jpg")
}

func TestEditSubmitValidatesFirst(t *testing.T) {
	f := listingFake(7)
	svc := NewService(f, user(7))
	ed, err := svc.Edit(context.Background(), 5)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, ed.Images.ToggleDelete(i))
	}
	err = ed.Submit(context.Background(), "")

	var ve *internal.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"Location must be set", "At least one image is required"}, ve.Problems)
	assert.Len(t, f.Calls(), 1)
}

func TestCreateUploadsEachImage(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/listings", func(body json.RawMessage) gateway.Result {
		assert.True(t, bytes.Contains(body, []byte(`"zip":90210`)))
		return gatewaytest.OK(map[string]any{"success": true, "id": 12})
	})
	f.JSON(http.MethodPost, "/listings/12/images", map[string]any{"success": true})
	svc := NewService(f, user(7))

	images := NewImageSet(nil)
	_, err := images.Add("a.png", png("a"))
	require.NoError(t, err)
	_, err = images.Add("b.png", png("b"))
	require.NoError(t, err)

	id, err := svc.Create(context.Background(), goodForm(), images, "90210")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, 2, f.Count(http.MethodPost, "/listings/12/images"))
}

func TestSearch(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/listings/search?page=2", func(body json.RawMessage) gateway.Result {
		assert.JSONEq(t, `{"query":"bike","zipCode":"90210","type":"both"}`, string(body))
		return gatewaytest.OK(map[string]any{
			"success":        true,
			"listings":       []map[string]any{{"id": 1, "title": "Bike", "price": 12.5}},
			"estimatedPages": 3,
		})
	})
	f.Handle(http.MethodPost, "/listings/search?page=1", func(body json.RawMessage) gateway.Result {
		assert.JSONEq(t, `{"query":"bike","type":"both"}`, string(body))
		return gatewaytest.OK(map[string]any{"success": true, "listings": []any{}, "estimatedPages": 0})
	})
	svc := NewService(f, user(7))
	ctx := context.Background()

	p, err := svc.Search(ctx, Query{Text: "bike", Zip: "90210", Page: 2})
	require.NoError(t, err)
	require.Len(t, p.Listings, 1)
	assert.Equal(t, "12.5", p.Listings[0].Price.String())
	assert.Equal(t, 3, p.EstimatedPages)

	p, err = svc.Search(ctx, Query{Text: "bike"})
	require.NoError(t, err)
	assert.Empty(t, p.Listings)
	assert.Equal(t, 1, p.EstimatedPages)
}

func TestArchiveAndDelete(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/listings/5/archive", func(body json.RawMessage) gateway.Result {
		assert.JSONEq(t, `{"archived":true}`, string(body))
		return gatewaytest.OK(map[string]any{"success": true})
	})
	f.Handle(http.MethodDelete, "/listings/5", func(json.RawMessage) gateway.Result { return gatewaytest.Offline() })
	f.JSON(http.MethodGet, "/listings/user", map[string]any{"success": true, "listings": []map[string]any{{"id": 5, "archived": true}}})
	svc := NewService(f, user(7))
	ctx := context.Background()

	require.NoError(t, svc.Archive(ctx, 5, true))
	assert.EqualError(t, svc.Delete(ctx, 5), "Something went wrong while deleting the listing. Please try again later.")

	mine, err := svc.Mine(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Archived)
}
