package location

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/gateway/gatewaytest"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"02134":  "02134",
		"2134":   "02134",
		"7":      "00007",
		"123456": "23456",
		"90210x": "90210",
		"abc":    "",
		"":       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestOpenMissingIsGlobal(t *testing.T) {
	s, err := Open(NewMemoryStorage())
	require.NoError(t, err)
	assert.Equal(t, "", s.Zip())
	assert.Equal(t, "Global", s.Label())
}

func TestOpenPadsStoredValue(t *testing.T) {
	st := NewMemoryStorage()
	require.NoError(t, st.Set(StorageKey, "2134"))
	s, err := Open(st)
	require.NoError(t, err)
	assert.Equal(t, "02134", s.Zip())
}

func TestSetValidatesAndPersists(t *testing.T) {
	st := NewMemoryStorage()
	s, err := Open(st)
	require.NoError(t, err)

	var seen []string
	cancel := s.Subscribe(func(z string) { seen = append(seen, z) })
	defer cancel()

	assert.ErrorIs(t, s.Set("1234"), ErrInvalidZip)
	assert.ErrorIs(t, s.Set("12a45"), ErrInvalidZip)
	assert.Equal(t, "", s.Zip())

	require.NoError(t, s.Set("90210"))
	assert.Equal(t, "90210", s.Zip())
	v, ok, _ := st.Get(StorageKey)
	assert.True(t, ok)
	assert.Equal(t, "90210", v)

	require.NoError(t, s.Set(""))
	_, ok, _ = st.Get(StorageKey)
	assert.False(t, ok)
	assert.Equal(t, []string{"90210", ""}, seen)
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "storage.json")

	fs, err := OpenFile(path)
	require.NoError(t, err)
	s, err := Open(fs)
	require.NoError(t, err)
	require.NoError(t, s.Set("02134"))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"zip":"02134"}`, string(b))

	fs2, err := OpenFile(path)
	require.NoError(t, err)
	s2, err := Open(fs2)
	require.NoError(t, err)
	assert.Equal(t, "02134", s2.Zip())
}

func TestConfirmerCheck(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/location/check", func(body json.RawMessage) gateway.Result {
		var in struct{ Zip string }
		_ = json.Unmarshal(body, &in)
		return gatewaytest.OK(map[string]any{"success": true, "result": in.Zip == "90210"})
	})
	c := NewConfirmer(f)
	s, _ := Open(NewMemoryStorage())
	ctx := context.Background()

	assert.ErrorIs(t, c.SetManual(ctx, s, "00000"), ErrNotFound)
	assert.Equal(t, "", s.Zip())

	require.NoError(t, c.SetManual(ctx, s, "90210"))
	assert.Equal(t, "90210", s.Zip())

	assert.ErrorIs(t, c.Check(ctx, "123"), ErrInvalidZip)
	assert.Equal(t, 2, f.Count(http.MethodPost, "/location/check"))
}

func TestConfirmerCheckOffline(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/location/check", func(json.RawMessage) gateway.Result {
		return gatewaytest.Offline()
	})
	err := NewConfirmer(f).Check(context.Background(), "90210")
	assert.EqualError(t, err, "Something went wrong while verifying your ZIP code. Please try again later.")
	assert.True(t, internal.Retryable(err))
}

func TestDetect(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/location/zip", func(body json.RawMessage) gateway.Result {
		var pos Coordinates
		_ = json.Unmarshal(body, &pos)
		if pos.Lat == 34.09 && pos.Long == -118.41 {
			return gatewaytest.OK(map[string]any{"success": true, "zip": "90210"})
		}
		return gatewaytest.Status(http.StatusBadRequest, map[string]any{"error": "Unknown location"})
	})
	c := NewConfirmer(f)
	s, _ := Open(NewMemoryStorage())
	ctx := context.Background()

	_, err := c.Detect(ctx, s, nil)
	assert.ErrorIs(t, err, ErrDetectUnavailable)

	zip, err := c.Detect(ctx, s, Fixed{Lat: 34.09, Long: -118.41})
	require.NoError(t, err)
	assert.Equal(t, "90210", zip)
	assert.Equal(t, "90210", s.Zip())

	_, err = c.Detect(ctx, s, Fixed{Lat: 1, Long: 1})
	assert.EqualError(t, err, "Unknown location")
	assert.Equal(t, "90210", s.Zip())
}

func TestResolveAcceptsNumericZip(t *testing.T) {
	f := gatewaytest.New()
	f.Handle(http.MethodPost, "/location/zip", func(body json.RawMessage) gateway.Result {
		var pos Coordinates
		_ = json.Unmarshal(body, &pos)
		if pos.Lat > 42 {
			return gatewaytest.OK(map[string]any{"success": true, "zip": 2134})
		}
		return gatewaytest.OK(map[string]any{"success": true, "zip": "02134"})
	})
	c := NewConfirmer(f)
	ctx := context.Background()

	zip, err := c.Resolve(ctx, Coordinates{Lat: 42.35, Long: -71.13})
	require.NoError(t, err)
	assert.Equal(t, "02134", zip)

	zip, err = c.Resolve(ctx, Coordinates{Lat: 40, Long: -71.13})
	require.NoError(t, err)
	assert.Equal(t, "02134", zip)
}
