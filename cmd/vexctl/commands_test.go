package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	"github.com/rexlx/vexmarket/internal/config"
	"github.com/rexlx/vexmarket/internal/devserver"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/session"
)

func TestParseCoordinates(t *testing.T) {
	pos, err := parseCoordinates("47.61, -122.33")
	require.NoError(t, err)
	assert.InDelta(t, 47.61, pos.Lat, 1e-9)
	assert.InDelta(t, -122.33, pos.Long, 1e-9)

	for _, in := range []string{"", "47.61", "north,-122", "47.61,west"} {
		_, err := parseCoordinates(in)
		assert.Error(t, err, in)
	}
}

func testEnv(t *testing.T) (*env, *devserver.Server, *bytes.Buffer) {
	t.Helper()
	srv := devserver.NewServer("test-key", devserver.WithHashCost(bcrypt.MinCost))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	gw, err := gateway.New(ts.URL)
	require.NoError(t, err)
	sess := session.New(gw, nil)
	out := &bytes.Buffer{}
	return &env{
		cfg: &config.Config{
			APIBaseURL: ts.URL,
			SocketURL:  "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
			Profile:    "test",
			StorageDir: t.TempDir(),
		},
		gw:      gw,
		session: sess,
		account: account.NewService(gw, sess),
		out:     out,
	}, srv, out
}

func TestSearchFollowsStoredLocation(t *testing.T) {
	e, srv, out := testEnv(t)
	ctx := context.Background()
	seller, err := srv.AddUser("sam@example.com", "Passw0rdX", "Sam", "Seller")
	require.NoError(t, err)
	srv.AddListing(seller, internal.Listing{Title: "Road bike", Description: "fast", Price: "350.00", Type: internal.DeliveryLocal, Condition: "Good"}, "98101")
	srv.AddListing(seller, internal.Listing{Title: "Bike rack", Description: "roof", Price: "40.00", Type: internal.DeliveryLocal, Condition: "Used"}, "10001")

	require.NoError(t, cmdLocation(ctx, e, []string{"-zip", "98101"}))
	assert.Contains(t, out.String(), "Location: 98101")

	out.Reset()
	require.NoError(t, cmdSearch(ctx, e, []string{"-q", "bike"}))
	assert.Contains(t, out.String(), "Road bike")
	assert.NotContains(t, out.String(), "Bike rack")

	out.Reset()
	require.NoError(t, cmdLocation(ctx, e, []string{"-clear"}))
	assert.Contains(t, out.String(), "Location: Global")

	out.Reset()
	require.NoError(t, cmdSearch(ctx, e, []string{"-q", "bike"}))
	assert.Contains(t, out.String(), "Road bike")
	assert.Contains(t, out.String(), "Bike rack")
	assert.Contains(t, out.String(), "page 1 of 1")
}

func TestLocationRejectsUnknownZip(t *testing.T) {
	e, _, _ := testEnv(t)
	err := cmdLocation(context.Background(), e, []string{"-zip", "00000"})
	require.Error(t, err)
}

func TestSendAndHistory(t *testing.T) {
	e, srv, out := testEnv(t)
	ctx := context.Background()
	seller, err := srv.AddUser("sam@example.com", "Passw0rdX", "Sam", "Seller")
	require.NoError(t, err)
	_, err = srv.AddUser("bea@example.com", "Passw0rdX", "Bea", "Buyer")
	require.NoError(t, err)
	post := srv.AddListing(seller, internal.Listing{Title: "Oak desk", Description: "solid", Price: "120.00", Type: internal.DeliveryLocal, Condition: "Used"}, "60601")

	creds := []string{"-email", "bea@example.com", "-pass", "Passw0rdX"}
	require.NoError(t, cmdSend(ctx, e, append(creds, "-listing", strconv.FormatInt(post, 10), "-m", "Still for sale?")))
	chatID := strings.TrimSpace(strings.TrimPrefix(out.String(), "chat"))
	require.NotEmpty(t, chatID)

	out.Reset()
	require.NoError(t, cmdHistory(ctx, e, append(creds, "-chat", chatID)))
	assert.Contains(t, out.String(), "Sam Seller about \"Oak desk\"")
	assert.Contains(t, out.String(), "You: Still for sale?")
}

func TestLoginFailureIsWrapped(t *testing.T) {
	e, _, _ := testEnv(t)
	err := cmdWhoami(context.Background(), e, []string{"-email", "nobody@example.com", "-pass", "Passw0rdX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging in")
	assert.Contains(t, internal.Describe(err), "Invalid email or password")
}
