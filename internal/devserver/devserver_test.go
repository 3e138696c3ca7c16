package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	chatpkg "github.com/rexlx/vexmarket/internal/chat"
	"github.com/rexlx/vexmarket/internal/gateway"
	listingpkg "github.com/rexlx/vexmarket/internal/listing"
	"github.com/rexlx/vexmarket/internal/location"
	"github.com/rexlx/vexmarket/internal/notify"
	"github.com/rexlx/vexmarket/internal/realtime"
	"github.com/rexlx/vexmarket/internal/session"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func start(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer("test-key", append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

// user is one logged in client against the test server.
type user struct {
	id      int64
	gw      *gateway.Gateway
	session *session.Store
	account *account.Service
}

func login(t *testing.T, srv *Server, ts *httptest.Server, first string) user {
	t.Helper()
	email := strings.ToLower(first) + "@example.com"
	id, err := srv.AddUser(email, "Passw0rdX", first, "Tester")
	require.NoError(t, err)

	gw, err := gateway.New(ts.URL)
	require.NoError(t, err)
	sess := session.New(gw, nil)
	acct := account.NewService(gw, sess)
	require.NoError(t, acct.Login(context.Background(), email, "Passw0rdX"))
	require.True(t, sess.Current().LoggedIn)
	return user{id: id, gw: gw, session: sess, account: acct}
}

func socketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func channel(t *testing.T, ts *httptest.Server, u user) *realtime.Channel {
	t.Helper()
	ch := realtime.New(socketURL(ts),
		realtime.WebsocketDialer{Jar: u.gw.CookieJar()},
		realtime.GatewayTokens{Req: u.gw},
		realtime.WithReconnectDelay(20*time.Millisecond))
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestLoginAndLogout(t *testing.T) {
	srv, ts := start(t)
	u := login(t, srv, ts, "Ada")
	ctx := context.Background()

	cur := u.session.Current()
	require.NotNil(t, cur.FirstName)
	assert.Equal(t, "Ada", *cur.FirstName)
	assert.Equal(t, u.id, u.session.UserID())
	assert.Equal(t, 0, u.session.Unread())

	require.NoError(t, u.account.Logout(ctx))
	assert.False(t, u.session.Current().LoggedIn)

	err := u.account.Login(ctx, "ada@example.com", "Wr0ngPassword")
	var ae *internal.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "Invalid email or password", ae.Message)
}

func TestRegisterVerifyAndReset(t *testing.T) {
	srv, ts := start(t)
	gw, err := gateway.New(ts.URL)
	require.NoError(t, err)
	sess := session.New(gw, nil)
	acct := account.NewService(gw, sess)
	ctx := context.Background()

	require.NoError(t, acct.Register(ctx, account.Registration{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Password: "Passw0rdX", Confirm: "Passw0rdX",
	}))
	err = acct.Register(ctx, account.Registration{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com", Password: "Passw0rdX", Confirm: "Passw0rdX",
	})
	assert.EqualError(t, err, "An account with that email already exists")

	assert.EqualError(t, acct.Login(ctx, "grace@example.com", "Passw0rdX"), "Please verify your email before logging in")

	srv.mu.RLock()
	var verifyToken string
	for tok := range srv.verify {
		verifyToken = tok
	}
	srv.mu.RUnlock()
	require.NoError(t, acct.Verify(ctx, verifyToken))
	assert.Error(t, acct.Verify(ctx, verifyToken), "tokens are single use")

	require.NoError(t, acct.RequestReset(ctx, "grace@example.com"))
	srv.mu.RLock()
	var resetToken string
	for tok := range srv.resets {
		resetToken = tok
	}
	srv.mu.RUnlock()

	assert.EqualError(t, acct.CheckResetToken(ctx, "nope"), "The reset link is invalid.")
	require.NoError(t, acct.CheckResetToken(ctx, resetToken))
	require.NoError(t, acct.ResetPassword(ctx, resetToken, "N3wPassword", "N3wPassword"))

	assert.Error(t, acct.Login(ctx, "grace@example.com", "Passw0rdX"))
	require.NoError(t, acct.Login(ctx, "grace@example.com", "N3wPassword"))
	assert.True(t, sess.Current().LoggedIn)

	require.NoError(t, acct.ChangePassword(ctx, "Th1rdPassword", "Th1rdPassword"))
	assert.True(t, sess.Current().LoggedIn)
}

func TestListingLifecycle(t *testing.T) {
	srv, ts := start(t)
	seller := login(t, srv, ts, "Sam")
	buyer := login(t, srv, ts, "Bea")
	ctx := context.Background()

	svc := listingpkg.NewService(seller.gw, seller.session)
	images := listingpkg.NewImageSet(nil)
	_, err := images.Add("front.png", pngBytes)
	require.NoError(t, err)

	form := listingpkg.Form{
		Title:       "Road bike",
		Description: "Lightly used, 56cm frame",
		Price:       "$350",
		Condition:   "Good",
		Type:        internal.DeliveryLocal,
	}
	id, err := svc.Create(ctx, form, images, "10001")
	require.NoError(t, err)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Road bike", got.Title)
	assert.Equal(t, "New York, NY", got.ZipFriendly)
	assert.Equal(t, seller.id, got.AuthorID)
	require.Len(t, got.Images, 1)
	firstImage := got.Images[0]

	res := seller.gw.Send(ctx, http.MethodGet, got.Images[0], nil)
	assert.True(t, res.Fetched)
	assert.Equal(t, http.StatusOK, res.Status)

	_, err = listingpkg.NewService(buyer.gw, buyer.session).Edit(ctx, id)
	assert.ErrorIs(t, err, internal.ErrForbidden)

	ed, err := svc.Edit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "350.00", ed.Form.Price)
	ed.Form.Title = "Road bike, new tires"
	_, err = ed.Images.Add("side.png", append(pngBytes, 1))
	require.NoError(t, err)
	require.NoError(t, ed.Images.ToggleDelete(0))
	require.NoError(t, ed.Submit(ctx, "10001"))

	got, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Road bike, new tires", got.Title)
	require.Len(t, got.Images, 1)
	assert.NotEqual(t, firstImage, got.Images[0])

	search := listingpkg.NewService(buyer.gw, buyer.session)
	page, err := search.Search(ctx, listingpkg.Query{Text: "tires", Zip: "10001"})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)
	assert.Equal(t, 1, page.EstimatedPages)

	page, err = search.Search(ctx, listingpkg.Query{Text: "tires", Zip: "94103"})
	require.NoError(t, err)
	assert.Empty(t, page.Listings)

	require.NoError(t, svc.Archive(ctx, id, true))
	page, err = search.Search(ctx, listingpkg.Query{Text: "tires"})
	require.NoError(t, err)
	assert.Empty(t, page.Listings)

	mine, err := svc.Mine(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.True(t, mine[0].Archived)

	require.NoError(t, svc.Delete(ctx, id))
	_, err = svc.Get(ctx, id)
	assert.EqualError(t, err, "Listing not found")
}

func TestSearchPaging(t *testing.T) {
	srv, ts := start(t)
	u := login(t, srv, ts, "Pat")
	for i := range 45 {
		srv.AddListing(u.id, internal.Listing{Title: fmt.Sprintf("Lamp %d", i), Description: "desk lamp", Price: "10", Type: internal.DeliveryBoth, Condition: "Used"}, "60601")
	}
	svc := listingpkg.NewService(u.gw, u.session)

	p1, err := svc.Search(context.Background(), listingpkg.Query{Text: "lamp"})
	require.NoError(t, err)
	assert.Len(t, p1.Listings, 20)
	assert.Equal(t, 3, p1.EstimatedPages)

	p3, err := svc.Search(context.Background(), listingpkg.Query{Text: "lamp", Page: 3})
	require.NoError(t, err)
	assert.Len(t, p3.Listings, 5)
}

func TestLocationConfirm(t *testing.T) {
	_, ts := start(t)
	gw, err := gateway.New(ts.URL)
	require.NoError(t, err)
	store, err := location.Open(location.NewMemoryStorage())
	require.NoError(t, err)
	c := location.NewConfirmer(gw)
	ctx := context.Background()

	require.NoError(t, c.SetManual(ctx, store, "10001"))
	assert.Equal(t, "10001", store.Zip())

	assert.ErrorIs(t, c.SetManual(ctx, store, "99999"), location.ErrNotFound)
	assert.Equal(t, "10001", store.Zip())

	zip, err := c.Detect(ctx, store, location.Fixed{Lat: 47.6, Long: -122.3})
	require.NoError(t, err)
	assert.Equal(t, "98101", zip)
	assert.Equal(t, "98101", store.Zip())
}

type sink struct {
	mu   sync.Mutex
	msgs []internal.Message
}

func (s *sink) ReceiveLive(m internal.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestConversationEndToEnd(t *testing.T) {
	srv, ts := start(t)
	seller := login(t, srv, ts, "Sam")
	buyer := login(t, srv, ts, "Bea")
	ctx := context.Background()

	postID := srv.AddListing(seller.id, internal.Listing{
		Title: "Road bike", Description: "56cm", Price: "350", Type: internal.DeliveryLocal, Condition: "Good",
	}, "10001")

	ch := channel(t, ts, seller)
	var (
		mu      sync.Mutex
		notices []internal.Notice
	)
	sellerChats := chatpkg.NewClient(seller.gw)
	d := notify.New(seller.session, sellerChats, func(n internal.Notice) {
		mu.Lock()
		notices = append(notices, n)
		mu.Unlock()
	}, nil)
	d.Attach(ctx, ch)
	ch.Start()
	require.Eventually(t, func() bool { return srv.SocketsFor(seller.id) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, internal.Authenticated, ch.State())

	buyerChats := chatpkg.NewClient(buyer.gw)
	chatID, err := buyerChats.Start(ctx, postID, "Is this still available?")
	require.NoError(t, err)

	// not open on the seller's side: a toast and an unread conversation
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notices) == 1
	}, 2*time.Second, 10*time.Millisecond)
	d.Wait()
	mu.Lock()
	assert.Equal(t, internal.Notice{ChatID: chatID, Title: "Road bike", Body: "Is this still available?"}, notices[0])
	mu.Unlock()
	assert.Equal(t, 1, seller.session.Unread())

	// open on the seller's side: delivered to the view and marked read
	view := &sink{}
	closeView := d.Open(chatID, view)
	defer closeView()
	require.NoError(t, buyerChats.Send(ctx, chatID, "I can pick it up today"))
	require.Eventually(t, func() bool { return view.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return seller.session.Unread() == 0 }, 2*time.Second, 10*time.Millisecond)
	d.Wait()

	list, err := sellerChats.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bea Tester", list[0].CounterpartyName)
	assert.False(t, list[0].Unread)
}

func TestHistoryPaging(t *testing.T) {
	srv, ts := start(t)
	seller := login(t, srv, ts, "Sam")
	buyer := login(t, srv, ts, "Bea")
	ctx := context.Background()

	postID := srv.AddListing(seller.id, internal.Listing{Title: "Desk", Description: "oak", Price: "80", Type: internal.DeliveryLocal, Condition: "Used"}, "60601")
	client := chatpkg.NewClient(buyer.gw)
	chatID, err := client.Start(ctx, postID, "hello 0")
	require.NoError(t, err)
	for i := 1; i < 30; i++ {
		require.NoError(t, client.Send(ctx, chatID, fmt.Sprintf("hello %d", i)))
	}

	s := chatpkg.NewSynchronizer(seller.gw, chatID)
	require.NoError(t, s.LoadInitial(ctx))
	snap := s.Snapshot()
	assert.Len(t, snap.Messages, internal.PageSize)
	assert.True(t, snap.HasMore)
	assert.Equal(t, "Bea Tester", snap.Info.CounterpartyName)
	require.NotNil(t, snap.Info.PostTitle)
	assert.Equal(t, "Desk", *snap.Info.PostTitle)
	assert.Equal(t, "hello 29", snap.Messages[len(snap.Messages)-1].Body())

	require.NoError(t, s.LoadOlder(ctx, s.Oldest()))
	snap = s.Snapshot()
	assert.Len(t, snap.Messages, 30)
	assert.False(t, snap.HasMore)
	assert.Equal(t, "hello 0", snap.Messages[0].Body())

	outsider := login(t, srv, ts, "Eve")
	err = chatpkg.NewSynchronizer(outsider.gw, chatID).LoadInitial(ctx)
	var ae *internal.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.Status)
}

func TestReconnectAfterServerDrop(t *testing.T) {
	srv, ts := start(t)
	u := login(t, srv, ts, "Sam")
	ch := channel(t, ts, u)

	var (
		mu    sync.Mutex
		drops int
	)
	ch.Subscribe(context.Background(), func(e realtime.Event) {
		if _, isDrop := e.(realtime.Disconnected); isDrop {
			mu.Lock()
			drops++
			mu.Unlock()
		}
	})
	ch.Start()
	require.Eventually(t, func() bool { return srv.SocketsFor(u.id) == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.DropSockets()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return drops >= 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.SocketsFor(u.id) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Sockets())
}

func TestLogoutReconnectsAnonymously(t *testing.T) {
	srv, ts := start(t)
	u := login(t, srv, ts, "Sam")
	ch := channel(t, ts, u)
	cancel := ch.FollowSession(u.session)
	defer cancel()
	ch.Start()
	require.Eventually(t, func() bool { return srv.SocketsFor(u.id) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, u.account.Logout(context.Background()))
	require.Eventually(t, func() bool {
		return srv.SocketsFor(u.id) == 0 && srv.SocketsFor(0) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return ch.State() == internal.Connected }, 2*time.Second, 10*time.Millisecond)
}

func TestRateLimit(t *testing.T) {
	_, ts := start(t, WithRateLimit(0.001, 2))
	gw, err := gateway.New(ts.URL)
	require.NoError(t, err)
	ctx := context.Background()

	for range 2 {
		assert.True(t, gw.Send(ctx, http.MethodPost, "/location/check", map[string]string{"zip": "10001"}).Success())
	}
	res := gw.Send(ctx, http.MethodPost, "/location/check", map[string]string{"zip": "10001"})
	assert.Equal(t, http.StatusTooManyRequests, res.Status)

	var ae *internal.AppError
	require.True(t, errors.As(res.Failure("checking"), &ae))
	assert.Equal(t, "too many requests - slow down", ae.Message)
}

func TestRateLimiterRetryAfterAndPrune(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	defer rl.Close()
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	ok, _ := rl.reserve("10.0.0.1")
	require.True(t, ok)
	ok, wait := rl.reserve("10.0.0.1")
	require.False(t, ok)
	assert.InDelta(t, 2*time.Second, wait, float64(10*time.Millisecond))

	ok, _ = rl.reserve("10.0.0.2")
	assert.True(t, ok, "buckets are per IP")

	now = now.Add(idleVisitor + time.Second)
	rl.prune()
	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}
