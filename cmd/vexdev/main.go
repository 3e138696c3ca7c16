package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/devserver"
	"github.com/rexlx/vexmarket/internal/logging"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("VEXDEV_ADDR", ":8085"), "listen address")
	key := flag.String("key", os.Getenv("VEXDEV_KEY"), "token signing key (random when empty)")
	logFile := flag.String("log-file", "", "log to this file instead of stderr")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	firstUse := flag.Bool("firstuse", false, "prompt for a first account before serving")
	seed := flag.Bool("seed", false, "create demo accounts and listings")
	rps := flag.Float64("rps", 20, "requests per second allowed per IP")
	burst := flag.Int("burst", 40, "request burst allowed per IP")
	certFile := flag.String("tls-cert", "", "serve TLS with this certificate")
	keyFile := flag.String("tls-key", "", "private key for -tls-cert")
	flag.Parse()

	logger, closer, err := logging.New(logging.Options{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error opening log file:", err)
		os.Exit(1)
	}
	defer closer.Close()

	if *key == "" {
		*key = randomKey()
		logger.Warn("no signing key configured, using a random one")
	}

	srv := devserver.NewServer(*key,
		devserver.WithLogger(logger),
		devserver.WithRateLimit(*rps, *burst))
	defer srv.Close()

	if *firstUse {
		if err := createFirstUser(srv); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
	if *seed {
		if err := seedDemo(srv); err != nil {
			logger.Error("seeding demo data", "error", err)
			os.Exit(1)
		}
		logger.Info("demo data loaded", "accounts", "sam@example.com, bea@example.com", "password", demoPassword)
	}

	hs := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.DropSockets()
		_ = hs.Shutdown(shutdown)
	}()

	logger.Info("dev backend listening", "addr", *addr, "tls", *certFile != "")
	if *certFile != "" {
		err = hs.ListenAndServeTLS(*certFile, *keyFile)
	} else {
		err = hs.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func randomKey() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func createFirstUser(srv *devserver.Server) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("--- FIRST USE SETUP ---")

	prompt := func(label string) string {
		fmt.Print(label)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}
	email := prompt("Enter Email: ")
	password := prompt("Enter Password: ")
	first := prompt("Enter First Name: ")
	last := prompt("Enter Last Name: ")

	if email == "" || password == "" {
		return errors.New("email and password are required")
	}
	if _, err := srv.AddUser(email, password, first, last); err != nil {
		return err
	}
	fmt.Println("Created account:", email)
	return nil
}

const demoPassword = "Passw0rdX"

func seedDemo(srv *devserver.Server) error {
	sam, err := srv.AddUser("sam@example.com", demoPassword, "Sam", "Seller")
	if err != nil {
		return err
	}
	if _, err := srv.AddUser("bea@example.com", demoPassword, "Bea", "Buyer"); err != nil {
		return err
	}
	demo := []struct {
		l   internal.Listing
		zip string
	}{
		{internal.Listing{Title: "Road bike", Description: "56cm aluminium frame, new tires.", Price: "350.00", Type: internal.DeliveryLocal, Condition: "Good"}, "10001"},
		{internal.Listing{Title: "Oak desk", Description: "Solid oak, two drawers.", Price: "120.00", Type: internal.DeliveryLocal, Condition: "Used"}, "60601"},
		{internal.Listing{Title: "Film camera", Description: "35mm rangefinder, tested.", Price: "89.99", Type: internal.DeliveryBoth, Condition: "Like new"}, "94103"},
		{internal.Listing{Title: "Vinyl records", Description: "Box of 40 jazz LPs.", Price: "60.00", Type: internal.DeliveryShipping, Condition: "Used"}, "98101"},
	}
	for _, d := range demo {
		srv.AddListing(sam, d.l, d.zip)
	}
	return nil
}
