// Package main provides a CLI client for the matching engine: it speaks
// the engine's CSV-over-UDP wire protocol, for manual exercise and load
// testing.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "engine UDP address")

	sendCmd := flag.NewFlagSet("send", flag.ExitOnError)

	orderCmd := flag.NewFlagSet("order", flag.ExitOnError)
	orderUser := orderCmd.String("user", "u1", "user id")
	orderID := orderCmd.Uint64("id", 1, "client order id")
	orderSymbol := orderCmd.String("symbol", "AAPL", "symbol")
	orderQty := orderCmd.Int64("qty", 100, "quantity")
	orderSide := orderCmd.String("side", "BUY", "side (BUY/SELL)")
	orderType := orderCmd.String("type", "LIMIT", "type (MARKET/LIMIT)")
	orderPrice := orderCmd.String("price", "150.00", "limit price (ignored for MARKET)")

	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	cancelUser := cancelCmd.String("user", "u1", "user id")
	cancelID := cancelCmd.Uint64("id", 1, "client order id of this cancel request")
	cancelSymbol := cancelCmd.String("symbol", "AAPL", "symbol")
	cancelOrig := cancelCmd.Uint64("orig", 1, "order id to cancel")

	topCmd := flag.NewFlagSet("top", flag.ExitOnError)
	topUser := topCmd.String("user", "u1", "user id")
	topID := topCmd.Uint64("id", 1, "client order id of this query")
	topSymbol := topCmd.String("symbol", "AAPL", "symbol")

	benchCmd := flag.NewFlagSet("bench", flag.ExitOnError)
	benchN := benchCmd.Int("n", 10000, "number of orders to fire")
	benchRate := benchCmd.Int("rate", 0, "orders per second, 0 = unthrottled")
	benchSymbols := benchCmd.String("symbols", "AAPL,GOOGL,MSFT,AMZN,TSLA", "comma-separated symbols")
	benchSeed := benchCmd.Int64("seed", 0, "PRNG seed, 0 = time-based")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	flag.CommandLine.Parse(pickGlobalFlags(os.Args[1:]))

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	rest := commandArgs(os.Args[1:])

	switch command(os.Args[1:]) {
	case "send":
		sendCmd.Parse(rest)
		if sendCmd.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "send requires exactly one CSV line argument")
			os.Exit(1)
		}
		sendLine(conn, sendCmd.Arg(0))

	case "order":
		orderCmd.Parse(rest)
		line := fmt.Sprintf("D, %s, %d, %s, %d, %s, %s", *orderUser, *orderID, *orderSymbol, *orderQty, *orderSide, *orderType)
		if strings.EqualFold(*orderType, "LIMIT") {
			line += ", " + *orderPrice
		}
		sendLine(conn, line)

	case "cancel":
		cancelCmd.Parse(rest)
		sendLine(conn, fmt.Sprintf("F, %s, %d, %s, %d", *cancelUser, *cancelID, *cancelSymbol, *cancelOrig))

	case "top":
		topCmd.Parse(rest)
		sendLine(conn, fmt.Sprintf("V, %s, %d, %s", *topUser, *topID, *topSymbol))

	case "quit":
		sendLine(conn, "Q")

	case "demo":
		runDemo(conn)

	case "bench":
		benchCmd.Parse(rest)
		runBench(conn, *benchN, *benchRate, strings.Split(*benchSymbols, ","), *benchSeed)

	default:
		printUsage()
		os.Exit(1)
	}
}

// command returns the first non-flag argument (the subcommand).
func command(args []string) string {
	if i := len(pickGlobalFlags(args)); i < len(args) {
		return args[i]
	}
	return ""
}

// pickGlobalFlags returns the leading flags before the subcommand, so
// "client -addr host:port order ..." parses -addr globally. A flag
// written without "=" takes the next argument as its value.
func pickGlobalFlags(args []string) []string {
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "-") {
			return args[:i]
		}
		if !strings.Contains(args[i], "=") {
			i++
		}
	}
	return args
}

// commandArgs returns everything after the subcommand.
func commandArgs(args []string) []string {
	if i := len(pickGlobalFlags(args)); i < len(args) {
		return args[i+1:]
	}
	return nil
}

func sendLine(conn net.Conn, line string) {
	if _, err := conn.Write([]byte(line)); err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sent: %s\n", line)
}

// runDemo fires a short scripted sequence exercising resting, crossing,
// partial fills, price-time priority, cancellation, and top-of-book.
// Watch the engine's stdout for the matching reports.
func runDemo(conn net.Conn) {
	script := []string{
		// Rest a bid, query, cancel it.
		"D, u1, 1001, AAPL, 100, BUY, LIMIT, 150.00",
		"V, u1, 1001, AAPL",
		"F, u1, 1001, AAPL, 1001",
		// Market order into an empty book: immediate fill-and-kill.
		"D, u1, 1003, AAPL, 100, BUY, MARKET",
		// Rest an ask, cross it partially, check the remainder.
		"D, u2, 2001, AAPL, 100, SELL, LIMIT, 150.00",
		"D, u1, 2002, AAPL, 50, BUY, LIMIT, 151.00",
		"V, u1, 2002, AAPL",
		// Price-time priority across four resting asks.
		"D, u3, 6001, AAPL, 50, SELL, LIMIT, 150.00",
		"D, u3, 6002, AAPL, 30, SELL, LIMIT, 150.00",
		"D, u3, 6003, AAPL, 40, SELL, LIMIT, 149.50",
		"D, u3, 6004, AAPL, 20, SELL, LIMIT, 149.00",
		"D, u4, 6005, AAPL, 100, BUY, LIMIT, 151.00",
		"V, u4, 6005, AAPL",
	}
	for _, line := range script {
		sendLine(conn, line)
		time.Sleep(50 * time.Millisecond)
	}
}

// runBench fires n random events, optionally rate-limited. Roughly one
// in ten is a top-of-book query; prices walk a small band so orders
// actually cross.
func runBench(conn net.Conn, n, rate int, symbols []string, seed int64) {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var interval time.Duration
	if rate > 0 {
		interval = time.Second / time.Duration(rate)
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		symbol := strings.TrimSpace(symbols[rng.Intn(len(symbols))])
		id := uint64(i + 1)

		var line string
		if i%10 == 9 {
			line = fmt.Sprintf("V, bench, %d, %s", id, symbol)
		} else {
			side := "BUY"
			if rng.Intn(2) == 1 {
				side = "SELL"
			}
			qty := 10 + rng.Intn(490)
			price := 145.0 + float64(rng.Intn(1000))/100.0
			line = fmt.Sprintf("D, bench, %d, %s, %d, %s, LIMIT, %.2f", id, symbol, qty, side, price)
		}

		if _, err := conn.Write([]byte(line)); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			os.Exit(1)
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("fired %d events in %s (%.0f/s), seed %d\n", n, elapsed, float64(n)/elapsed.Seconds(), seed)
}

func printUsage() {
	fmt.Println(`Matching Engine Client

Usage:
  client [-addr host:port] <command> [options]

Commands:
  send      Send one raw CSV event line
  order     Send a new-order event
  cancel    Send a cancel event
  top       Send a top-of-book query
  quit      Send the quit event
  demo      Run a scripted demonstration sequence
  bench     Fire random load at the engine

Examples:
  client -addr 127.0.0.1:9000 order -symbol AAPL -side BUY -qty 100 -price 150.00
  client send "D, u1, 1, AAPL, 100, BUY, LIMIT, 150.00"
  client bench -n 100000 -rate 50000`)
}
