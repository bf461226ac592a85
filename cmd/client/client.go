// Command client is a small CLI demo for talking to cmd/server over the
// internal/net wire protocol: place orders, cancel one, or ask the server
// to log its book.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledgerbook/internal/book"
	ledgernet "ledgerbook/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matching server")
	owner := flag.String("owner", "", "owner username (compulsory)")
	action := flag.String("action", "place", "action to perform: place, cancel, log")

	pair := flag.String("pair", "ETH/USDT", "trading pair symbol")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit or market")
	price := flag.String("price", "100.0", "limit price (ignored for market orders)")
	qtyStr := flag.String("qty", "10", "quantity, or a comma-separated list, e.g. 10,20,50")

	cancelID := flag.Int64("id", 0, "order id to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *owner)

	go readReports(conn)

	side := book.Buy
	if strings.EqualFold(*sideStr, "sell") {
		side = book.Sell
	}
	orderType := book.Limit
	if strings.EqualFold(*typeStr, "market") {
		orderType = book.Market
	}

	switch strings.ToLower(*action) {
	case "place":
		for _, qty := range parseQuantities(*qtyStr) {
			if err := sendPlaceOrder(conn, *owner, *pair, orderType, *price, qty, side); err != nil {
				log.Printf("failed to place order (qty %s): %v", qty, err)
			} else {
				fmt.Printf("-> sent %s %s %s @ %s\n", strings.ToUpper(*sideStr), *pair, qty, *price)
			}
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *cancelID == 0 {
			log.Fatal("Error: -id is required for cancellation")
		}
		if err := sendCancelOrder(conn, *cancelID, *pair); err != nil {
			log.Printf("failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> sent cancel request for order %d\n", *cancelID)
		}

	case "log":
		if err := sendLog(conn); err != nil {
			log.Printf("failed to send log request: %v", err)
		} else {
			fmt.Println("-> sent log request")
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for reports... (Ctrl+C to exit)")
	select {}
}

// parseQuantities splits a comma-separated string into decimal quantities.
func parseQuantities(input string) []string {
	parts := strings.Split(input, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if _, err := decimal.NewFromString(p); err == nil {
			result = append(result, p)
		} else {
			log.Printf("warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

func sendPlaceOrder(conn net.Conn, owner, pair string, orderType book.Type, price, qty string, side book.Side) error {
	msg := ledgernet.NewOrderMessage{
		ClientRef: uuid.New(),
		Pair:      pair,
		Side:      side,
		Type:      orderType,
		Quantity:  qty,
		Username:  owner,
	}
	if orderType == book.Limit {
		msg.Price = price
	}
	_, err := conn.Write(msg.Serialize())
	return err
}

func sendCancelOrder(conn net.Conn, id int64, pair string) error {
	msg := ledgernet.CancelOrderMessage{OrderID: id, Pair: pair}
	_, err := conn.Write(msg.Serialize())
	return err
}

func sendLog(conn net.Conn) error {
	buf := []byte{0, byte(ledgernet.LogBook)}
	_, err := conn.Write(buf)
	return err
}

// readReports continuously reads and prints Report messages from the
// server. Each report is expected to arrive in a single read, matching the
// server's own one-read-per-message framing.
func readReports(conn net.Conn) {
	buf := make([]byte, ledgernet.MaxRecvSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			log.Printf("connection lost: %v", err)
			os.Exit(0)
		}

		report, err := ledgernet.ParseReport(buf[:n])
		if err != nil {
			log.Printf("error parsing report: %v", err)
			continue
		}

		switch report.Type {
		case ledgernet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", report.Err)
		case ledgernet.AckReport:
			fmt.Printf("\n[ACK] order %d accepted on %s\n", report.OrderID, report.Pair)
		case ledgernet.ExecutionReport:
			sideStr := "BUY"
			if report.Side == book.Sell {
				sideStr = "SELL"
			}
			fmt.Printf("\n[EXECUTION] %s %s | qty %s | price %s | order %d\n",
				sideStr, report.Pair, report.Quantity, report.Price, report.OrderID)
		}
	}
}
