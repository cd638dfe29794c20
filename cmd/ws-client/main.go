// Command ws-client is an interactive test client that multiplexes many
// websocket sessions against one server and drives them from a small REPL.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wguerze/websocket-app/pkg/transport"
	wstransport "github.com/wguerze/websocket-app/pkg/transport/ws"
)

const maxBatchConnect = 20

type clientConn struct {
	id  int
	ch  transport.Channel
	out chan transport.Message
}

type client struct {
	url    string
	dialer *wstransport.Dialer

	mu     sync.Mutex
	conns  map[int]*clientConn
	nextID int
}

func newClient(url string) *client {
	return &client{
		url:    url,
		dialer: wstransport.NewDialer(),
		conns:  make(map[int]*clientConn),
		nextID: 1,
	}
}

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080", "server url")
	flag.Parse()

	fmt.Println("=== WebSocket Test Client ===")
	fmt.Println("Type 'help' for available commands")
	fmt.Println()

	cl := newClient(*url)
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if quit := cl.dispatch(line); quit {
			break
		}
	}
	cl.closeAll()
	// give close frames a moment to flush
	time.Sleep(500 * time.Millisecond)
}

// dispatch runs one REPL command and reports whether the client should quit.
func (cl *client) dispatch(line string) bool {
	parts := strings.Fields(line)
	switch strings.ToLower(parts[0]) {
	case "connect", "c":
		n := 1
		if len(parts) == 2 {
			v, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("✗ Invalid number")
				return false
			}
			n = v
		} else if len(parts) > 2 {
			fmt.Println("✗ Usage: connect [count]")
			return false
		}
		if n < 1 || n > maxBatchConnect {
			fmt.Printf("✗ Please specify a number between 1 and %d\n", maxBatchConnect)
			return false
		}
		for i := 0; i < n; i++ {
			id, err := cl.connect()
			if err != nil {
				fmt.Printf("✗ Failed to connect: %v\n", err)
				break
			}
			fmt.Printf("✓ Connection #%d established\n", id)
		}
	case "send", "s":
		if len(parts) < 3 {
			fmt.Println("✗ Usage: send <id> <message>")
			return false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			fmt.Println("✗ Invalid connection ID")
			return false
		}
		msg := strings.Join(parts[2:], " ")
		if cl.send(id, transport.Text(msg)) {
			fmt.Printf("✓ Sent to connection #%d: %s\n", id, msg)
		} else {
			fmt.Printf("✗ Connection #%d not found\n", id)
		}
	case "close":
		if len(parts) != 2 {
			fmt.Println("✗ Usage: close <id> or close all")
			return false
		}
		if strings.EqualFold(parts[1], "all") {
			n := cl.closeAll()
			fmt.Printf("✓ Closed %d connection(s)\n", n)
			return false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			fmt.Println("✗ Invalid connection ID")
			return false
		}
		if cl.send(id, transport.Message{Type: transport.TypeClose}) {
			fmt.Printf("✓ Closed connection #%d\n", id)
		} else {
			fmt.Printf("✗ Connection #%d not found\n", id)
		}
	case "list", "ls":
		ids := cl.ids()
		if len(ids) == 0 {
			fmt.Println("No active connections")
			return false
		}
		fmt.Println("Active connections:")
		for _, id := range ids {
			fmt.Printf("  • Connection #%d\n", id)
		}
	case "help", "h":
		printHelp()
	case "quit", "exit", "q":
		fmt.Println("Closing all connections and exiting...")
		return true
	default:
		fmt.Printf("✗ Unknown command: %s (try 'help')\n", parts[0])
	}
	return false
}

func (cl *client) connect() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch, err := cl.dialer.Dial(ctx, cl.url)
	if err != nil {
		return 0, err
	}

	cl.mu.Lock()
	id := cl.nextID
	cl.nextID++
	c := &clientConn{id: id, ch: ch, out: make(chan transport.Message, 16)}
	cl.conns[id] = c
	cl.mu.Unlock()

	go cl.readLoop(c)
	go writeLoop(c)
	return id, nil
}

func (cl *client) readLoop(c *clientConn) {
	defer func() {
		_ = c.ch.Close()
		cl.remove(c.id)
	}()
	for {
		m, err := c.ch.Next()
		if err != nil {
			fmt.Printf("\n! Connection #%d closed\n> ", c.id)
			return
		}
		switch m.Type {
		case transport.TypeText:
			fmt.Printf("\n← Connection #%d: %s\n> ", c.id, m.Data)
		case transport.TypeBinary:
			fmt.Printf("\n← Connection #%d: received %d bytes\n> ", c.id, len(m.Data))
		case transport.TypeClose:
			fmt.Printf("\n! Connection #%d closed by server\n> ", c.id)
			return
		case transport.TypePing, transport.TypePong:
			// answered inside the transport
		}
	}
}

func writeLoop(c *clientConn) {
	for m := range c.out {
		if err := c.ch.Send(m); err != nil {
			return
		}
		if m.Type == transport.TypeClose {
			return
		}
	}
}

// send queues a message on connection id; reports false when id is unknown.
func (cl *client) send(id int, m transport.Message) bool {
	cl.mu.Lock()
	c, ok := cl.conns[id]
	cl.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case c.out <- m:
		return true
	default:
		// outbound queue full; the connection is stalled
		return false
	}
}

func (cl *client) closeAll() int {
	cl.mu.Lock()
	conns := make([]*clientConn, 0, len(cl.conns))
	for _, c := range cl.conns {
		conns = append(conns, c)
	}
	cl.mu.Unlock()
	for _, c := range conns {
		cl.send(c.id, transport.Message{Type: transport.TypeClose})
	}
	return len(conns)
}

func (cl *client) remove(id int) {
	cl.mu.Lock()
	delete(cl.conns, id)
	cl.mu.Unlock()
}

func (cl *client) ids() []int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	ids := make([]int, 0, len(cl.conns))
	for id := range cl.conns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  connect, c [count]   open one or up to 20 connections")
	fmt.Println("  send, s <id> <msg>   send a text message on a connection")
	fmt.Println("  close <id>|all       close one or all connections")
	fmt.Println("  list, ls             list active connections")
	fmt.Println("  help, h              show this help")
	fmt.Println("  quit, q              close everything and exit")
}
