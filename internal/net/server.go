package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"ledgerbook/internal/book"
	"ledgerbook/internal/engine"
	"ledgerbook/internal/workerpool"
)

const (
	// MaxRecvSize bounds a single read from a client connection.
	MaxRecvSize = 4 * 1024
	// defaultNWorkers is the size of the connection-handling worker pool.
	defaultNWorkers = 10
	// defaultConnTimeout bounds how long a connection may go without
	// sending a complete message before it is dropped.
	defaultConnTimeout = time.Second
)

// ErrImproperConversion signals a workerpool task arriving as something
// other than a net.Conn; it would indicate a bug in how Server enqueues
// its own tasks.
var ErrImproperConversion = errors.New("net: improper type conversion")

type clientSession struct {
	conn net.Conn
}

type clientMessage struct {
	clientAddress string
	message       Message
}

// Server is the TCP front end around an *engine.Engine: it decodes wire
// requests, calls the engine's public methods, and reports trades and
// errors back to the connections that submitted the orders involved. It
// never calls back into the engine beyond that public surface, and the
// engine package never imports this one.
type Server struct {
	address string
	port    int
	engine  *engine.Engine
	pool    workerpool.Pool

	cancel context.CancelFunc

	mu             sync.Mutex
	clientSessions map[string]clientSession
	// orderOwner remembers which connection submitted each accepted order
	// id, so a later trade on that id can be reported back to the right
	// client. Entries are best-effort: if the owning connection has since
	// disconnected, the report is simply dropped. Entries are never removed,
	// not even once an order is filled or cancelled.
	orderOwner map[int64]string

	clientMessages chan clientMessage
}

// New constructs a server fronting eng on address:port. It does not start
// listening until Run is called.
func New(address string, port int, eng *engine.Engine) *Server {
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           workerpool.New(defaultNWorkers),
		clientSessions: make(map[string]clientSession),
		orderOwner:     make(map[int64]string),
		clientMessages: make(chan clientMessage, 1),
	}
}

// Shutdown cancels the server's run context. Safe to call more than once.
func (s *Server) Shutdown() {
	log.Info().Msg("net: server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run listens on the server's configured address and serves connections
// until ctx is cancelled or Shutdown is called. It blocks until the
// listener stops.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.Shutdown()

	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("net: unable to start listener")
		return err
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("net: unable to close listener")
		}
	}()

	s.pool.Run(t, s.handleConnection)
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("net: server running")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
				}
				log.Error().Err(err).Msg("net: error accepting client")
				continue
			}
			log.Debug().Str("address", conn.RemoteAddr().String()).Msg("net: new client")
			s.addClientSession(conn)
			s.pool.AddTask(conn)
		}
	}
}

// handleConnection reads one message off conn, decodes it, and forwards it
// to the session handler. The connection is requeued onto the pool so the
// next message (on the same persistent session) gets its own worker turn.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	if err := conn.SetDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().Err(err).Msg("net: failed setting connection deadline")
		conn.Close()
		s.deleteClientSession(conn.RemoteAddr().String())
		return nil
	}

	buffer := make([]byte, MaxRecvSize)
	select {
	case <-t.Dying():
		conn.Close()
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			s.deleteClientSession(conn.RemoteAddr().String())
			conn.Close()
			return nil
		}

		message, err := ParseMessage(buffer[:n])
		if err != nil {
			log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("net: error parsing message")
			s.pool.AddTask(conn)
			return nil
		}

		s.clientMessages <- clientMessage{
			clientAddress: conn.RemoteAddr().String(),
			message:       message,
		}
		s.pool.AddTask(conn)
	}
	return nil
}

// sessionHandler drains decoded messages and actions them against the
// engine.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.clientMessages:
			if err := s.handleMessage(msg); err != nil {
				log.Error().Err(err).Str("clientAddress", msg.clientAddress).Msg("net: error handling message")
				s.sendReport(msg.clientAddress, Report{Type: ErrorReport, Err: err.Error()})
			}
		}
	}
}

func (s *Server) handleMessage(cm clientMessage) error {
	switch m := cm.message.(type) {
	case NewOrderMessage:
		return s.handleNewOrder(cm.clientAddress, m)
	case CancelOrderMessage:
		s.engine.Cancel(m.OrderID, m.Pair)
		return nil
	case BaseMessage:
		switch m.TypeOf {
		case LogBook:
			log.Info().Msg("net: log-book requested")
			return nil
		case Heartbeat:
			return nil
		}
	}
	return ErrInvalidMessageType
}

func (s *Server) handleNewOrder(clientAddress string, m NewOrderMessage) error {
	price := decimal.Zero
	if m.Price != "" {
		p, err := decimal.NewFromString(m.Price)
		if err != nil {
			return fmt.Errorf("net: invalid price: %w", err)
		}
		price = p
	}
	quantity, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return fmt.Errorf("net: invalid quantity: %w", err)
	}

	id, trades, err := s.engine.Submit(m.Username, m.Pair, m.Side, m.Type, price, quantity)
	if err != nil {
		return err
	}

	s.rememberOwner(id, clientAddress)
	s.sendReport(clientAddress, Report{
		Type:      AckReport,
		ClientRef: m.ClientRef,
		OrderID:   id,
		Pair:      m.Pair,
		Side:      m.Side,
	})

	for _, tr := range trades {
		s.reportTrade(tr)
	}
	return nil
}

// reportTrade sends one execution report to each side of the trade whose
// submitting connection is still known. It does not forget filled ids.
func (s *Server) reportTrade(tr book.Trade) {
	for _, id := range []int64{tr.BuyerOrderID, tr.SellerOrderID} {
		side := book.Buy
		if id == tr.SellerOrderID {
			side = book.Sell
		}
		addr, ok := s.ownerOf(id)
		if !ok {
			continue
		}
		s.sendReport(addr, Report{
			Type:      ExecutionReport,
			OrderID:   id,
			Pair:      tr.Pair,
			Side:      side,
			Price:     tr.Price.String(),
			Quantity:  tr.Quantity.String(),
			Timestamp: tr.Timestamp.Unix(),
		})
	}
}

func (s *Server) sendReport(clientAddress string, report Report) {
	s.mu.Lock()
	session, ok := s.clientSessions[clientAddress]
	s.mu.Unlock()
	if !ok {
		return
	}
	if _, err := session.conn.Write(report.Serialize()); err != nil {
		log.Error().Err(err).Str("address", clientAddress).Msg("net: unable to send report")
		s.deleteClientSession(clientAddress)
	}
}

func (s *Server) rememberOwner(id int64, clientAddress string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderOwner[id] = clientAddress
}

func (s *Server) ownerOf(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	addr, ok := s.orderOwner[id]
	return addr, ok
}

func (s *Server) addClientSession(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientSessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) deleteClientSession(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clientSessions, address)
}
