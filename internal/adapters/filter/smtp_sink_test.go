package filter_test

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
)

type sinkMessage struct {
	from string
	to   []string
	data string
}

// sinkServer stands in for the Postfix re-injection port
type sinkServer struct {
	srv *smtp.Server
	l   net.Listener

	mu   sync.Mutex
	msgs []sinkMessage
}

func newSinkServer(t *testing.T) *sinkServer {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &sinkServer{l: l}
	s.srv = smtp.NewServer(s)
	s.srv.Domain = "localhost"
	go s.srv.Serve(l)
	return s
}

func (s *sinkServer) Addr() string { return s.l.Addr().String() }

func (s *sinkServer) Close() { s.srv.Close() }

func (s *sinkServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *sinkServer) Last() sinkMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return sinkMessage{}
	}
	return s.msgs[len(s.msgs)-1]
}

func (s *sinkServer) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &sinkSession{sink: s}, nil
}

type sinkSession struct {
	sink *sinkServer
	msg  sinkMessage
}

func (s *sinkSession) Reset()        { s.msg = sinkMessage{} }
func (s *sinkSession) Logout() error { return nil }

func (s *sinkSession) Mail(from string, _ *smtp.MailOptions) error {
	s.msg.from = from
	return nil
}

func (s *sinkSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *sinkSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = string(data)
	s.sink.mu.Lock()
	s.sink.msgs = append(s.sink.msgs, s.msg)
	s.sink.mu.Unlock()
	return nil
}

func sendMail(addr, from string, to []string, msg string) error {
	return smtp.SendMail(addr, nil, from, to, strings.NewReader(msg))
}
