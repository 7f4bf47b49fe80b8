package filter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/ports"
)

// ErrPhishingRejected is returned to the sending MTA when blocking is enabled
var ErrPhishingRejected = &smtp.SMTPError{
	Code:         550,
	EnhancedCode: smtp.EnhancedCode{5, 7, 1},
	Message:      "Message rejected as phishing",
}

// AnalysisErrorHeader carries the reason a message passed through unclassified
const AnalysisErrorHeader = "X-Phishing-Analysis-Error"

const analysisTimeout = 10 * time.Second

// PostfixFilter implements a Postfix content filter. Mail arrives over SMTP,
// is classified, annotated with verdict headers and re-injected.
type PostfixFilter struct {
	detector ports.Detector
	logger   *zap.Logger
	cfg      config.ServerConfig
	server   *smtp.Server
	listener net.Listener
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(detector ports.Detector, logger *zap.Logger, cfg config.ServerConfig) *PostfixFilter {
	return &PostfixFilter{
		detector: detector,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start binds the SMTP listener and serves in the background
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})
	f.server.Addr = f.cfg.PostfixAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = f.cfg.MaxMessageBytes
	f.server.MaxRecipients = 50

	l, err := net.Listen("tcp", f.cfg.PostfixAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.PostfixAddress, err)
	}
	f.listener = l

	f.logger.Info("Postfix filter starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := f.server.Serve(l); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address once started
func (f *PostfixFilter) Addr() string {
	if f.listener == nil {
		return f.cfg.PostfixAddress
	}
	return f.listener.Addr().String()
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail classifies a message given as raw RFC 5322 text
func (f *PostfixFilter) ProcessEmail(ctx context.Context, raw string) (*core.PredictionResult, error) {
	text, err := MessageText([]byte(raw))
	if err != nil {
		return nil, err
	}
	return f.detector.PredictEmail(ctx, text)
}

// AnnotateMessage classifies a message and returns it with verdict headers
// added. Analysis failures never stop delivery: the message is returned with
// an error header and a nil result. ErrPhishingRejected is returned when the
// message is phishing and blocking is enabled.
func (f *PostfixFilter) AnnotateMessage(ctx context.Context, raw []byte) ([]byte, *core.PredictionResult, error) {
	text, err := MessageText(raw)
	if err != nil {
		f.logger.Warn("Failed to parse message, passing through", zap.Error(err))
		return addHeaders(raw, [][2]string{{AnalysisErrorHeader, err.Error()}}), nil, nil
	}

	result, err := f.detector.PredictEmail(ctx, text)
	if err != nil {
		f.logger.Error("Failed to classify message, passing through", zap.Error(err))
		return addHeaders(raw, [][2]string{{AnalysisErrorHeader, err.Error()}}), nil, nil
	}

	if result.IsPhishing() && f.cfg.BlockPhishing {
		return nil, result, ErrPhishingRejected
	}

	out := raw
	if result.IsPhishing() && f.cfg.SubjectPrefix != "" {
		out = rewriteSubject(out, f.cfg.SubjectPrefix)
	}
	return addHeaders(out, verdictHeaders(f.cfg.Headers, result)), result, nil
}

// verdictHeaders lists the header fields describing a prediction
func verdictHeaders(names config.HeaderNames, result *core.PredictionResult) [][2]string {
	terms := make([]string, 0, len(result.TopFeatures))
	for _, c := range result.TopFeatures {
		terms = append(terms, c.Term)
	}
	return [][2]string{
		{names.Verdict, result.LabelName},
		{names.Confidence, strconv.Itoa(result.Confidence)},
		{names.Terms, strings.Join(terms, ", ")},
		{names.Version, result.ModelVersion},
	}
}

// sendToPostfix re-injects the processed message on the configured address
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", f.cfg.ReinjectAddress, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := 0
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Already delivered
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	logger := s.filter.logger
	raw, err := io.ReadAll(r)
	if err != nil {
		logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	out, result, err := s.filter.AnnotateMessage(ctx, raw)
	if err == ErrPhishingRejected {
		logger.Info("Rejecting phishing message",
			zap.String("from", s.sender),
			zap.Int("confidence", result.Confidence),
			zap.String("model", result.ModelVersion))
		return err
	}

	if err := s.filter.sendToPostfix(s.sender, s.recipients, out); err != nil {
		logger.Error("Failed to send message back to Postfix",
			zap.Error(err),
			zap.String("from", s.sender))
		return err
	}

	fields := []zap.Field{zap.String("from", s.sender), zap.Int("recipients", len(s.recipients))}
	if result != nil {
		fields = append(fields,
			zap.String("label", result.LabelName),
			zap.Int("confidence", result.Confidence),
			zap.String("model", result.ModelVersion))
	}
	logger.Info("Processed message", fields...)
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}

// ─── Header rewriting ─────────────────────────────────────────────────────────

// splitMessage separates the header block (with its final line ending) from
// the body and reports the line ending the message uses
func splitMessage(raw []byte) (header, body []byte, eol string) {
	eol = "\n"
	if bytes.Contains(raw, []byte("\r\n")) {
		eol = "\r\n"
	}
	if bytes.HasPrefix(raw, []byte(eol)) {
		return nil, raw[len(eol):], eol
	}
	sep := []byte(eol + eol)
	i := bytes.Index(raw, sep)
	if i < 0 {
		header = raw
		if !bytes.HasSuffix(header, []byte(eol)) {
			header = append(append([]byte{}, header...), eol...)
		}
		return header, nil, eol
	}
	return raw[:i+len(eol)], raw[i+len(sep):], eol
}

// addHeaders prepends header fields, leaving the original header and body
// untouched
func addHeaders(raw []byte, fields [][2]string) []byte {
	header, body, eol := splitMessage(raw)
	var out bytes.Buffer
	for _, f := range fields {
		if f[0] == "" {
			continue
		}
		fmt.Fprintf(&out, "%s: %s%s", f[0], oneLine(f[1]), eol)
	}
	out.Write(header)
	out.WriteString(eol)
	out.Write(body)
	return out.Bytes()
}

// rewriteSubject prepends prefix to the Subject header unless it is already
// there, adding a Subject header when the message has none
func rewriteSubject(raw []byte, prefix string) []byte {
	header, body, eol := splitMessage(raw)
	lines := strings.SplitAfter(string(header), eol)

	var out strings.Builder
	found := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			continue
		}
		if found || !hasFieldName(line, "subject") {
			out.WriteString(line)
			continue
		}
		found = true
		value := strings.TrimSpace(line[len("subject:"):])
		for i+1 < len(lines) && isContinuation(lines[i+1]) {
			i++
			value += " " + strings.TrimSpace(lines[i])
		}
		out.WriteString("Subject: " + prefixSubject(value, prefix) + eol)
	}
	if !found {
		out.WriteString("Subject: " + encodeHeaderValue(strings.TrimSpace(prefix)) + eol)
	}

	var msg bytes.Buffer
	msg.WriteString(out.String())
	msg.WriteString(eol)
	msg.Write(body)
	return msg.Bytes()
}

func prefixSubject(value, prefix string) string {
	decoded, err := decodeEncodedHeader(value)
	if err != nil {
		decoded = value
	}
	if strings.HasPrefix(decoded, prefix) {
		return value
	}
	return encodeHeaderValue(prefix + decoded)
}

func encodeHeaderValue(s string) string {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return mime.QEncoding.Encode("utf-8", s)
		}
	}
	return s
}

func hasFieldName(line, name string) bool {
	return len(line) > len(name) && line[len(name)] == ':' && strings.EqualFold(line[:len(name)], name)
}

func isContinuation(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}
