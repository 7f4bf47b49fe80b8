package filter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/emersion/go-milter"
	"go.uber.org/zap"

	"github.com/mikey/phishing-detector/internal/config"
	"github.com/mikey/phishing-detector/internal/core"
	"github.com/mikey/phishing-detector/internal/ports"
)

// MilterFilter classifies mail for an MTA speaking the milter protocol.
// Verdict headers are added in place, so no re-injection is needed.
type MilterFilter struct {
	detector ports.Detector
	logger   *zap.Logger
	cfg      config.ServerConfig
	server   *milter.Server
	listener net.Listener
	closed   atomic.Bool
}

// MilterDecision is the outcome for one message
type MilterDecision struct {
	// Reject is set for phishing when blocking is enabled
	Reject bool
	// Headers are added to the message
	Headers [][2]string
	// Subject replaces the Subject header when non-empty
	Subject string
	// Result is nil when analysis failed
	Result *core.PredictionResult
}

// NewMilterFilter creates a new milter front end
func NewMilterFilter(detector ports.Detector, logger *zap.Logger, cfg config.ServerConfig) *MilterFilter {
	return &MilterFilter{
		detector: detector,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start binds the milter listener and serves in the background
func (f *MilterFilter) Start() error {
	f.server = &milter.Server{
		NewMilter: func() milter.Milter {
			return &milterSession{filter: f}
		},
		Protocol: milter.OptNoConnect | milter.OptNoHelo | milter.OptNoRcptTo,
		Actions:  milter.OptAddHeader | milter.OptChangeHeader,
	}

	l, err := net.Listen("tcp", f.cfg.MilterAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.MilterAddress, err)
	}
	f.listener = l

	f.logger.Info("Milter filter starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := f.server.Serve(l); err != nil && !f.closed.Load() {
			f.logger.Error("Milter server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound listen address once started
func (f *MilterFilter) Addr() string {
	if f.listener == nil {
		return f.cfg.MilterAddress
	}
	return f.listener.Addr().String()
}

// Stop stops the milter server
func (f *MilterFilter) Stop() error {
	if f.server == nil {
		return nil
	}
	f.closed.Store(true)
	err := f.server.Close()
	// Serve may not have registered the listener yet
	f.listener.Close()
	return err
}

// ProcessEmail classifies a message given as raw RFC 5322 text
func (f *MilterFilter) ProcessEmail(ctx context.Context, raw string) (*core.PredictionResult, error) {
	text, err := MessageText([]byte(raw))
	if err != nil {
		return nil, err
	}
	return f.detector.PredictEmail(ctx, text)
}

// Decide classifies a message and says how the MTA should modify it.
// Analysis failures never stop delivery: the decision carries only an
// error header.
func (f *MilterFilter) Decide(ctx context.Context, raw []byte) MilterDecision {
	text, err := MessageText(raw)
	if err != nil {
		f.logger.Warn("Failed to parse message, passing through", zap.Error(err))
		return MilterDecision{Headers: [][2]string{{AnalysisErrorHeader, err.Error()}}}
	}

	result, err := f.detector.PredictEmail(ctx, text)
	if err != nil {
		f.logger.Error("Failed to classify message, passing through", zap.Error(err))
		return MilterDecision{Headers: [][2]string{{AnalysisErrorHeader, err.Error()}}}
	}

	if result.IsPhishing() && f.cfg.BlockPhishing {
		return MilterDecision{Reject: true, Result: result}
	}

	d := MilterDecision{Headers: verdictHeaders(f.cfg.Headers, result), Result: result}
	if result.IsPhishing() && f.cfg.SubjectPrefix != "" {
		subject, found := subjectValue(raw)
		switch {
		case !found:
			d.Subject = encodeHeaderValue(strings.TrimSpace(f.cfg.SubjectPrefix))
		default:
			if prefixed := prefixSubject(subject, f.cfg.SubjectPrefix); prefixed != subject {
				d.Subject = prefixed
			}
		}
	}
	return d
}

// subjectValue returns the unfolded Subject header of a message
func subjectValue(raw []byte) (string, bool) {
	header, _, eol := splitMessage(raw)
	lines := strings.SplitAfter(string(header), eol)
	for i := 0; i < len(lines); i++ {
		if !hasFieldName(lines[i], "subject") {
			continue
		}
		value := strings.TrimSpace(lines[i][len("subject:"):])
		for i+1 < len(lines) && isContinuation(lines[i+1]) {
			i++
			value += " " + strings.TrimSpace(lines[i])
		}
		return value, true
	}
	return "", false
}

// milterSession collects one message at a time for a single MTA connection
type milterSession struct {
	milter.NoOpMilter

	filter     *MilterFilter
	from       string
	header     bytes.Buffer
	body       bytes.Buffer
	hasSubject bool
}

func (s *milterSession) reset() {
	s.from = ""
	s.header.Reset()
	s.body.Reset()
	s.hasSubject = false
}

func (s *milterSession) MailFrom(from string, _ *milter.Modifier) (milter.Response, error) {
	s.reset()
	s.from = from
	return milter.RespContinue, nil
}

func (s *milterSession) Header(name, value string, _ *milter.Modifier) (milter.Response, error) {
	fmt.Fprintf(&s.header, "%s: %s\r\n", name, value)
	if strings.EqualFold(name, "subject") {
		s.hasSubject = true
	}
	return milter.RespContinue, nil
}

func (s *milterSession) BodyChunk(chunk []byte, _ *milter.Modifier) (milter.Response, error) {
	if limit := s.filter.cfg.MaxMessageBytes; limit > 0 && int64(s.body.Len()+len(chunk)) > limit {
		// Oversized bodies are classified on their first limit bytes
		chunk = chunk[:max(0, int(limit)-s.body.Len())]
	}
	s.body.Write(chunk)
	return milter.RespContinue, nil
}

func (s *milterSession) Body(m *milter.Modifier) (milter.Response, error) {
	defer s.reset()
	logger := s.filter.logger

	raw := make([]byte, 0, s.header.Len()+2+s.body.Len())
	raw = append(raw, s.header.Bytes()...)
	raw = append(raw, "\r\n"...)
	raw = append(raw, s.body.Bytes()...)

	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	d := s.filter.Decide(ctx, raw)
	if d.Reject {
		logger.Info("Rejecting phishing message",
			zap.String("from", s.from),
			zap.Int("confidence", d.Result.Confidence),
			zap.String("model", d.Result.ModelVersion))
		return milter.RespReject, nil
	}

	for _, h := range d.Headers {
		if h[0] == "" {
			continue
		}
		if err := m.AddHeader(h[0], oneLine(h[1])); err != nil {
			return nil, fmt.Errorf("failed to add header %s: %w", h[0], err)
		}
	}
	if d.Subject != "" {
		var err error
		if s.hasSubject {
			err = m.ChangeHeader(1, "Subject", d.Subject)
		} else {
			err = m.AddHeader("Subject", d.Subject)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to rewrite subject: %w", err)
		}
	}

	fields := []zap.Field{zap.String("from", s.from)}
	if d.Result != nil {
		fields = append(fields,
			zap.String("label", d.Result.LabelName),
			zap.Int("confidence", d.Result.Confidence),
			zap.String("model", d.Result.ModelVersion))
	}
	logger.Info("Processed message", fields...)
	return milter.RespAccept, nil
}

func (s *milterSession) Abort(_ *milter.Modifier) error {
	s.reset()
	return nil
}
