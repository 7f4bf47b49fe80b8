package filter

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
)

// maxMIMEDepth bounds recursion into nested multipart bodies
const maxMIMEDepth = 8

type headerGetter interface {
	Get(key string) string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// charsetReader wraps input with a decoder for the named charset
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeEncodedHeader decodes RFC 2047 encoded words in a header value
func decodeEncodedHeader(value string) (string, error) {
	return wordDecoder.DecodeHeader(value)
}

// MessageText reduces an RFC 5322 message to the plain text form the
// detector parses: From, To and Subject header lines followed by the
// readable body text.
func MessageText(raw []byte) (string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse message: %w", err)
	}

	body, err := extractTextFromMessage(msg)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, key := range []string{"From", "To", "Subject"} {
		value := msg.Header.Get(key)
		if value == "" {
			continue
		}
		if key != "Subject" {
			if addrs, err := mail.ParseAddressList(value); err == nil && len(addrs) > 0 {
				value = addrs[0].Address
			}
		}
		if decoded, err := decodeEncodedHeader(value); err == nil {
			value = decoded
		}
		fmt.Fprintf(&b, "%s: %s\n", key, oneLine(value))
	}
	b.WriteString("\n")
	b.WriteString(body)
	return b.String(), nil
}

// extractTextFromMessage returns the readable text of a message. Plain text
// parts are preferred; HTML parts are used only when no plain part exists.
func extractTextFromMessage(msg *mail.Message) (string, error) {
	plain, htmlText, err := extractPart(msg.Header, msg.Body, 0)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return plain, nil
	}
	return htmlText, nil
}

func extractPart(h headerGetter, body io.Reader, depth int) (plain, htmlText string, err error) {
	mediaType, params, perr := mime.ParseMediaType(h.Get("Content-Type"))
	if perr != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxMIMEDepth {
			return "", "", nil
		}
		var plainBuf, htmlBuf strings.Builder
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Truncated multipart bodies keep whatever was readable
				break
			}
			if isAttachment(part.Header.Get("Content-Disposition")) {
				continue
			}
			p, ht, err := extractPart(part.Header, part, depth+1)
			if err != nil {
				continue
			}
			appendText(&plainBuf, p)
			appendText(&htmlBuf, ht)
		}
		return plainBuf.String(), htmlBuf.String(), nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}

	r, err := charsetReader(params["charset"], transferDecoder(h.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		// Unknown charsets are read as raw bytes
		r = transferDecoder(h.Get("Content-Transfer-Encoding"), body)
	}

	if mediaType == "text/html" {
		text, err := htmlToText(r)
		return "", text, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to read text part: %w", err)
	}
	return string(data), "", nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

func isAttachment(disposition string) bool {
	d, _, err := mime.ParseMediaType(disposition)
	return err == nil && d == "attachment"
}

// htmlToText collects the visible text nodes of an HTML document
func htmlToText(r io.Reader) (string, error) {
	var b strings.Builder
	skip := 0
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.TrimSpace(b.String()), nil
			}
			return "", fmt.Errorf("failed to read html part: %w", z.Err())
		case html.StartTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHiddenTag(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				if text := strings.TrimSpace(string(z.Text())); text != "" {
					b.WriteString(text)
					b.WriteString("\n")
				}
			}
		}
	}
}

func isHiddenTag(name []byte) bool {
	switch string(name) {
	case "script", "style", "head":
		return true
	}
	return false
}

func appendText(b *strings.Builder, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
}

// oneLine folds a header value onto a single line
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PlainText returns the text form of raw input. MIME messages are reduced
// with MessageText; anything else is returned unchanged.
func PlainText(raw []byte) string {
	header, _, _ := splitMessage(raw)
	if !hasMIMEHeader(header) {
		return string(raw)
	}
	text, err := MessageText(raw)
	if err != nil {
		return string(raw)
	}
	return text
}

func hasMIMEHeader(header []byte) bool {
	for _, line := range strings.Split(string(header), "\n") {
		if hasFieldName(line, "mime-version") || hasFieldName(line, "content-type") {
			return true
		}
	}
	return false
}
