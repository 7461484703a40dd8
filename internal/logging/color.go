package logging

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
)

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
	ansiGray    = "\x1b[90m"
)

// colorLineWriter colors slog text lines by level and highlights value tokens.
// Params: dst underlying writer.
// Returns: io.Writer decorator.
type colorLineWriter struct {
	dst io.Writer
}

// Write colors one formatted line; lines without a known level pass through.
// Params: p one rendered log line.
// Returns: len(p) on success or downstream error.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := string(p)
	base := levelColor(line)
	if base == "" {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	body, newline := strings.CutSuffix(line, "\n")

	var out bytes.Buffer
	out.Grow(len(line) + 64)
	out.WriteString(base)
	writeTokens(&out, body, base)
	out.WriteString(ansiReset)
	if newline {
		out.WriteByte('\n')
	}

	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// levelColor picks the base color from the level= attribute.
// Params: line rendered log line.
// Returns: ANSI sequence or empty string for unknown level.
func levelColor(line string) string {
	idx := strings.Index(line, "level=")
	if idx < 0 {
		return ""
	}
	level := line[idx+len("level="):]
	if end := strings.IndexByte(level, ' '); end >= 0 {
		level = level[:end]
	}

	switch strings.TrimSpace(level) {
	case "DEBUG":
		return ansiGray
	case "INFO":
		return ansiBlue
	case "WARN":
		return ansiMagenta
	case "ERROR":
		return ansiRed
	default:
		if strings.HasPrefix(level, "ERROR+") {
			return ansiRed
		}
		return ""
	}
}

// writeTokens copies body highlighting quoted strings, IPs, and numbers found in values.
// Params: out destination buffer; body line text; base color restored after each token.
// Returns: none.
func writeTokens(out *bytes.Buffer, body string, base string) {
	for len(body) > 0 {
		eq := strings.IndexByte(body, '=')
		if eq < 0 {
			out.WriteString(body)
			return
		}
		out.WriteString(body[:eq+1])
		body = body[eq+1:]

		value, rest := splitValue(body)
		body = rest
		if color := tokenColor(value); color != "" {
			out.WriteString(color)
			out.WriteString(value)
			out.WriteString(ansiReset)
			out.WriteString(base)
			continue
		}
		out.WriteString(value)
	}
}

// splitValue cuts one attribute value, honoring quoted strings.
// Params: text starting at the value.
// Returns: value token and remaining text.
func splitValue(text string) (string, string) {
	if strings.HasPrefix(text, `"`) {
		for idx := 1; idx < len(text); idx++ {
			switch text[idx] {
			case '\\':
				idx++
			case '"':
				return text[:idx+1], text[idx+1:]
			}
		}
		return text, ""
	}

	end := strings.IndexByte(text, ' ')
	if end < 0 {
		return text, ""
	}
	return text[:end], text[end:]
}

// tokenColor classifies one value token.
// Params: value raw token.
// Returns: ANSI sequence or empty string for plain tokens.
func tokenColor(value string) string {
	switch {
	case value == "":
		return ""
	case strings.HasPrefix(value, `"`):
		return ansiGreen
	case isIP(value):
		return ansiCyan
	case isNumber(value):
		return ansiYellow
	default:
		return ""
	}
}

// isIP reports whether value is an IP or IP:port.
// Params: value raw token.
// Returns: true for address-like tokens.
func isIP(value string) bool {
	if net.ParseIP(value) != nil {
		return true
	}
	host, _, err := net.SplitHostPort(value)
	return err == nil && net.ParseIP(host) != nil
}

// isNumber reports whether value parses as a float.
// Params: value raw token.
// Returns: true for numeric tokens.
func isNumber(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}
