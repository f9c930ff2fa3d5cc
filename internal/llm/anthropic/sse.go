// Package anthropic implements the Messages API provider: HTTP transport,
// incremental SSE decoding, and retry with exponential backoff.
package anthropic

import "strings"

// sseEvent is a single server-sent event: an optional event name plus the
// joined data payload.
type sseEvent struct {
	name string
	data string
}

// sseParser incrementally frames raw stream text into SSE events. Incomplete
// trailing frames stay buffered across feeds, so callers may split the input
// at arbitrary byte boundaries.
type sseParser struct {
	buffer strings.Builder
}

// feed appends a chunk and returns every complete event it closes. A single
// chunk may complete several frames; all of them are returned in order.
func (p *sseParser) feed(chunk string) []sseEvent {
	p.buffer.WriteString(chunk)
	text := p.buffer.String()

	var events []sseEvent
	for {
		block, rest, ok := splitFrame(text)
		if !ok {
			break
		}
		text = rest
		if event, ok := parseFrame(block); ok {
			events = append(events, event)
		}
	}

	p.buffer.Reset()
	p.buffer.WriteString(text)
	return events
}

// splitFrame cuts the first complete frame (terminated by a blank line) off
// the front of text. Line terminators may be \n, \r, or \r\n.
func splitFrame(text string) (block string, rest string, ok bool) {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			if isBlankAt(text, i+1) {
				return text[:i], text[skipNewline(text, i+1):], true
			}
		case '\r':
			next := i + 1
			if next < len(text) && text[next] == '\n' {
				next++
			}
			if isBlankAt(text, next) {
				return text[:i], text[skipNewline(text, next):], true
			}
		}
	}
	return "", text, false
}

// isBlankAt reports whether a line terminator starts at offset i, meaning the
// preceding newline closed an empty line.
func isBlankAt(text string, i int) bool {
	return i < len(text) && (text[i] == '\n' || text[i] == '\r')
}

// skipNewline advances past one \n, \r, or \r\n at offset i.
func skipNewline(text string, i int) int {
	if i < len(text) && text[i] == '\r' {
		i++
		if i < len(text) && text[i] == '\n' {
			i++
		}
		return i
	}
	if i < len(text) && text[i] == '\n' {
		i++
	}
	return i
}

// parseFrame interprets the lines of one frame. Comments and unknown fields
// are ignored; multiple data lines are joined with newlines per the SSE spec.
func parseFrame(block string) (sseEvent, bool) {
	var name string
	var dataLines []string

	for _, line := range splitLines(block) {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, found := strings.Cut(line, ":")
		if !found {
			if line == "data" {
				dataLines = append(dataLines, "")
			}
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}

	if len(dataLines) == 0 {
		return sseEvent{}, false
	}
	return sseEvent{name: name, data: strings.Join(dataLines, "\n")}, true
}

// splitLines splits on \n, \r, or \r\n without requiring a trailing break.
func splitLines(block string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(block); i++ {
		switch block[i] {
		case '\n':
			lines = append(lines, block[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, block[start:i])
			if i+1 < len(block) && block[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start <= len(block) {
		lines = append(lines, block[start:])
	}
	return lines
}
