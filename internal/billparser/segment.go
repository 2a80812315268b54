package billparser

import (
	"regexp"
	"strings"
)

// segments partitions a document around the customer-unit identifier line.
// header is issuer boilerplate, client holds the lines right after the
// identifier, data is everything else.
type segments struct {
	text         string
	idLine       int
	idOffset     int
	header       string
	client       string
	clientOffset int
	data         string
	dataOffset   int
}

func normalizeText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}

func segment(text string, idPattern *regexp.Regexp, clientLines int) segments {
	seg := segments{text: text, idLine: -1, idOffset: -1}
	lines := strings.Split(text, "\n")

	offsets := make([]int, len(lines)+1)
	for i, l := range lines {
		offsets[i+1] = offsets[i] + len(l) + 1
	}

	for i, l := range lines {
		if loc := idPattern.FindStringSubmatchIndex(l); loc != nil {
			seg.idLine = i
			seg.idOffset = offsets[i] + loc[2]
			break
		}
	}

	if seg.idLine < 0 {
		seg.client = text
		return seg
	}

	end := seg.idLine + clientLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	seg.header = strings.Join(lines[:seg.idLine], "\n")
	seg.client = strings.Join(lines[seg.idLine:end], "\n")
	seg.clientOffset = offsets[seg.idLine]
	if end < len(lines) {
		seg.data = strings.Join(lines[end:], "\n")
		seg.dataOffset = offsets[end]
	}
	return seg
}

// afterIdentifier returns the document text from the identifier onwards.
func (s segments) afterIdentifier() (string, int) {
	if s.idOffset < 0 {
		return "", 0
	}
	return s.text[s.idOffset:], s.idOffset
}
