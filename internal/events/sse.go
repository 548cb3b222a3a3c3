package events

import (
	"bufio"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

// DecodeSSE reads a server-sent-event byte stream and invokes fn for each
// decoded StreamEvent. Frames are delimited by a blank line; within a frame
// only "data:" lines carry payload. The "[DONE]" sentinel is discarded
// without producing an event. Line-based scanning makes the decoded sequence
// independent of how the stream is chunked by the network.
//
// fn may return a non-nil error to stop decoding; that error is returned.
func DecodeSSE(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 512*1024)

	var dataLines []string

	flush := func() error {
		if len(dataLines) == 0 {
			return nil
		}
		payload := strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if payload == "" || payload == doneSentinel {
			return nil
		}
		return fn(Classify([]byte(payload)))
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
