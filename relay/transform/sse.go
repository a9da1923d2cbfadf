package transform

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/cliproxy/gateway/common/helper"
)

// ScanSSE reads "event: <name>\ndata: <payload>\n\n" frames from r (the
// event line is optional, matching bare OpenAI-style "data: ..." streams)
// and invokes fn once per frame with the accumulated data bytes. The
// literal sentinel "data: [DONE]" is passed through as Data == []byte("[DONE]")
// with an empty Event name, per §6's wire format.
func ScanSSE(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	helper.ConfigureScannerBuffer(scanner)

	var eventName string
	var dataLines [][]byte

	flush := func() error {
		if eventName == "" && len(dataLines) == 0 {
			return nil
		}
		data := bytes.Join(dataLines, []byte("\n"))
		err := fn(Event{Event: eventName, Data: data})
		eventName = ""
		dataLines = nil
		return err
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
		default:
			// ignore comments and unrecognized fields
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
