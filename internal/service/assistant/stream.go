package assistant

import (
	"errors"
	"io"
	"iter"

	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

// responses yields inbound messages in arrival order until the stream ends.
// A terminal error is yielded once; the sequence cannot be restarted.
func responses(stream embedded.EmbeddedAssistant_AssistClient) iter.Seq2[*embedded.AssistResponse, error] {
	return func(yield func(*embedded.AssistResponse, error) bool) {
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}
