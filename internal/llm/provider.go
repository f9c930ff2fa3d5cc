package llm

import "context"

// Stream yields typed events until io.EOF or a terminal error. Close releases
// the underlying transport; dropping the stream is how in-flight reads are
// cancelled.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// Provider turns a request into a stream of typed events. Implementations are
// responsible for their own authentication, retry, and cache-control
// annotation; callers never learn which provider they hold.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req *Request) (Stream, error)
}
