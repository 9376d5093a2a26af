package apiclient

// call is one attempt of an outbound request. A retried request gets a
// fresh descriptor with the attempt counter bumped; shared request
// state is never mutated.
type call struct {
	method  string
	path    string
	body    []byte
	token   string // bearer override; empty means read from the session
	attempt int
}

// retryWith derives the single permitted retry, pinned to the renewed
// access token.
func (c call) retryWith(token string) call {
	next := c
	next.token = token
	next.attempt++
	return next
}

type callSettings struct {
	useCache bool
}

// CallOption adjusts a single request.
type CallOption func(*callSettings)

// WithCache serves the request from the client's response cache when a
// fresh entry exists, and stores the response on success. GET only.
func WithCache() CallOption {
	return func(s *callSettings) {
		s.useCache = true
	}
}
